package report

import (
	"bytes"
	"encoding/json"
	"lotwatch/internal/lots"
	"lotwatch/internal/store"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func opportunities() []store.Opportunity {
	return []store.Opportunity{
		{
			Lot: lots.Lot{
				ID:          "1",
				Title:       "Apple MacBook Air 13in M2 8GB 256GB Midnight, open box",
				Location:    "Greenville",
				CurrentBid:  decimal.RequireFromString("120"),
				RetailPrice: decimal.RequireFromString("999.99"),
				BidCount:    4,
			},
			Score:          71.25,
			DiscountPct:    88,
			PredictedClose: decimal.RequireFromString("350"),
			Reasons:        []string{"88% below retail", "premium brand (apple)"},
		},
		{
			Lot:         lots.Lot{ID: "2", Title: "Box fan", Location: "Anderson"},
			Score:       12,
			DiscountPct: 0,
		},
	}
}

func TestOpportunitiesTable(t *testing.T) {
	var buf bytes.Buffer
	Opportunities(&buf, opportunities())
	out := buf.String()
	require.Contains(t, out, "Apple MacBook Air")
	require.Contains(t, out, "$999.99")
	require.Contains(t, out, "88.0%")
	require.Contains(t, out, "71.25")
	require.Contains(t, strings.ToLower(out), "2 lots")
	require.NotContains(t, out, "open box")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, OpportunityRows(opportunities())))

	var rows []OpportunityRow
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	require.Equal(t, 1, rows[0].Rank)
	require.Equal(t, "120.00", rows[0].CurrentBid)
	require.Equal(t, []string{}, rows[1].Reasons)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, opportunities()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(opportunitiesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "Rank", rows[0][0])
	require.Equal(t, "1", rows[1][1])
	require.Equal(t, "Box fan", rows[2][2])
}

func TestHistoryAndChart(t *testing.T) {
	snapshots := []store.Snapshot{
		{LotID: "9", ObservedAt: t0, CurrentBid: decimal.NewFromInt(10), BidCount: 1},
		{LotID: "9", ObservedAt: t0.Add(time.Hour), CurrentBid: decimal.NewFromInt(25), BidCount: 4},
		{LotID: "9", ObservedAt: t0.Add(2 * time.Hour), CurrentBid: decimal.NewFromInt(25), BidCount: 4, IsClosed: true},
	}

	var buf bytes.Buffer
	History(&buf, "9", snapshots)
	require.Contains(t, buf.String(), "+$15.00")
	require.Contains(t, buf.String(), "yes")

	path := filepath.Join(t.TempDir(), "history.png")
	require.NoError(t, WriteHistoryChart(path, snapshots))
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(contents, []byte("\x89PNG")))

	require.ErrorIs(t, WriteHistoryChart(path, nil), ErrNoHistory)
}

func TestSmallTables(t *testing.T) {
	var buf bytes.Buffer
	Scans(&buf, []store.ScanRecord{{ID: "abc", Kind: store.ScanKindSearch, StartedAt: t0, Terms: 3}})
	require.Contains(t, buf.String(), "unfinished")

	buf.Reset()
	Probes(&buf, []store.Probe{{Endpoint: "search", Status: 200, Latency: 120 * time.Millisecond, ProbedAt: t0}})
	require.Contains(t, buf.String(), "120ms")

	buf.Reset()
	Watchlist(&buf, []store.WatchEntry{{LotID: "5", MaxBid: decimal.NewFromInt(40), AddedAt: t0}})
	require.Contains(t, buf.String(), "$40.00")

	_, err := ParseFormat("csv")
	require.Error(t, err)
	f, err := ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, f)
}
