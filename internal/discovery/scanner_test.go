package discovery

import (
	"context"
	"errors"
	"fmt"
	"lotwatch/internal/components/chrono"
	"lotwatch/internal/components/telemetry"
	"lotwatch/internal/lots"
	"lotwatch/internal/macbid"
	"lotwatch/internal/scoring"
	"lotwatch/internal/store"
	"lotwatch/internal/store/db"
	"lotwatch/lib/testutil"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type stubSearcher struct {
	pages    map[string][][]lots.Lot
	fail     map[string]bool
	onSearch func()

	mu    sync.Mutex
	calls map[string]int
}

func (s *stubSearcher) Search(ctx context.Context, params macbid.SearchParams) (macbid.SearchPage, error) {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[params.Term]++
	s.mu.Unlock()

	if s.onSearch != nil {
		s.onSearch()
	}
	if s.fail[params.Term] {
		return macbid.SearchPage{}, macbid.ErrServer
	}
	pages := s.pages[params.Term]
	if params.Page > len(pages) {
		return macbid.SearchPage{Page: params.Page, Pages: len(pages)}, nil
	}
	return macbid.SearchPage{
		Lots:  pages[params.Page-1],
		Page:  params.Page,
		Pages: len(pages),
	}, nil
}

func lot(id, location, retail, bid string, bids int) lots.Lot {
	return lots.Lot{
		ID:          id,
		Title:       "lot " + id,
		Location:    location,
		RetailPrice: decimal.RequireFromString(retail),
		CurrentBid:  decimal.RequireFromString(bid),
		BidCount:    bids,
		ClosesAt:    now.Add(48 * time.Hour),
		Source:      lots.SourceSearch,
	}
}

func fullPage(prefix string, n int) []lots.Lot {
	out := make([]lots.Lot, n)
	for i := range out {
		out[i] = lot(fmt.Sprintf("%s-%d", prefix, i), "Greenville", "100", "50", 3)
	}
	return out
}

func newScanner(t *testing.T, sources Sources) (Scanner, store.Store, telemetry.TestAPI) {
	tel := telemetry.NewTestAPI(t)
	st := store.NewStore(testutil.OpenDB(t, db.Schema))
	scanner := NewScanner(sources, st, scoring.NewScorer(scoring.Weights{}, nil), chrono.FixedImpl{At: now}, tel)
	return scanner, st, tel
}

func TestScan(t *testing.T) {
	ctx := testutil.Context(t)
	searcher := &stubSearcher{
		pages: map[string][][]lots.Lot{
			"laptop": {
				fullPage("a", 2),
				{
					lot("cheap", "Spartanburg - Fernwood", "1000", "20", 0),
					lot("far", "Columbus, OH", "1000", "10", 0),
				},
				{lot("never-fetched", "Greenville", "100", "1", 0)},
			},
			"drill": {
				{
					lot("cheap", "Spartanburg - Fernwood", "1000", "20", 0),
					lot("pricey", "Rock Hill", "100", "95", 12),
				},
			},
			"broken": {},
		},
		fail: map[string]bool{"broken": true},
	}
	scanner, st, tel := newScanner(t, Sources{Search: searcher})

	report, err := scanner.Scan(ctx, ScanOptions{
		Terms:     []string{"laptop", "drill", "broken"},
		PerPage:   2,
		MaxPages:  2,
		Locations: lots.SCLocations,
		MinScore:  20,
	})
	require.NoError(t, err)

	require.Equal(t, 3, report.Terms)
	require.Equal(t, 1, report.Errors)
	require.Len(t, tel.Reports("warning", report_scanner_scan_term), 1)
	// 2 full pages of laptop, then drill
	require.Equal(t, 6, report.LotsFound)
	require.Equal(t, 2, searcher.calls["laptop"])

	require.NotEmpty(t, report.Opportunities)
	require.Equal(t, "cheap", report.Opportunities[0].Lot.ID)
	for i := 1; i < len(report.Opportunities); i++ {
		require.GreaterOrEqual(t, report.Opportunities[i-1].Score, report.Opportunities[i].Score)
	}
	for _, o := range report.Opportunities {
		require.NotEqual(t, "far", o.Lot.ID)
		require.GreaterOrEqual(t, o.Score, 20.0)
		require.Equal(t, report.ScanID, o.ScanID)
	}
	require.Equal(t, len(report.Opportunities), report.LotsKept)

	stored, err := st.TopOpportunities(ctx, 0, 10, now)
	require.NoError(t, err)
	require.Len(t, stored, report.LotsKept)

	// filtered lots are stored even when they score too low
	_, err = st.GetLot(ctx, "pricey")
	require.NoError(t, err)
	_, err = st.GetLot(ctx, "far")
	require.ErrorIs(t, err, store.ErrLotNotFound)

	snap, err := st.LatestSnapshot(ctx, "cheap")
	require.NoError(t, err)
	require.True(t, snap.CurrentBid.Equal(decimal.NewFromInt(20)))

	scans, err := st.Scans(ctx, 5)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	require.Equal(t, report.ScanID, scans[0].ID)
	require.Equal(t, 1, scans[0].Errors)
	require.Equal(t, 6, scans[0].LotsFound)
	require.False(t, scans[0].FinishedAt.IsZero())
}

func TestScanTypesense(t *testing.T) {
	ctx := testutil.Context(t)
	primary := &stubSearcher{}
	typesense := &stubSearcher{pages: map[string][][]lots.Lot{
		"tv": {{lot("ts-1", "Anderson", "500", "5", 0)}},
	}}

	scanner, _, _ := newScanner(t, Sources{Search: primary})
	_, err := scanner.Scan(ctx, ScanOptions{Terms: []string{"tv"}, UseTypesense: true})
	require.ErrorIs(t, err, ErrNoTypesense)

	scanner, _, _ = newScanner(t, Sources{Search: primary, Typesense: typesense})
	report, err := scanner.Scan(ctx, ScanOptions{Terms: []string{"tv"}, UseTypesense: true})
	require.NoError(t, err)
	require.Equal(t, 1, report.LotsFound)
	require.Zero(t, primary.calls["tv"])
}

func TestScanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(testutil.Context(t))
	defer cancel()

	searcher := &stubSearcher{
		pages:    map[string][][]lots.Lot{"tv": {fullPage("a", 2), fullPage("b", 2)}},
		onSearch: cancel,
	}
	scanner, st, _ := newScanner(t, Sources{Search: searcher})
	_, err := scanner.Scan(ctx, ScanOptions{Terms: []string{"tv"}, PerPage: 2, Delay: time.Hour})
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, 1, searcher.calls["tv"])

	scans, err := st.Scans(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	require.False(t, scans[0].FinishedAt.IsZero())
}

func TestScanFlashDeals(t *testing.T) {
	ctx := testutil.Context(t)
	faked := macbid.Faked{Pages: 1, Now: func() time.Time { return now }}
	scanner, st, _ := newScanner(t, Sources{Search: faked, Flash: faked})

	report, err := scanner.ScanFlashDeals(ctx, nil)
	require.NoError(t, err)
	require.Len(t, report.Deals, 5)
	for i := 1; i < len(report.Deals); i++ {
		require.False(t, report.Deals[i].EndsAt.Before(report.Deals[i-1].EndsAt))
	}

	deals, err := st.FlashDeals(ctx, now)
	require.NoError(t, err)
	require.Len(t, deals, 5)

	scans, err := st.Scans(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, store.ScanKindFlash, scans[0].Kind)
	require.Equal(t, 5, scans[0].LotsKept)
}

type failingFlash struct {
	before func()
}

func (f failingFlash) TurboClock(ctx context.Context) ([]macbid.FlashDeal, error) {
	f.before()
	return nil, macbid.ErrServer
}

func TestScanFlashDealsReportsFinishError(t *testing.T) {
	ctx := testutil.Context(t)
	sqlDB := testutil.OpenDB(t, db.Schema)
	st := store.NewStore(sqlDB)
	tel := telemetry.NewTestAPI(t)
	// the database goes away between BeginScan and FinishScan
	flash := failingFlash{before: func() { sqlDB.Close() }}
	scanner := NewScanner(Sources{Flash: flash}, st, scoring.NewScorer(scoring.Weights{}, nil), chrono.FixedImpl{At: now}, tel)

	_, err := scanner.ScanFlashDeals(ctx, nil)
	require.ErrorIs(t, err, macbid.ErrServer)
	require.Len(t, tel.Reports("warning", report_scanner_flash), 1)
	require.Len(t, tel.Reports("broken", report_scanner_persist), 1)
}

func TestResolveTerms(t *testing.T) {
	terms, err := ResolveTerms([]string{" Laptop ", "drill"}, []string{"tools"})
	require.NoError(t, err)
	require.Equal(t, "laptop", terms[0])
	require.Equal(t, "drill", terms[1])
	require.Len(t, terms, 1+len(Terms["tools"]))

	_, err = ResolveTerms(nil, []string{"furniture"})
	require.Error(t, err)

	all, err := ResolveTerms(nil, nil)
	require.NoError(t, err)
	require.Greater(t, len(all), len(Terms["electronics"]))
}
