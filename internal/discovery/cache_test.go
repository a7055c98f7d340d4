package discovery

import (
	"fmt"
	"lotwatch/internal/components/chrono"
	"lotwatch/internal/components/telemetry"
	"lotwatch/internal/lots"
	"lotwatch/internal/macbid"
	"lotwatch/internal/scoring"
	"lotwatch/internal/store"
	"lotwatch/internal/store/db"
	"lotwatch/lib/testutil"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCachedScanKeepsNewerBid(t *testing.T) {
	ctx := testutil.Context(t)
	closesAt := now.Add(48 * time.Hour).Unix()

	var calls atomic.Int32
	var bid atomic.Int32
	bid.Store(10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("content-type", "application/json")
		fmt.Fprintf(w, `[{"lot_id": "x", "product_name": "Dyson vacuum", "retail_price": 500,
			"current_bid": %d, "bid_count": 1, "auction_location": "Greenville", "closes_at": %d}]`,
			bid.Load(), closesAt)
	}))
	t.Cleanup(server.Close)

	cache, err := macbid.OpenResponseCache("", time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	var fetchNow atomic.Int64
	fetchNow.Store(now.Unix())
	client, err := macbid.NewClient(macbid.ClientOptions{
		Session: macbid.SessionOptions{
			BaseURL:           server.URL,
			RequestsPerSecond: 1000,
			Burst:             1000,
			Retries:           -1,
		},
		Cache: cache,
		Now:   func() time.Time { return time.Unix(fetchNow.Load(), 0).UTC() },
	}, telemetry.NewTestAPI(t))
	require.NoError(t, err)

	st := store.NewStore(testutil.OpenDB(t, db.Schema))
	scanAt := func(at time.Time) {
		t.Helper()
		scanner := NewScanner(Sources{Search: client}, st, scoring.NewScorer(scoring.Weights{}, nil), chrono.FixedImpl{At: at}, telemetry.NewTestAPI(t))
		_, err := scanner.Scan(ctx, ScanOptions{
			Terms:     []string{"dyson"},
			MaxPages:  1,
			Locations: lots.SCLocations,
		})
		require.NoError(t, err)
	}

	scanAt(now)
	rec, err := st.GetLot(ctx, "x")
	require.NoError(t, err)
	require.True(t, rec.CurrentBid.Equal(decimal.NewFromInt(10)))

	// the watcher sees a newer bid after the search page was cached
	observed := now.Add(5 * time.Minute)
	newer := lots.Lot{ID: "x", CurrentBid: decimal.NewFromInt(25), BidCount: 4, Source: lots.SourceNextData}
	require.NoError(t, st.UpsertLots(ctx, []lots.Lot{newer}, observed))
	changed, _, err := st.RecordSnapshot(ctx, store.Snapshot{
		LotID: "x", ObservedAt: observed, CurrentBid: newer.CurrentBid, BidCount: newer.BidCount,
	})
	require.NoError(t, err)
	require.True(t, changed)

	bid.Store(11)
	fetchNow.Store(now.Add(10 * time.Minute).Unix())
	scanAt(now.Add(10 * time.Minute))
	require.Equal(t, int32(1), calls.Load(), "second scan is served from the cache")

	latest, err := st.LatestSnapshot(ctx, "x")
	require.NoError(t, err)
	require.True(t, latest.CurrentBid.Equal(decimal.NewFromInt(25)), latest.CurrentBid.String())
	require.Equal(t, 4, latest.BidCount)
	require.Equal(t, observed.Unix(), latest.ObservedAt.Unix())

	rec, err = st.GetLot(ctx, "x")
	require.NoError(t, err)
	require.True(t, rec.CurrentBid.Equal(decimal.NewFromInt(25)), rec.CurrentBid.String())
	require.Equal(t, 4, rec.BidCount)
	require.Equal(t, observed.Unix(), rec.LastSeen.Unix())
	require.Equal(t, "Dyson vacuum", rec.Title)
}
