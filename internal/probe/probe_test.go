package probe

import (
	"context"
	"errors"
	"fmt"
	"lotwatch/internal/components/chrono"
	"lotwatch/internal/components/telemetry"
	"lotwatch/internal/macbid"
	"lotwatch/internal/store"
	"lotwatch/internal/store/db"
	"lotwatch/lib/testutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestStatusOf(t *testing.T) {
	require.Equal(t, 200, StatusOf(nil))
	require.Equal(t, 503, StatusOf(fmt.Errorf("wrapped: %w", &macbid.StatusError{Status: 503})))
	require.Equal(t, 0, StatusOf(errors.New("dial tcp: connection refused")))
}

func TestProberRun(t *testing.T) {
	ctx := testutil.Context(t)
	tel := telemetry.NewTestAPI(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			w.Header().Set("content-type", "application/json")
			fmt.Fprint(w, `{"data": [{"lot_id": 1, "product_name": "Lamp"}], "total": 1}`)
		case "/auctionsummary":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := macbid.NewClient(macbid.ClientOptions{Session: macbid.SessionOptions{
		BaseURL:           server.URL,
		RequestsPerSecond: 1000,
		Burst:             1000,
		Retries:           -1,
	}}, tel)
	require.NoError(t, err)

	st := store.NewStore(testutil.OpenDB(t, db.Schema))
	prober := NewProber(Checks(Targets{Client: client}), st, chrono.FixedImpl{At: t0}, tel)

	results, err := prober.Run(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byEndpoint := map[string]store.Probe{}
	for _, r := range results {
		byEndpoint[r.Endpoint] = r
	}
	require.Equal(t, 200, byEndpoint[EndpointSearch].Status)
	require.Empty(t, byEndpoint[EndpointSearch].Error)
	require.Equal(t, 503, byEndpoint[EndpointAuctionSummary].Status)
	require.Equal(t, 404, byEndpoint[EndpointTurboClock].Status)
	require.NotEmpty(t, byEndpoint[EndpointTurboClock].Error)
	require.Len(t, tel.Reports("warning", report_prober_run), 2)

	stored, err := st.Probes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 3)
}

func TestProberStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	checks := []Check{
		{Endpoint: "a", Run: func(context.Context) error { calls++; cancel(); return nil }},
		{Endpoint: "b", Run: func(context.Context) error { calls++; return nil }},
	}
	st := store.NewStore(testutil.OpenDB(t, db.Schema))
	prober := NewProber(checks, st, chrono.FixedImpl{At: t0}, telemetry.NewTestAPI(t))

	results, err := prober.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
	require.Len(t, results, 1)
}
