package monitor

import (
	"context"
	"lotwatch/internal/components/telemetry"
	"lotwatch/internal/lots"
	"lotwatch/internal/macbid"
	"lotwatch/internal/store"
	"lotwatch/internal/store/db"
	"lotwatch/lib/testutil"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *testClock) Location() *time.Location {
	return time.UTC
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

type fakeFetcher struct {
	mu    sync.Mutex
	lots  map[string]lots.Lot
	calls int
}

func (f *fakeFetcher) Lot(ctx context.Context, id string) (lots.Lot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	lot, ok := f.lots[id]
	if !ok {
		return lots.Lot{}, macbid.ErrNotFound
	}
	return lot, nil
}

func (f *fakeFetcher) set(lot lots.Lot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lots[lot.ID] = lot
}

type collectSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *collectSink) Notify(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *collectSink) kinds() []EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventKind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

type fixture struct {
	store   store.Store
	fetcher *fakeFetcher
	clock   *testClock
	sink    *collectSink
	tel     telemetry.TestAPI
}

func newFixture(t *testing.T) fixture {
	return fixture{
		store:   store.NewStore(testutil.OpenDB(t, db.Schema)),
		fetcher: &fakeFetcher{lots: map[string]lots.Lot{}},
		clock:   &testClock{at: t0},
		sink:    &collectSink{},
		tel:     telemetry.NewTestAPI(t),
	}
}

func (f fixture) monitor(opts Options) *Monitor {
	return NewMonitor(f.fetcher, f.store, f.sink, f.clock, f.tel, opts)
}

func TestRunOnceEvents(t *testing.T) {
	ctx := testutil.Context(t)
	f := newFixture(t)
	m := f.monitor(Options{ClosingSoon: 15 * time.Minute})

	require.NoError(t, f.store.Watch(ctx, store.WatchEntry{LotID: "1", MaxBid: dec(100), AddedAt: t0}))
	require.NoError(t, f.store.Watch(ctx, store.WatchEntry{LotID: "missing", AddedAt: t0}))

	lot := lots.Lot{
		ID:          "1",
		Title:       "Dyson V15",
		Location:    "Greenville",
		RetailPrice: dec(700),
		CurrentBid:  dec(50),
		BidCount:    2,
		ClosesAt:    t0.Add(48 * time.Hour),
	}
	f.fetcher.set(lot)

	// the first observation only establishes a baseline
	result, err := m.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Polled)
	require.Equal(t, 1, result.Changed)
	require.Equal(t, 1, result.Errors)
	require.Empty(t, result.Events)
	require.Len(t, f.tel.Reports("warning", report_monitor_poll_lot), 1)

	stored, err := f.store.GetLot(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "Dyson V15", stored.Title)

	f.clock.Advance(time.Minute)
	lot.CurrentBid = dec(120)
	lot.BidCount = 5
	f.fetcher.set(lot)
	result, err = m.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, []EventKind{EventBid, EventOverMax}, kinds(result.Events))
	require.True(t, result.Events[0].PreviousBid.Equal(dec(50)))
	require.True(t, result.Events[1].MaxBid.Equal(dec(100)))

	// nothing changed, nothing to say
	f.clock.Advance(time.Minute)
	result, err = m.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, result.Changed)
	require.Empty(t, result.Events)

	// already over the max, so a higher bid is only a bid event
	f.clock.Advance(time.Minute)
	lot.CurrentBid = dec(130)
	lot.BidCount = 6
	lot.ClosesAt = f.clock.Now().Add(10 * time.Minute)
	f.fetcher.set(lot)
	result, err = m.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, []EventKind{EventBid, EventClosing}, kinds(result.Events))

	// closing fires once per lot
	f.clock.Advance(time.Minute)
	result, err = m.RunOnce(ctx)
	require.NoError(t, err)
	require.Empty(t, result.Events)

	f.clock.Advance(time.Minute)
	lot.IsClosed = true
	f.fetcher.set(lot)
	result, err = m.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, []EventKind{EventClosed}, kinds(result.Events))

	require.Equal(t, []EventKind{EventBid, EventOverMax, EventBid, EventClosing, EventClosed}, f.sink.kinds())

	history, err := f.store.History(ctx, "1")
	require.NoError(t, err)
	require.Len(t, history, 4)
}

type fakeCustomer struct {
	mu     sync.Mutex
	active []macbid.CustomerLot
}

func (c *fakeCustomer) HasToken() bool {
	return true
}

func (c *fakeCustomer) ActiveAuctions(ctx context.Context, customerID string) ([]macbid.CustomerLot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]macbid.CustomerLot(nil), c.active...), nil
}

func TestRunOnceCustomerOutbid(t *testing.T) {
	ctx := testutil.Context(t)
	f := newFixture(t)
	customer := &fakeCustomer{active: []macbid.CustomerLot{{
		Lot:       lots.Lot{ID: "c1", Title: "Kayak", CurrentBid: dec(40), BidCount: 3},
		MyMaxBid:  dec(60),
		IsWinning: true,
	}}}
	m := f.monitor(Options{Customer: customer, CustomerID: "42"})

	result, err := m.RunOnce(ctx)
	require.NoError(t, err)
	require.Empty(t, result.Events)

	f.clock.Advance(time.Minute)
	customer.mu.Lock()
	customer.active[0].Lot.CurrentBid = dec(65)
	customer.active[0].Lot.BidCount = 5
	customer.active[0].IsWinning = false
	customer.mu.Unlock()

	result, err = m.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, []EventKind{EventBid, EventOutbid}, kinds(result.Events))
	require.Equal(t, SourceCustomer, result.Events[1].Source)

	stored, ok, err := f.store.CustomerLot(ctx, "42", "c1")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, stored.IsWinning)
}

type fakeStream struct {
	updates []macbid.BidUpdate
	ids     []string
}

func (s *fakeStream) Listen(ctx context.Context, lotIDs []string) (<-chan macbid.BidUpdate, error) {
	s.ids = lotIDs
	out := make(chan macbid.BidUpdate, len(s.updates))
	for _, u := range s.updates {
		out <- u
	}
	close(out)
	return out, nil
}

func TestStream(t *testing.T) {
	ctx := testutil.Context(t)
	f := newFixture(t)
	m := f.monitor(Options{})

	err := m.Stream(ctx, &fakeStream{})
	require.ErrorIs(t, err, ErrEmptyWatchlist)

	require.NoError(t, f.store.Watch(ctx, store.WatchEntry{LotID: "9", AddedAt: t0}))
	require.NoError(t, f.store.UpsertLots(ctx, []lots.Lot{{ID: "9", Title: "Traeger grill"}}, t0))

	stream := &fakeStream{updates: []macbid.BidUpdate{
		{LotID: "9", CurrentBid: dec(10), BidCount: 1, UpdatedAt: t0.Add(time.Second)},
		{LotID: "9", CurrentBid: dec(15), BidCount: 2, UpdatedAt: t0.Add(3 * time.Second)},
		// arrives late and must not overwrite the newer bid
		{LotID: "9", CurrentBid: dec(12), BidCount: 1, UpdatedAt: t0.Add(2 * time.Second)},
	}}
	err = m.Stream(ctx, stream)
	require.NoError(t, err)
	require.Equal(t, []string{"9"}, stream.ids)

	require.Equal(t, []EventKind{EventBid}, f.sink.kinds())
	require.Equal(t, "Traeger grill", f.sink.events[0].Title)

	latest, err := f.store.LatestSnapshot(ctx, "9")
	require.NoError(t, err)
	require.True(t, latest.CurrentBid.Equal(dec(15)))
}

func TestRunLoops(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Watch(testutil.Context(t), store.WatchEntry{LotID: "1", AddedAt: t0}))
	f.fetcher.set(lots.Lot{ID: "1", CurrentBid: dec(1)})
	m := f.monitor(Options{Interval: 5 * time.Millisecond, Jitter: time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := m.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	f.fetcher.mu.Lock()
	defer f.fetcher.mu.Unlock()
	require.GreaterOrEqual(t, f.fetcher.calls, 2)
}

func TestEventSummary(t *testing.T) {
	e := Event{Kind: EventBid, LotID: "1", PreviousBid: dec(5), CurrentBid: dec(7), BidCount: 3}
	require.Equal(t, "lot 1: bid $5.00 -> $7.00 (3 bids)", e.Summary())

	e = Event{Kind: EventClosing, Title: "Grill", CurrentBid: dec(7), ObservedAt: t0, ClosesAt: t0.Add(10 * time.Minute)}
	require.Equal(t, "Grill: closes in 10m0s at $7.00", e.Summary())
}

func TestFetcherChain(t *testing.T) {
	ctx := context.Background()
	missing := LotFetcherFunc(func(ctx context.Context, id string) (lots.Lot, error) {
		return lots.Lot{}, macbid.ErrNotFound
	})
	found := LotFetcherFunc(func(ctx context.Context, id string) (lots.Lot, error) {
		return lots.Lot{ID: id, Source: lots.SourceNextData}, nil
	})

	lot, err := FetcherChain{missing, found}.Lot(ctx, "4")
	require.NoError(t, err)
	require.Equal(t, lots.SourceNextData, lot.Source)

	_, err = FetcherChain{missing, missing}.Lot(ctx, "4")
	require.ErrorIs(t, err, macbid.ErrNotFound)

	_, err = FetcherChain{}.Lot(ctx, "4")
	require.Error(t, err)
}
