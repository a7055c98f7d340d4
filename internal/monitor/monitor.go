package monitor

import (
	"context"
	"errors"
	"fmt"
	"lotwatch/internal/components/assert"
	"lotwatch/internal/components/chrono"
	"lotwatch/internal/components/telemetry"
	"lotwatch/internal/lots"
	"lotwatch/internal/macbid"
	"lotwatch/internal/store"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("internal/monitor")
	meter  = otel.Meter("internal/monitor")
)

const (
	report_monitor_poll_lot  = "monitor.poll-lot"
	report_monitor_customer  = "monitor.customer"
	report_monitor_observe   = "monitor.observe"
	report_monitor_notify    = "monitor.notify"
	report_monitor_pass      = "monitor.pass"
	report_monitor_stream    = "monitor.stream"
	report_monitor_bid_count = "monitor.bid-changes"
)

var ErrEmptyWatchlist = errors.New("watchlist is empty")

type LotFetcher interface {
	Lot(ctx context.Context, id string) (lots.Lot, error)
}

// CustomerSource lists the lots the signed in customer is bidding on.
type CustomerSource interface {
	ActiveAuctions(ctx context.Context, customerID string) ([]macbid.CustomerLot, error)
	HasToken() bool
}

type BidStream interface {
	Listen(ctx context.Context, lotIDs []string) (<-chan macbid.BidUpdate, error)
}

type Options struct {
	// Interval between passes, zero means a minute.
	Interval time.Duration
	// Jitter is the most random delay added to each interval.
	Jitter time.Duration
	// ClosingSoon is how long before closing EventClosing fires, zero means
	// 15 minutes.
	ClosingSoon time.Duration
	// Customer and CustomerID are optional, with both set (and a token on
	// the customer source) every pass also polls the customer's active
	// auctions.
	Customer   CustomerSource
	CustomerID string
}

type Monitor struct {
	fetcher LotFetcher
	store   store.Store
	sink    Sink
	clock   chrono.API
	tel     telemetry.API
	opts    Options

	bidChanges metric.Int64Counter
}

// NewMonitor builds a monitor delivering events to `sink`, use a fan-out
// sink to reach several.
func NewMonitor(fetcher LotFetcher, st store.Store, sink Sink, clock chrono.API, tel telemetry.API, opts Options) *Monitor {
	assert.NotNil(fetcher, "lot fetcher")
	assert.NotNil(sink, "sink")
	assert.NotNil(clock, "clock")
	assert.NotNil(tel, "telemetry")

	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.ClosingSoon <= 0 {
		opts.ClosingSoon = 15 * time.Minute
	}

	bidChanges, err := meter.Int64Counter(
		"bid_changes_total",
		metric.WithDescription("bid snapshots that differed from the previous one"),
	)
	if err != nil {
		panic(err)
	}

	return &Monitor{
		fetcher:    fetcher,
		store:      st,
		sink:       sink,
		clock:      clock,
		tel:        telemetry.NewScopedAPI("monitor", tel),
		opts:       opts,
		bidChanges: bidChanges,
	}
}

// PassResult summarizes one polling pass.
type PassResult struct {
	Polled  int
	Changed int
	Errors  int
	Events  []Event
}

func (r *PassResult) merge(events []Event, changed bool) {
	r.Polled++
	if changed {
		r.Changed++
	}
	r.Events = append(r.Events, events...)
}

type observation struct {
	lot        lots.Lot
	observedAt time.Time
	watch      *store.WatchEntry
	source     string
	// storeLot is false for partial lots (stream updates) that only carry
	// bid state.
	storeLot bool
}

func (m *Monitor) newEvent(kind EventKind, obs observation, previous store.Snapshot) Event {
	event := Event{
		Kind:             kind,
		LotID:            obs.lot.ID,
		Title:            obs.lot.Title,
		Location:         obs.lot.Location,
		CurrentBid:       obs.lot.CurrentBid,
		PreviousBid:      previous.CurrentBid,
		BidCount:         obs.lot.BidCount,
		PreviousBidCount: previous.BidCount,
		ClosesAt:         obs.lot.ClosesAt,
		ObservedAt:       obs.observedAt,
		Source:           obs.source,
	}
	if obs.watch != nil {
		event.MaxBid = obs.watch.MaxBid
	}
	return event
}

// observe stores a bid observation and returns the events it causes.
func (m *Monitor) observe(ctx context.Context, obs observation) ([]Event, bool, error) {
	if obs.storeLot {
		err := m.store.UpsertLots(ctx, []lots.Lot{obs.lot}, obs.observedAt)
		if err != nil {
			return nil, false, fmt.Errorf("upsert lot: %w", err)
		}
	}

	changed, previous, err := m.store.RecordSnapshot(ctx, store.Snapshot{
		LotID:      obs.lot.ID,
		ObservedAt: obs.observedAt,
		CurrentBid: obs.lot.CurrentBid,
		BidCount:   obs.lot.BidCount,
		IsClosed:   obs.lot.IsClosed,
	})
	if err != nil {
		return nil, false, fmt.Errorf("record snapshot: %w", err)
	}
	hadPrevious := !previous.ObservedAt.IsZero()

	var events []Event
	if changed {
		m.bidChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("source", obs.source)))

		bidMoved := !obs.lot.CurrentBid.Equal(previous.CurrentBid) || obs.lot.BidCount != previous.BidCount
		if hadPrevious && bidMoved {
			events = append(events, m.newEvent(EventBid, obs, previous))
		}
		if obs.lot.IsClosed && (!hadPrevious || !previous.IsClosed) {
			events = append(events, m.newEvent(EventClosed, obs, previous))
		}
		if obs.watch != nil && obs.watch.MaxBid.IsPositive() &&
			obs.lot.CurrentBid.GreaterThan(obs.watch.MaxBid) &&
			(!hadPrevious || previous.CurrentBid.LessThanOrEqual(obs.watch.MaxBid)) {
			events = append(events, m.newEvent(EventOverMax, obs, previous))
		}
	}

	if obs.watch != nil && !obs.watch.ClosingNotified && !obs.lot.IsClosed && !obs.lot.ClosesAt.IsZero() {
		left := obs.lot.ClosesAt.Sub(obs.observedAt)
		if left > 0 && left <= m.opts.ClosingSoon {
			err := m.store.MarkClosingNotified(ctx, obs.lot.ID)
			if err != nil {
				return events, changed, fmt.Errorf("mark closing notified: %w", err)
			}
			obs.watch.ClosingNotified = true
			events = append(events, m.newEvent(EventClosing, obs, previous))
		}
	}
	return events, changed, nil
}

func (m *Monitor) notify(ctx context.Context, events []Event) {
	for _, event := range events {
		err := m.sink.Notify(ctx, event)
		if err != nil {
			m.tel.ReportWarning(report_monitor_notify, event.LotID, event.Kind, err)
		}
	}
}

func (m *Monitor) pollWatchlist(ctx context.Context, result *PassResult) (map[string]*store.WatchEntry, error) {
	entries, err := m.store.Watchlist(ctx)
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}

	watched := make(map[string]*store.WatchEntry, len(entries))
	for i := range entries {
		entry := &entries[i]
		watched[entry.LotID] = entry

		lot, err := m.fetcher.Lot(ctx, entry.LotID)
		if err != nil {
			m.tel.ReportWarning(report_monitor_poll_lot, entry.LotID, err)
			result.Errors++
			continue
		}
		if lot.ID == "" {
			lot.ID = entry.LotID
		}
		events, changed, err := m.observe(ctx, observation{
			lot:        lot,
			observedAt: m.clock.Now(),
			watch:      entry,
			source:     SourcePoll,
			storeLot:   true,
		})
		if err != nil {
			m.tel.ReportWarning(report_monitor_observe, entry.LotID, err)
			result.Errors++
			continue
		}
		result.merge(events, changed)
	}
	return watched, nil
}

func (m *Monitor) pollCustomer(ctx context.Context, watched map[string]*store.WatchEntry, result *PassResult) error {
	if m.opts.Customer == nil || m.opts.CustomerID == "" || !m.opts.Customer.HasToken() {
		return nil
	}
	active, err := m.opts.Customer.ActiveAuctions(ctx, m.opts.CustomerID)
	if err != nil {
		return fmt.Errorf("active auctions: %w", err)
	}

	now := m.clock.Now()
	stored := make([]store.CustomerLot, 0, len(active))
	for _, cl := range active {
		if cl.Lot.ID == "" {
			continue
		}
		stored = append(stored, store.CustomerLot{
			LotID:     cl.Lot.ID,
			MyMaxBid:  cl.MyMaxBid,
			IsWinning: cl.IsWinning,
		})

		previous, known, err := m.store.CustomerLot(ctx, m.opts.CustomerID, cl.Lot.ID)
		if err != nil {
			m.tel.ReportWarning(report_monitor_customer, cl.Lot.ID, err)
			result.Errors++
			continue
		}

		obs := observation{
			lot:        cl.Lot,
			observedAt: now,
			watch:      watched[cl.Lot.ID],
			source:     SourceCustomer,
			storeLot:   true,
		}
		var events []Event
		changed := false
		// lots on the watchlist were already observed this pass
		if obs.watch == nil {
			events, changed, err = m.observe(ctx, obs)
			if err != nil {
				m.tel.ReportWarning(report_monitor_observe, cl.Lot.ID, err)
				result.Errors++
				continue
			}
		}
		if known && previous.IsWinning && !cl.IsWinning {
			events = append(events, m.newEvent(EventOutbid, obs, store.Snapshot{}))
		}
		result.merge(events, changed)
	}

	err = m.store.UpsertCustomerLots(ctx, m.opts.CustomerID, stored, now)
	if err != nil {
		return fmt.Errorf("store customer lots: %w", err)
	}
	return nil
}

// RunOnce polls every watched lot and, when configured, the customer's
// active auctions once. Per lot failures are reported and counted, events
// are sent to every sink before returning.
func (m *Monitor) RunOnce(ctx context.Context) (PassResult, error) {
	ctx, span := tracer.Start(ctx, "RunOnce")
	defer span.End()

	var result PassResult
	watched, err := m.pollWatchlist(ctx, &result)
	if err != nil {
		return result, err
	}
	err = m.pollCustomer(ctx, watched, &result)
	if err != nil {
		m.tel.ReportWarning(report_monitor_customer, err)
		result.Errors++
	}

	span.SetAttributes(
		attribute.Int("polled", result.Polled),
		attribute.Int("changed", result.Changed),
		attribute.Int("events", len(result.Events)),
	)
	m.tel.ReportCount(report_monitor_bid_count, int64(result.Changed))
	m.notify(ctx, result.Events)
	return result, nil
}

func (m *Monitor) nextDelay() time.Duration {
	delay := m.opts.Interval
	if m.opts.Jitter > 0 {
		delay += rand.N(m.opts.Jitter)
	}
	return delay
}

// Run polls immediately and then every Interval plus jitter until ctx is
// done. A failed pass is reported and the loop continues.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		_, err := m.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			m.tel.ReportBroken(report_monitor_pass, err)
		}

		timer := time.NewTimer(m.nextDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Stream feeds live bid updates of every watched lot through the same
// snapshot and event path as polling until ctx is done or the stream ends.
func (m *Monitor) Stream(ctx context.Context, stream BidStream) error {
	entries, err := m.store.Watchlist(ctx)
	if err != nil {
		return fmt.Errorf("list watchlist: %w", err)
	}
	if len(entries) == 0 {
		return ErrEmptyWatchlist
	}
	watched := make(map[string]*store.WatchEntry, len(entries))
	ids := make([]string, len(entries))
	for i := range entries {
		watched[entries[i].LotID] = &entries[i]
		ids[i] = entries[i].LotID
	}

	updates, err := stream.Listen(ctx, ids)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	for update := range updates {
		m.handleUpdate(ctx, update, watched)
	}
	return ctx.Err()
}

func (m *Monitor) handleUpdate(ctx context.Context, update macbid.BidUpdate, watched map[string]*store.WatchEntry) {
	lot := lots.Lot{
		ID:         update.LotID,
		CurrentBid: update.CurrentBid,
		BidCount:   update.BidCount,
		IsClosed:   update.IsClosed,
		Source:     lots.SourceFirestore,
	}
	record, err := m.store.GetLot(ctx, update.LotID)
	if err == nil {
		lot.Title = record.Title
		lot.Location = record.Location
		lot.ClosesAt = record.ClosesAt
	}

	observedAt := update.UpdatedAt
	if observedAt.IsZero() {
		observedAt = m.clock.Now()
	}
	events, _, err := m.observe(ctx, observation{
		lot:        lot,
		observedAt: observedAt,
		watch:      watched[update.LotID],
		source:     SourceStream,
	})
	if err != nil {
		m.tel.ReportWarning(report_monitor_stream, update.LotID, err)
		return
	}
	m.notify(ctx, events)
}
