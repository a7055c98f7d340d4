package discovery

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"lotwatch/internal/components/assert"
	"lotwatch/internal/components/chrono"
	"lotwatch/internal/components/telemetry"
	"lotwatch/internal/lots"
	"lotwatch/internal/macbid"
	"lotwatch/internal/scoring"
	"lotwatch/internal/store"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

var (
	tracer = otel.Tracer("internal/discovery")
	meter  = otel.Meter("internal/discovery")
)

const (
	report_scanner_scan_term = "scanner.scan-term"
	report_scanner_persist   = "scanner.persist"
	report_scanner_flash     = "scanner.flash-deals"
)

// closedSampleLimit is how many closed lots feed the close price prediction.
const closedSampleLimit = 500

var ErrNoTypesense = errors.New("typesense search requested but no typesense client is configured")

type Searcher interface {
	Search(ctx context.Context, params macbid.SearchParams) (macbid.SearchPage, error)
}

type FlashSource interface {
	TurboClock(ctx context.Context) ([]macbid.FlashDeal, error)
}

// Sources are where the scanner reads lots from. Typesense and Flash are
// optional.
type Sources struct {
	Search    Searcher
	Typesense Searcher
	Flash     FlashSource
}

type Scanner struct {
	sources Sources
	store   store.Store
	scorer  scoring.Scorer
	clock   chrono.API
	tel     telemetry.API

	lotsScanned metric.Int64Counter
}

func NewScanner(sources Sources, st store.Store, scorer scoring.Scorer, clock chrono.API, tel telemetry.API) Scanner {
	assert.NotNil(sources.Search, "search source")
	assert.NotNil(clock, "clock")
	assert.NotNil(tel, "telemetry")

	lotsScanned, err := meter.Int64Counter(
		"lots_scanned_total",
		metric.WithDescription("lots returned by search before filtering"),
	)
	if err != nil {
		panic(err)
	}

	return Scanner{
		sources:     sources,
		store:       st,
		scorer:      scorer,
		clock:       clock,
		tel:         telemetry.NewScopedAPI("discovery", tel),
		lotsScanned: lotsScanned,
	}
}

type ScanOptions struct {
	Terms []string
	// MaxPages bounds pagination per term, zero means 5.
	MaxPages int
	// PerPage zero means 48.
	PerPage int
	// Concurrency is how many terms are searched at once, zero means 2.
	Concurrency int
	// Delay is waited between the pages of one term.
	Delay        time.Duration
	Locations    []string
	MinScore     float64
	UseTypesense bool
}

func (o ScanOptions) withDefaults() ScanOptions {
	if o.MaxPages <= 0 {
		o.MaxPages = 5
	}
	if o.PerPage <= 0 {
		o.PerPage = 48
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 2
	}
	return o
}

type ScanReport struct {
	ScanID     string
	StartedAt  time.Time
	FinishedAt time.Time
	Terms      int
	LotsFound  int
	LotsKept   int
	Errors     int
	// Opportunities are sorted by score, best first.
	Opportunities []store.Opportunity
}

func (r ScanReport) record() store.ScanRecord {
	return store.ScanRecord{
		ID:         r.ScanID,
		FinishedAt: r.FinishedAt,
		LotsFound:  r.LotsFound,
		LotsKept:   r.LotsKept,
		Errors:     r.Errors,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// scanTerm paginates one term until a short page, the last page or
// MaxPages. Lots from pages fetched before a failure are still returned.
func (s Scanner) scanTerm(ctx context.Context, searcher Searcher, term string, opts ScanOptions) ([]lots.Lot, error) {
	var out []lots.Lot
	for page := 1; page <= opts.MaxPages; page++ {
		if page > 1 {
			err := sleep(ctx, opts.Delay)
			if err != nil {
				return out, err
			}
		}

		res, err := searcher.Search(ctx, macbid.SearchParams{
			Term:    term,
			Page:    page,
			PerPage: opts.PerPage,
		})
		if err != nil {
			return out, fmt.Errorf("search %q page %d: %w", term, page, err)
		}
		out = append(out, res.Lots...)

		if len(res.Lots) < opts.PerPage {
			break
		}
		if res.Pages > 0 && page >= res.Pages {
			break
		}
	}
	return out, nil
}

func (s Scanner) searchAll(ctx context.Context, searcher Searcher, opts ScanOptions) ([]lots.Lot, int) {
	results := make([][]lots.Lot, len(opts.Terms))
	errCount := 0
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(opts.Concurrency)
	for i, term := range opts.Terms {
		group.Go(func() error {
			found, err := s.scanTerm(groupCtx, searcher, term, opts)
			results[i] = found
			if err != nil {
				s.tel.ReportWarning(report_scanner_scan_term, term, err)
				mu.Lock()
				errCount++
				mu.Unlock()
			}
			return nil
		})
	}
	group.Wait()

	// flattened in term order so dedupe does not depend on scheduling
	var all []lots.Lot
	for _, found := range results {
		all = append(all, found...)
	}
	return all, errCount
}

func sortOpportunities(list []store.Opportunity) {
	slices.SortStableFunc(list, func(a, b store.Opportunity) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Lot.ID, b.Lot.ID)
	})
}

// Scan searches every term, keeps the lots in the requested locations,
// scores them and stores lots, bid snapshots, opportunities and the scan
// row. A failing term is reported and counted, the other terms continue.
func (s Scanner) Scan(ctx context.Context, opts ScanOptions) (ScanReport, error) {
	ctx, span := tracer.Start(ctx, "Scan")
	defer span.End()

	opts = opts.withDefaults()
	if len(opts.Terms) == 0 {
		return ScanReport{}, fmt.Errorf("scan needs at least one term")
	}
	searcher := s.sources.Search
	if opts.UseTypesense {
		if s.sources.Typesense == nil {
			return ScanReport{}, ErrNoTypesense
		}
		searcher = s.sources.Typesense
	}

	report := ScanReport{StartedAt: s.clock.Now(), Terms: len(opts.Terms)}
	scanID, err := s.store.BeginScan(ctx, store.ScanKindSearch, len(opts.Terms), report.StartedAt)
	if err != nil {
		return ScanReport{}, fmt.Errorf("begin scan: %w", err)
	}
	report.ScanID = scanID
	span.SetAttributes(
		attribute.String("scan_id", scanID),
		attribute.Int("terms", len(opts.Terms)),
	)

	found, errCount := s.searchAll(ctx, searcher, opts)
	report.Errors = errCount
	report.LotsFound = len(found)
	s.lotsScanned.Add(ctx, int64(len(found)))
	s.tel.ReportCount(report_scanner_scan_term, int64(len(found)))

	kept := lots.Dedupe(lots.LocationFilter(opts.Locations).Apply(found))
	now := s.clock.Now()

	history, err := s.store.ClosedSamples(ctx, closedSampleLimit)
	if err != nil {
		s.tel.ReportWarning(report_scanner_persist, "closed samples", err)
	}

	for _, lot := range kept {
		if lot.IsClosed {
			continue
		}
		result := s.scorer.Score(lot, now)
		if result.Score < opts.MinScore {
			continue
		}
		report.Opportunities = append(report.Opportunities, store.Opportunity{
			Lot:            lot,
			ScanID:         scanID,
			Score:          result.Score,
			DiscountPct:    result.DiscountPct,
			PredictedClose: scoring.PredictClose(lot, history),
			Reasons:        result.Reasons,
			ScoredAt:       now,
		})
	}
	sortOpportunities(report.Opportunities)
	report.LotsKept = len(report.Opportunities)

	persistErr := s.persist(ctx, kept, report.Opportunities, now)
	if persistErr != nil {
		span.RecordError(persistErr)
		span.SetStatus(codes.Error, persistErr.Error())
	}

	// the scan row is closed even when the scan was cancelled
	report.FinishedAt = s.clock.Now()
	err = s.store.FinishScan(context.WithoutCancel(ctx), report.record())
	if err != nil {
		s.tel.ReportBroken(report_scanner_persist, "finish scan", err)
	}

	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	return report, persistErr
}

func (s Scanner) persist(ctx context.Context, kept []lots.Lot, opportunities []store.Opportunity, now time.Time) error {
	err := s.store.UpsertLots(ctx, kept, now)
	if err != nil {
		return fmt.Errorf("upsert lots: %w", err)
	}
	for _, lot := range kept {
		_, _, err := s.store.RecordSnapshot(ctx, store.Snapshot{
			LotID:      lot.ID,
			ObservedAt: lot.ObservedAt(now),
			CurrentBid: lot.CurrentBid,
			BidCount:   lot.BidCount,
			IsClosed:   lot.IsClosed,
		})
		if err != nil {
			s.tel.ReportWarning(report_scanner_persist, lot.ID, err)
		}
	}
	err = s.store.SaveOpportunities(ctx, opportunities)
	if err != nil {
		return fmt.Errorf("save opportunities: %w", err)
	}
	return nil
}

type FlashReport struct {
	ScanID string
	// Deals are sorted by end time, soonest first.
	Deals []macbid.FlashDeal
}

// ScanFlashDeals stores the current turbo clock lots in the requested
// locations as flash deals.
func (s Scanner) ScanFlashDeals(ctx context.Context, locations []string) (FlashReport, error) {
	ctx, span := tracer.Start(ctx, "ScanFlashDeals")
	defer span.End()

	if s.sources.Flash == nil {
		return FlashReport{}, fmt.Errorf("no flash deal source configured")
	}

	startedAt := s.clock.Now()
	scanID, err := s.store.BeginScan(ctx, store.ScanKindFlash, 0, startedAt)
	if err != nil {
		return FlashReport{}, fmt.Errorf("begin scan: %w", err)
	}
	record := store.ScanRecord{ID: scanID}

	deals, err := s.sources.Flash.TurboClock(ctx)
	if err != nil {
		s.tel.ReportWarning(report_scanner_flash, err)
		record.Errors = 1
		record.FinishedAt = s.clock.Now()
		finishErr := s.store.FinishScan(context.WithoutCancel(ctx), record)
		if finishErr != nil {
			s.tel.ReportBroken(report_scanner_persist, "finish scan", finishErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return FlashReport{ScanID: scanID}, err
	}
	record.LotsFound = len(deals)

	filter := lots.LocationFilter(locations)
	seen := map[string]struct{}{}
	var kept []macbid.FlashDeal
	for _, d := range deals {
		if d.Lot.ID == "" || !filter.Match(d.Lot.Location) {
			continue
		}
		if _, ok := seen[d.Lot.ID]; ok {
			continue
		}
		seen[d.Lot.ID] = struct{}{}
		kept = append(kept, d)
	}
	slices.SortStableFunc(kept, func(a, b macbid.FlashDeal) int {
		return a.EndsAt.Compare(b.EndsAt)
	})
	record.LotsKept = len(kept)

	now := s.clock.Now()
	keptLots := make([]lots.Lot, len(kept))
	stored := make([]store.FlashDeal, len(kept))
	for i, d := range kept {
		keptLots[i] = d.Lot
		stored[i] = store.FlashDeal{
			LotID:           d.Lot.ID,
			InstantWinPrice: d.Lot.InstantWinPrice,
			EndsAt:          d.EndsAt,
		}
	}

	err = s.store.UpsertLots(ctx, keptLots, now)
	if err == nil {
		err = s.store.UpsertFlashDeals(ctx, stored, now)
	}
	if err != nil {
		record.Errors = 1
	}
	record.FinishedAt = s.clock.Now()
	finishErr := s.store.FinishScan(context.WithoutCancel(ctx), record)
	if finishErr != nil {
		s.tel.ReportBroken(report_scanner_persist, "finish scan", finishErr)
	}
	if err != nil {
		return FlashReport{ScanID: scanID, Deals: kept}, fmt.Errorf("store flash deals: %w", err)
	}
	return FlashReport{ScanID: scanID, Deals: kept}, nil
}
