// Package probe checks that the undocumented endpoints still answer the way
// the clients expect and keeps a record of it.
package probe

import (
	"context"
	"errors"
	"lotwatch/internal/components/assert"
	"lotwatch/internal/components/chrono"
	"lotwatch/internal/components/telemetry"
	"lotwatch/internal/macbid"
	"lotwatch/internal/store"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("internal/probe")

const (
	report_prober_run    = "prober.run"
	report_prober_record = "prober.record"
)

const (
	EndpointSearch         = "search"
	EndpointAuctionSummary = "auctionsummary"
	EndpointTurboClock     = "turbo-clock"
	EndpointTypesense      = "typesense"
	EndpointNextBuildID    = "next-build-id"
)

// Check calls one endpoint, a nil error means it answered as expected.
type Check struct {
	Endpoint string
	Run      func(ctx context.Context) error
}

// Targets are the clients to probe, nil clients are skipped.
type Targets struct {
	Client    *macbid.Client
	Typesense *macbid.Typesense
	NextData  *macbid.NextData
}

// Checks returns a check for every endpoint of the configured clients.
func Checks(targets Targets) []Check {
	var out []Check
	if targets.Client != nil {
		client := targets.Client
		out = append(out,
			Check{Endpoint: EndpointSearch, Run: func(ctx context.Context) error {
				_, err := client.Search(ctx, macbid.SearchParams{Term: "laptop", Page: 1, PerPage: 1})
				return err
			}},
			Check{Endpoint: EndpointAuctionSummary, Run: func(ctx context.Context) error {
				_, err := client.AuctionSummary(ctx)
				return err
			}},
			Check{Endpoint: EndpointTurboClock, Run: func(ctx context.Context) error {
				_, err := client.TurboClock(ctx)
				return err
			}},
		)
	}
	if targets.Typesense != nil {
		typesense := targets.Typesense
		out = append(out, Check{Endpoint: EndpointTypesense, Run: func(ctx context.Context) error {
			_, err := typesense.Search(ctx, macbid.SearchParams{Term: "laptop", Page: 1, PerPage: 1})
			return err
		}})
	}
	if targets.NextData != nil {
		nextData := targets.NextData
		out = append(out, Check{Endpoint: EndpointNextBuildID, Run: func(ctx context.Context) error {
			_, err := nextData.BuildID(ctx)
			return err
		}})
	}
	return out
}

// StatusOf is the http status behind `err`: 200 for nil, the response
// status for a StatusError and 0 when no response was received.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var statusErr *macbid.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}
	return 0
}

type Prober struct {
	checks []Check
	store  store.Store
	clock  chrono.API
	tel    telemetry.API
	// Timeout bounds every check, zero means 30 seconds.
	Timeout time.Duration
}

func NewProber(checks []Check, st store.Store, clock chrono.API, tel telemetry.API) Prober {
	assert.NotNil(clock, "clock")
	assert.NotNil(tel, "telemetry")
	return Prober{
		checks: checks,
		store:  st,
		clock:  clock,
		tel:    telemetry.NewScopedAPI("probe", tel),
	}
}

// Run calls every check in order, one at a time so the probes do not trip
// the rate limits they are measuring, and stores each result.
func (p Prober) Run(ctx context.Context) ([]store.Probe, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = time.Second * 30
	}

	results := make([]store.Probe, 0, len(p.checks))
	for _, check := range p.checks {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}

		checkCtx, span := tracer.Start(
			ctx, "Check",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attribute.String("endpoint", check.Endpoint)),
		)
		checkCtx, cancel := context.WithTimeout(checkCtx, timeout)
		probedAt := p.clock.Now()
		start := time.Now()
		err := check.Run(checkCtx)
		latency := time.Since(start)
		cancel()
		span.SetAttributes(attribute.Int("status", StatusOf(err)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "probe failed")
		}
		span.End()

		result := store.Probe{
			Endpoint: check.Endpoint,
			Status:   StatusOf(err),
			Latency:  latency,
			ProbedAt: probedAt,
		}
		if err != nil {
			result.Error = err.Error()
			p.tel.ReportWarning(report_prober_run, check.Endpoint, err)
		}

		err = p.store.RecordProbe(ctx, result)
		if err != nil {
			p.tel.ReportBroken(report_prober_record, check.Endpoint, err)
		}
		results = append(results, result)
	}
	return results, nil
}
