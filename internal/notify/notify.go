// Package notify delivers monitor events to people: the console, email and
// anything else implementing monitor.Sink.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"lotwatch/internal/monitor"
	"slices"
)

// Console logs every event through slog.
type Console struct {
	Logger *slog.Logger
}

func NewConsole() Console {
	return Console{Logger: slog.Default()}
}

func (c Console) Notify(ctx context.Context, event monitor.Event) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch event.Kind {
	case monitor.EventOutbid, monitor.EventOverMax, monitor.EventClosing:
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, event.Summary(),
		"kind", event.Kind,
		"lot", event.LotID,
		"bid", event.CurrentBid.StringFixed(2),
		"bids", event.BidCount,
		"source", event.Source,
	)
	return nil
}

// Multi sends every event to each of its sinks, it keeps going when one
// fails and returns the joined errors.
type Multi []monitor.Sink

func (m Multi) Notify(ctx context.Context, event monitor.Event) error {
	var errs []error
	for _, sink := range m {
		err := sink.Notify(ctx, event)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Filter only forwards events of the given kinds.
type Filter struct {
	Kinds []monitor.EventKind
	Sink  monitor.Sink
}

func (f Filter) Notify(ctx context.Context, event monitor.Event) error {
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, event.Kind) {
		return nil
	}
	return f.Sink.Notify(ctx, event)
}
