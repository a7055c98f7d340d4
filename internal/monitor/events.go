package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type EventKind string

const (
	// EventBid is emitted when the current bid or bid count of a lot changed.
	EventBid EventKind = "bid"
	// EventOutbid is emitted when the customer lost the lead on a lot.
	EventOutbid EventKind = "outbid"
	// EventOverMax is emitted when the bid crosses the watchlist max bid.
	EventOverMax EventKind = "over_max"
	// EventClosing is emitted once per watched lot when it gets close to
	// closing.
	EventClosing EventKind = "closing"
	EventClosed  EventKind = "closed"
)

// Sources of an observation.
const (
	SourcePoll     = "poll"
	SourceCustomer = "customer"
	SourceStream   = "stream"
)

type Event struct {
	Kind             EventKind       `json:"kind"`
	LotID            string          `json:"lot_id"`
	Title            string          `json:"title,omitempty"`
	Location         string          `json:"location,omitempty"`
	CurrentBid       decimal.Decimal `json:"current_bid"`
	PreviousBid      decimal.Decimal `json:"previous_bid"`
	BidCount         int             `json:"bid_count"`
	PreviousBidCount int             `json:"previous_bid_count"`
	MaxBid           decimal.Decimal `json:"max_bid"`
	ClosesAt         time.Time       `json:"closes_at,omitzero"`
	ObservedAt       time.Time       `json:"observed_at"`
	Source           string          `json:"source"`
}

// Summary is a one line human readable description of the event.
func (e Event) Summary() string {
	name := e.Title
	if name == "" {
		name = "lot " + e.LotID
	}
	switch e.Kind {
	case EventBid:
		return fmt.Sprintf("%s: bid $%s -> $%s (%d bids)", name, e.PreviousBid.StringFixed(2), e.CurrentBid.StringFixed(2), e.BidCount)
	case EventOutbid:
		return fmt.Sprintf("%s: you were outbid, current bid $%s", name, e.CurrentBid.StringFixed(2))
	case EventOverMax:
		return fmt.Sprintf("%s: bid $%s is over your max of $%s", name, e.CurrentBid.StringFixed(2), e.MaxBid.StringFixed(2))
	case EventClosing:
		return fmt.Sprintf("%s: closes in %s at $%s", name, e.ClosesAt.Sub(e.ObservedAt).Round(time.Minute), e.CurrentBid.StringFixed(2))
	case EventClosed:
		return fmt.Sprintf("%s: closed at $%s", name, e.CurrentBid.StringFixed(2))
	}
	return fmt.Sprintf("%s: %s", name, e.Kind)
}

// Sink receives every event the monitor emits.
type Sink interface {
	Notify(ctx context.Context, event Event) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}
