// Package lots holds the Lot domain type and the tolerant decoder for the
// many shapes mac.bid endpoints return lots in.
package lots

import (
	"lotwatch/lib/textutil"
	"time"

	"github.com/shopspring/decimal"
)

// Lot is a single auction item.
type Lot struct {
	ID              string
	AuctionID       string
	LotNumber       string
	Title           string
	Brand           string
	Category        string
	Condition       string
	RetailPrice     decimal.Decimal
	InstantWinPrice decimal.Decimal
	CurrentBid      decimal.Decimal
	BidCount        int
	Location        string
	ImageURL        string
	URL             string
	ClosesAt        time.Time
	IsClosed        bool
	Source          string
	// FetchedAt is when the listing was fetched from mac.bid, zero when
	// unknown. It predates the call for lots served from a response cache.
	FetchedAt time.Time
}

// Sources identify which endpoint a lot was decoded from.
const (
	SourceSearch     = "search"
	SourceTypesense  = "typesense"
	SourceNextData   = "nextdata"
	SourceTurboClock = "turbo_clock"
	SourceCustomer   = "customer"
	SourceFirestore  = "firestore"
	SourceFaked      = "faked"
)

// HasBids reports whether anyone has bid on the lot.
func (l Lot) HasBids() bool {
	return l.BidCount > 0 || l.CurrentBid.IsPositive()
}

// ObservedAt is FetchedAt, or `fallback` when the fetch time is unknown.
func (l Lot) ObservedAt(fallback time.Time) time.Time {
	if l.FetchedAt.IsZero() {
		return fallback
	}
	return l.FetchedAt
}

// ReferencePrice is what the lot would cost right now: the current bid, or
// the instant win price when there is no bid amount.
func (l Lot) ReferencePrice() decimal.Decimal {
	if l.CurrentBid.IsPositive() {
		return l.CurrentBid
	}
	return l.InstantWinPrice
}

// SCLocations are the five South Carolina area warehouses.
var SCLocations = []string{
	"Spartanburg",
	"Greenville",
	"Rock Hill",
	"Gastonia",
	"Anderson",
}

// LocationFilter keeps lots whose location contains one of its entries,
// case-insensitively. An empty filter keeps everything.
type LocationFilter []string

func (f LocationFilter) Match(location string) bool {
	if len(f) == 0 {
		return true
	}
	return textutil.ContainsFold(location, f)
}

func (f LocationFilter) Apply(in []Lot) []Lot {
	if len(f) == 0 {
		return in
	}
	out := make([]Lot, 0, len(in))
	for _, l := range in {
		if f.Match(l.Location) {
			out = append(out, l)
		}
	}
	return out
}

// Dedupe keeps the first lot for every id and drops lots with no id.
func Dedupe(in []Lot) []Lot {
	seen := make(map[string]struct{}, len(in))
	out := make([]Lot, 0, len(in))
	for _, l := range in {
		if l.ID == "" {
			continue
		}
		if _, ok := seen[l.ID]; ok {
			continue
		}
		seen[l.ID] = struct{}{}
		out = append(out, l)
	}
	return out
}
