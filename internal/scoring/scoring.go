// Package scoring ranks lots by how good a deal they look like.
package scoring

import (
	"fmt"
	"lotwatch/internal/lots"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// DiscountPct is how far below retail `price` is, as a percentage clamped
// to [0, 100]. It is 0 when retail is not positive.
func DiscountPct(retail, price decimal.Decimal) float64 {
	if !retail.IsPositive() {
		return 0
	}
	pct := retail.Sub(price).Div(retail).Mul(hundred).InexactFloat64()
	return clamp(pct)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type Weights struct {
	Discount    float64 `json:"discount"`
	Brand       float64 `json:"brand"`
	Competition float64 `json:"competition"`
	InstantWin  float64 `json:"instant_win"`
	ClosingSoon float64 `json:"closing_soon"`
}

func DefaultWeights() Weights {
	return Weights{
		Discount:    0.5,
		Brand:       0.2,
		Competition: 0.15,
		InstantWin:  0.1,
		ClosingSoon: 0.05,
	}
}

// IsZero is true for an unset config section.
func (w Weights) IsZero() bool {
	return w == Weights{}
}

// Components are the individual scores, each within [0, 100].
type Components struct {
	Discount    float64
	Brand       float64
	Competition float64
	InstantWin  float64
	ClosingSoon float64
}

type Result struct {
	LotID       string
	Score       float64
	DiscountPct float64
	Brand       string
	Components  Components
	Reasons     []string
}

type Scorer struct {
	Weights Weights
	Brands  BrandMatcher
}

// NewScorer uses the default weights when `weights` is zero and the premium
// brand list when `brands` is empty.
func NewScorer(weights Weights, brands []string) Scorer {
	if weights.IsZero() {
		weights = DefaultWeights()
	}
	if len(brands) == 0 {
		brands = PremiumBrands
	}
	return Scorer{Weights: weights, Brands: NewBrandMatcher(brands)}
}

const (
	closingSoonFull = time.Hour
	closingSoonNone = 24 * time.Hour
)

func closingSoonScore(closesAt, now time.Time) float64 {
	if closesAt.IsZero() {
		return 0
	}
	left := closesAt.Sub(now)
	switch {
	case left <= 0:
		return 0
	case left <= closingSoonFull:
		return 100
	case left >= closingSoonNone:
		return 0
	}
	span := float64(closingSoonNone - closingSoonFull)
	return 100 * float64(closingSoonNone-left) / span
}

func (s Scorer) Score(lot lots.Lot, now time.Time) Result {
	var c Components
	var reasons []string

	// a lot with no bid and no instant win price has no known price yet
	if ref := lot.ReferencePrice(); ref.IsPositive() {
		c.Discount = DiscountPct(lot.RetailPrice, ref)
	}
	if c.Discount > 0 {
		reasons = append(reasons, fmt.Sprintf("%.0f%% below retail", c.Discount))
	}

	brand, ok := s.Brands.Match(lot.Brand, lot.Title)
	if ok {
		c.Brand = 100
		reasons = append(reasons, fmt.Sprintf("premium brand (%s)", brand))
	}

	c.Competition = clamp(100 - 8*float64(lot.BidCount))
	switch lot.BidCount {
	case 0:
		reasons = append(reasons, "no bids yet")
	case 1:
		reasons = append(reasons, "1 bid")
	default:
		reasons = append(reasons, fmt.Sprintf("%d bids", lot.BidCount))
	}

	if lot.InstantWinPrice.IsPositive() {
		c.InstantWin = DiscountPct(lot.RetailPrice, lot.InstantWinPrice)
		if c.InstantWin > 0 {
			reasons = append(reasons, fmt.Sprintf("instant win %.0f%% off", c.InstantWin))
		}
	}

	c.ClosingSoon = closingSoonScore(lot.ClosesAt, now)
	if c.ClosingSoon > 0 {
		reasons = append(reasons, fmt.Sprintf("closes in %s", lot.ClosesAt.Sub(now).Round(time.Minute)))
	}

	w := s.Weights
	total := w.Discount*c.Discount +
		w.Brand*c.Brand +
		w.Competition*c.Competition +
		w.InstantWin*c.InstantWin +
		w.ClosingSoon*c.ClosingSoon

	return Result{
		LotID:       lot.ID,
		Score:       round2(clamp(total)),
		DiscountPct: round2(c.Discount),
		Brand:       brand,
		Components:  c,
		Reasons:     reasons,
	}
}
