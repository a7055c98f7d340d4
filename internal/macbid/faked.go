package macbid

import (
	"context"
	"fmt"
	"hash/fnv"
	"lotwatch/internal/lots"
	"math/rand"
	"strings"
	"time"

	"github.com/bxcodec/faker/v4"
	"github.com/shopspring/decimal"
)

var fakeBrands = []string{"DeWalt", "Ninja", "Yeti", "Keurig", "Generic", "Amazon Basics", "Hamilton Beach", "Unbranded"}
var fakeLocations = append([]string{"Charlotte - Westinghouse", "Durham"}, lots.SCLocations...)
var fakeConditions = []string{"New", "Open Box", "Like New", "Damaged"}

// Faked serves plausible lots without touching the network, for --fake runs
// and tests. Lot ids are stable for the same term and page.
type Faked struct {
	Pages int
	Now   func() time.Time
}

func NewFaked() Faked {
	return Faked{Pages: 3, Now: time.Now}
}

func seedFor(parts ...string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(strings.Join(parts, "\x00")))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

func (f Faked) fakeLot(rng *rand.Rand, id, term string) lots.Lot {
	retail := decimal.NewFromInt(int64(20 + rng.Intn(600)))
	bids := rng.Intn(12)
	bid := decimal.Zero
	if bids > 0 {
		bid = retail.Mul(decimal.NewFromFloat(0.05 + rng.Float64()*0.4)).Round(0)
	}
	title := fmt.Sprintf("%s %s %s", fakeBrands[rng.Intn(len(fakeBrands))], term, faker.Word())
	return lots.Lot{
		ID:              id,
		AuctionID:       fmt.Sprintf("fake-auction-%d", rng.Intn(20)),
		LotNumber:       fmt.Sprint(rng.Intn(900) + 100),
		Title:           title,
		Brand:           strings.Fields(title)[0],
		Condition:       fakeConditions[rng.Intn(len(fakeConditions))],
		RetailPrice:     retail,
		InstantWinPrice: retail.Mul(decimal.NewFromFloat(0.6)).Round(2),
		CurrentBid:      bid,
		BidCount:        bids,
		Location:        fakeLocations[rng.Intn(len(fakeLocations))],
		URL:             "https://www.mac.bid/lot/" + id,
		ClosesAt:        f.Now().Add(time.Duration(rng.Intn(48*60)) * time.Minute),
		Source:          lots.SourceFaked,
	}
}

func (f Faked) Search(ctx context.Context, params SearchParams) (SearchPage, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PerPage <= 0 {
		params.PerPage = 48
	}
	page := SearchPage{Page: params.Page, Pages: f.Pages, Total: f.Pages * params.PerPage}
	if params.Page > f.Pages {
		return page, nil
	}

	rng := seedFor(params.Term, fmt.Sprint(params.Page))
	for i := 0; i < params.PerPage; i++ {
		id := fmt.Sprintf("fake-%d", rng.Int63n(1_000_000))
		page.Lots = append(page.Lots, f.fakeLot(rng, id, params.Term))
	}
	return page, nil
}

func (f Faked) TurboClock(ctx context.Context) ([]FlashDeal, error) {
	rng := seedFor("turbo", f.Now().Format(time.DateOnly))
	out := make([]FlashDeal, 5)
	for i := range out {
		lot := f.fakeLot(rng, fmt.Sprintf("fake-turbo-%d", i), faker.Word())
		lot.Source = lots.SourceTurboClock
		out[i] = FlashDeal{Lot: lot, EndsAt: f.Now().Add(time.Duration(10+rng.Intn(50)) * time.Minute)}
	}
	return out, nil
}

// Lot returns a lot whose bid creeps up as time passes, so monitors have
// something to report.
func (f Faked) Lot(ctx context.Context, id string) (lots.Lot, error) {
	rng := seedFor("lot", id)
	lot := f.fakeLot(rng, id, "item")
	steps := int(f.Now().Unix()/300) % 20
	lot.BidCount += steps
	lot.CurrentBid = lot.CurrentBid.Add(decimal.NewFromInt(int64(steps)))
	lot.Source = lots.SourceFaked
	return lot, nil
}
