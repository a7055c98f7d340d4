package store

import (
	"context"
	"encoding/json"
	"fmt"
	"lotwatch/internal/lots"
	"lotwatch/internal/store/db"
	"time"

	"github.com/shopspring/decimal"
)

type Opportunity struct {
	Lot            lots.Lot
	ScanID         string
	Score          float64
	DiscountPct    float64
	PredictedClose decimal.Decimal
	Reasons        []string
	ScoredAt       time.Time
}

// SaveOpportunities replaces the stored score of every lot in `list`.
// The lots themselves must already be stored.
func (s Store) SaveOpportunities(ctx context.Context, list []Opportunity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	for _, o := range list {
		reasons := o.Reasons
		if reasons == nil {
			reasons = []string{}
		}
		serialized, err := json.Marshal(reasons)
		if err != nil {
			return err
		}
		err = txqry.UpsertOpportunity(ctx, db.UpsertOpportunityParams{
			LotID:          o.Lot.ID,
			ScanID:         o.ScanID,
			Score:          o.Score,
			DiscountPct:    o.DiscountPct,
			PredictedClose: toFloat(o.PredictedClose),
			Reasons:        string(serialized),
			ScoredAt:       o.ScoredAt.Unix(),
		})
		if err != nil {
			return fmt.Errorf("save opportunity %s: %w", o.Lot.ID, err)
		}
	}
	return tx.Commit()
}

// TopOpportunities returns up to `limit` scored lots with a score of at
// least `minScore`, best first. Lots that closed or were seen closed by
// `now` are left out.
func (s Store) TopOpportunities(ctx context.Context, minScore float64, limit int, now time.Time) ([]Opportunity, error) {
	rows, err := s.qry.ListTopOpportunities(ctx, db.ListTopOpportunitiesParams{
		Score:    minScore,
		ClosesAt: now.Unix(),
		Limit:    int64(limit),
	})
	if err != nil {
		return nil, err
	}

	out := make([]Opportunity, 0, len(rows))
	for _, r := range rows {
		var reasons []string
		err := json.Unmarshal([]byte(r.Opportunity.Reasons), &reasons)
		if err != nil {
			return nil, fmt.Errorf("decode reasons of %s: %w", r.Opportunity.LotID, err)
		}
		out = append(out, Opportunity{
			Lot:            lotFromRow(r.Lot),
			ScanID:         r.Opportunity.ScanID,
			Score:          r.Opportunity.Score,
			DiscountPct:    r.Opportunity.DiscountPct,
			PredictedClose: fromFloat(r.Opportunity.PredictedClose),
			Reasons:        reasons,
			ScoredAt:       fromUnix(r.Opportunity.ScoredAt),
		})
	}
	return out, nil
}
