package store

import (
	"context"
	"database/sql"
	"errors"
	"lotwatch/internal/scoring"
	"lotwatch/internal/store/db"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the bid state of a lot at one point in time.
type Snapshot struct {
	LotID      string
	ObservedAt time.Time
	CurrentBid decimal.Decimal
	BidCount   int
	IsClosed   bool
}

func (s Snapshot) differs(other Snapshot) bool {
	return !s.CurrentBid.Equal(other.CurrentBid) ||
		s.BidCount != other.BidCount ||
		s.IsClosed != other.IsClosed
}

func snapshotFromRow(row db.BidSnapshot) Snapshot {
	return Snapshot{
		LotID:      row.LotID,
		ObservedAt: fromUnix(row.ObservedAt),
		CurrentBid: fromFloat(row.CurrentBid),
		BidCount:   int(row.BidCount),
		IsClosed:   row.IsClosed,
	}
}

// RecordSnapshot stores `snap` when it differs from the latest stored
// snapshot of the lot. Observations older than the latest stored snapshot
// are discarded and reported as unchanged.
func (s Store) RecordSnapshot(ctx context.Context, snap Snapshot) (changed bool, previous Snapshot, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, Snapshot{}, err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	latest, err := txqry.GetLatestSnapshot(ctx, snap.LotID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, Snapshot{}, err
	default:
		previous = snapshotFromRow(latest)
		if snap.ObservedAt.Unix() < latest.ObservedAt {
			return false, previous, nil
		}
		if !snap.differs(previous) {
			return false, previous, nil
		}
	}

	err = txqry.InsertSnapshot(ctx, db.InsertSnapshotParams{
		LotID:      snap.LotID,
		ObservedAt: snap.ObservedAt.Unix(),
		CurrentBid: toFloat(snap.CurrentBid),
		BidCount:   int64(snap.BidCount),
		IsClosed:   snap.IsClosed,
	})
	if err != nil {
		return false, previous, err
	}
	err = txqry.UpdateLotBid(ctx, db.UpdateLotBidParams{
		CurrentBid: toFloat(snap.CurrentBid),
		BidCount:   int64(snap.BidCount),
		LastSeen:   snap.ObservedAt.Unix(),
		LotID:      snap.LotID,
	})
	if err != nil {
		return false, previous, err
	}
	return true, previous, tx.Commit()
}

func (s Store) LatestSnapshot(ctx context.Context, lotID string) (Snapshot, error) {
	row, err := s.qry.GetLatestSnapshot(ctx, lotID)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, err
	}
	return snapshotFromRow(row), nil
}

// History returns every stored snapshot of a lot, oldest first.
func (s Store) History(ctx context.Context, lotID string) ([]Snapshot, error) {
	rows, err := s.qry.ListSnapshots(ctx, lotID)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, len(rows))
	for i, r := range rows {
		out[i] = snapshotFromRow(r)
	}
	return out, nil
}

// ClosedSamples returns the retail and final bid of the `limit` most
// recently closed lots.
func (s Store) ClosedSamples(ctx context.Context, limit int) ([]scoring.ClosedSample, error) {
	rows, err := s.qry.ListClosedSamples(ctx, int64(limit))
	if err != nil {
		return nil, err
	}
	out := make([]scoring.ClosedSample, len(rows))
	for i, r := range rows {
		out[i] = scoring.ClosedSample{
			Retail: fromFloat(r.RetailPrice),
			Close:  fromFloat(r.ClosePrice),
		}
	}
	return out, nil
}
