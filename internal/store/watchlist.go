package store

import (
	"context"
	"lotwatch/internal/store/db"
	"time"

	"github.com/shopspring/decimal"
)

type WatchEntry struct {
	LotID string
	// MaxBid is the most the user is willing to pay, zero means no limit.
	MaxBid          decimal.Decimal
	Note            string
	AddedAt         time.Time
	ClosingNotified bool
}

// Watch adds a lot to the watchlist or updates its max bid and note.
func (s Store) Watch(ctx context.Context, entry WatchEntry) error {
	addedAt := entry.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now()
	}
	return s.qry.UpsertWatch(ctx, db.UpsertWatchParams{
		LotID:   entry.LotID,
		MaxBid:  toFloat(entry.MaxBid),
		Note:    entry.Note,
		AddedAt: addedAt.Unix(),
	})
}

// Unwatch removes a lot, it reports whether the lot was being watched.
func (s Store) Unwatch(ctx context.Context, lotID string) (bool, error) {
	n, err := s.qry.DeleteWatch(ctx, lotID)
	return n > 0, err
}

func (s Store) Watchlist(ctx context.Context) ([]WatchEntry, error) {
	rows, err := s.qry.ListWatchlist(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]WatchEntry, len(rows))
	for i, r := range rows {
		out[i] = WatchEntry{
			LotID:           r.LotID,
			MaxBid:          fromFloat(r.MaxBid),
			Note:            r.Note,
			AddedAt:         fromUnix(r.AddedAt),
			ClosingNotified: r.ClosingNotified,
		}
	}
	return out, nil
}

func (s Store) MarkClosingNotified(ctx context.Context, lotID string) error {
	return s.qry.MarkClosingNotified(ctx, lotID)
}
