package store

import (
	"context"
	"database/sql"
	"lotwatch/internal/store/db"
	"time"

	"github.com/google/uuid"
)

const (
	ScanKindSearch = "search"
	ScanKindFlash  = "flash"
)

type ScanRecord struct {
	ID         string
	Kind       string
	StartedAt  time.Time
	FinishedAt time.Time
	Terms      int
	LotsFound  int
	LotsKept   int
	Errors     int
}

// BeginScan records the start of a scan and returns its id.
func (s Store) BeginScan(ctx context.Context, kind string, terms int, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	err := s.qry.InsertScan(ctx, db.InsertScanParams{
		ID:        id,
		Kind:      kind,
		StartedAt: startedAt.Unix(),
		Terms:     int64(terms),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s Store) FinishScan(ctx context.Context, scan ScanRecord) error {
	return s.qry.FinishScan(ctx, db.FinishScanParams{
		FinishedAt: sql.NullInt64{Int64: scan.FinishedAt.Unix(), Valid: true},
		LotsFound:  int64(scan.LotsFound),
		LotsKept:   int64(scan.LotsKept),
		Errors:     int64(scan.Errors),
		ID:         scan.ID,
	})
}

// Scans returns the `limit` most recent scans, newest first. FinishedAt is
// zero for scans still running or interrupted.
func (s Store) Scans(ctx context.Context, limit int) ([]ScanRecord, error) {
	rows, err := s.qry.ListScans(ctx, int64(limit))
	if err != nil {
		return nil, err
	}
	out := make([]ScanRecord, len(rows))
	for i, r := range rows {
		rec := ScanRecord{
			ID:        r.ID,
			Kind:      r.Kind,
			StartedAt: fromUnix(r.StartedAt),
			Terms:     int(r.Terms),
			LotsFound: int(r.LotsFound),
			LotsKept:  int(r.LotsKept),
			Errors:    int(r.Errors),
		}
		if r.FinishedAt.Valid {
			rec.FinishedAt = fromUnix(r.FinishedAt.Int64)
		}
		out[i] = rec
	}
	return out, nil
}
