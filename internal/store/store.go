package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"lotwatch/internal/lots"
	"lotwatch/internal/store/db"
	configlibsql "lotwatch/lib/configutil/libsql"
	"lotwatch/pkg/migrations"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNoSnapshot   = errors.New("no snapshot recorded")
	ErrLotNotFound  = errors.New("lot not found")
	ErrNoCredential = errors.New("no credential stored")
)

type Store struct {
	db  *sql.DB
	qry *db.Queries
}

func NewStore(database *sql.DB) Store {
	return Store{
		db:  database,
		qry: db.New(database),
	}
}

// Open opens the configured database and applies the schema.
func Open(ctx context.Context, config configlibsql.Struct) (Store, error) {
	database, err := config.OpenDB()
	if err != nil {
		return Store{}, err
	}
	err = migrations.Apply(ctx, database, db.Schema)
	if err != nil {
		database.Close()
		return Store{}, err
	}
	return NewStore(database), nil
}

func (s Store) Close() error {
	return s.db.Close()
}

func (s Store) DB() *sql.DB {
	return s.db
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0)
}

func toFloat(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func fromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func lotFromRow(row db.Lot) lots.Lot {
	return lots.Lot{
		ID:              row.LotID,
		AuctionID:       row.AuctionID,
		LotNumber:       row.LotNumber,
		Title:           row.ProductName,
		Brand:           row.Brand,
		Category:        row.Category,
		Condition:       row.Condition,
		RetailPrice:     fromFloat(row.RetailPrice),
		InstantWinPrice: fromFloat(row.InstantWinPrice),
		CurrentBid:      fromFloat(row.CurrentBid),
		BidCount:        int(row.BidCount),
		Location:        row.AuctionLocation,
		ImageURL:        row.ImageUrl,
		URL:             row.Url,
		ClosesAt:        fromUnix(row.ClosesAt),
		Source:          row.Source,
	}
}

// UpsertLots inserts new lots and refreshes known ones. first_seen is kept
// from the original insert and empty fields never overwrite known values.
// Each lot is stamped with its FetchedAt, or `seenAt` when unknown, and its
// bid is only applied when that is not older than the stored last_seen.
func (s Store) UpsertLots(ctx context.Context, list []lots.Lot, seenAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	for _, l := range list {
		if l.ID == "" {
			continue
		}
		err = txqry.UpsertLot(ctx, db.UpsertLotParams{
			LotID:           l.ID,
			AuctionID:       l.AuctionID,
			LotNumber:       l.LotNumber,
			ProductName:     l.Title,
			Brand:           l.Brand,
			Category:        l.Category,
			Condition:       l.Condition,
			RetailPrice:     toFloat(l.RetailPrice),
			InstantWinPrice: toFloat(l.InstantWinPrice),
			CurrentBid:      toFloat(l.CurrentBid),
			BidCount:        int64(l.BidCount),
			AuctionLocation: l.Location,
			ImageUrl:        l.ImageURL,
			Url:             l.URL,
			ClosesAt:        unix(l.ClosesAt),
			FirstSeen:       l.ObservedAt(seenAt).Unix(),
			LastSeen:        l.ObservedAt(seenAt).Unix(),
			Source:          l.Source,
		})
		if err != nil {
			return fmt.Errorf("upsert lot %s: %w", l.ID, err)
		}
	}
	return tx.Commit()
}

// LotRecord is a stored lot with its bookkeeping timestamps.
type LotRecord struct {
	lots.Lot
	FirstSeen time.Time
	LastSeen  time.Time
}

func (s Store) GetLot(ctx context.Context, lotID string) (LotRecord, error) {
	row, err := s.qry.GetLot(ctx, lotID)
	if errors.Is(err, sql.ErrNoRows) {
		return LotRecord{}, ErrLotNotFound
	}
	if err != nil {
		return LotRecord{}, err
	}
	return LotRecord{
		Lot:       lotFromRow(row),
		FirstSeen: fromUnix(row.FirstSeen),
		LastSeen:  fromUnix(row.LastSeen),
	}, nil
}
