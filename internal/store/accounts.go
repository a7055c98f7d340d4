package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"lotwatch/internal/store/db"
	"time"

	"github.com/shopspring/decimal"
)

type FlashDeal struct {
	LotID           string
	InstantWinPrice decimal.Decimal
	EndsAt          time.Time
	SeenAt          time.Time
}

func (s Store) UpsertFlashDeals(ctx context.Context, deals []FlashDeal, seenAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	for _, d := range deals {
		err = txqry.UpsertFlashDeal(ctx, db.UpsertFlashDealParams{
			LotID:           d.LotID,
			InstantWinPrice: toFloat(d.InstantWinPrice),
			EndsAt:          unix(d.EndsAt),
			SeenAt:          seenAt.Unix(),
		})
		if err != nil {
			return fmt.Errorf("upsert flash deal %s: %w", d.LotID, err)
		}
	}
	return tx.Commit()
}

// FlashDeals returns the deals that have not ended as of `now`, cheapest first.
func (s Store) FlashDeals(ctx context.Context, now time.Time) ([]FlashDeal, error) {
	rows, err := s.qry.ListFlashDeals(ctx, now.Unix())
	if err != nil {
		return nil, err
	}
	out := make([]FlashDeal, len(rows))
	for i, r := range rows {
		out[i] = FlashDeal{
			LotID:           r.LotID,
			InstantWinPrice: fromFloat(r.InstantWinPrice),
			EndsAt:          fromUnix(r.EndsAt),
			SeenAt:          fromUnix(r.SeenAt),
		}
	}
	return out, nil
}

// CustomerLot is a lot the signed in customer has bid on.
type CustomerLot struct {
	LotID     string
	MyMaxBid  decimal.Decimal
	IsWinning bool
	UpdatedAt time.Time
}

func (s Store) UpsertCustomerLots(ctx context.Context, customerID string, list []CustomerLot, updatedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	for _, l := range list {
		err = txqry.UpsertCustomerLot(ctx, db.UpsertCustomerLotParams{
			CustomerID: customerID,
			LotID:      l.LotID,
			MyMaxBid:   toFloat(l.MyMaxBid),
			IsWinning:  l.IsWinning,
			UpdatedAt:  updatedAt.Unix(),
		})
		if err != nil {
			return fmt.Errorf("upsert customer lot %s: %w", l.LotID, err)
		}
	}
	return tx.Commit()
}

// CustomerLot returns the stored state of one customer lot, ok is false when
// it was never stored.
func (s Store) CustomerLot(ctx context.Context, customerID, lotID string) (CustomerLot, bool, error) {
	row, err := s.qry.GetCustomerLot(ctx, db.GetCustomerLotParams{
		CustomerID: customerID,
		LotID:      lotID,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return CustomerLot{}, false, nil
	}
	if err != nil {
		return CustomerLot{}, false, err
	}
	return customerLotFromRow(row), true, nil
}

func (s Store) CustomerLots(ctx context.Context, customerID string) ([]CustomerLot, error) {
	rows, err := s.qry.ListCustomerLots(ctx, customerID)
	if err != nil {
		return nil, err
	}
	out := make([]CustomerLot, len(rows))
	for i, r := range rows {
		out[i] = customerLotFromRow(r)
	}
	return out, nil
}

func customerLotFromRow(row db.CustomerLot) CustomerLot {
	return CustomerLot{
		LotID:     row.LotID,
		MyMaxBid:  fromFloat(row.MyMaxBid),
		IsWinning: row.IsWinning,
		UpdatedAt: fromUnix(row.UpdatedAt),
	}
}

type Probe struct {
	ID       int64
	Endpoint string
	// Status is the http status, 0 when no response was received.
	Status   int
	Latency  time.Duration
	Error    string
	ProbedAt time.Time
}

func (s Store) RecordProbe(ctx context.Context, probe Probe) error {
	return s.qry.InsertProbe(ctx, db.InsertProbeParams{
		Endpoint:  probe.Endpoint,
		Status:    int64(probe.Status),
		LatencyMs: probe.Latency.Milliseconds(),
		Error:     probe.Error,
		ProbedAt:  probe.ProbedAt.Unix(),
	})
}

func (s Store) Probes(ctx context.Context, limit int) ([]Probe, error) {
	rows, err := s.qry.ListProbes(ctx, int64(limit))
	if err != nil {
		return nil, err
	}
	out := make([]Probe, len(rows))
	for i, r := range rows {
		out[i] = Probe{
			ID:       r.ID,
			Endpoint: r.Endpoint,
			Status:   int(r.Status),
			Latency:  time.Duration(r.LatencyMs) * time.Millisecond,
			Error:    r.Error,
			ProbedAt: fromUnix(r.ProbedAt),
		}
	}
	return out, nil
}

type Cookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Domain  string    `json:"domain"`
	Path    string    `json:"path"`
	Expires time.Time `json:"expires"`
}

type Credential struct {
	Name       string
	Token      string
	Cookies    []Cookie
	CustomerID string
	ExpiresAt  time.Time
}

func (s Store) SaveCredential(ctx context.Context, cred Credential) error {
	cookies := cred.Cookies
	if cookies == nil {
		cookies = []Cookie{}
	}
	serialized, err := json.Marshal(cookies)
	if err != nil {
		return err
	}
	return s.qry.UpsertCredential(ctx, db.UpsertCredentialParams{
		Name:       cred.Name,
		Token:      cred.Token,
		Cookies:    string(serialized),
		CustomerID: cred.CustomerID,
		ExpiresAt:  unix(cred.ExpiresAt),
	})
}

func (s Store) Credential(ctx context.Context, name string) (Credential, error) {
	row, err := s.qry.GetCredential(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrNoCredential
	}
	if err != nil {
		return Credential{}, err
	}
	var cookies []Cookie
	err = json.Unmarshal([]byte(row.Cookies), &cookies)
	if err != nil {
		return Credential{}, fmt.Errorf("decode cookies of credential %s: %w", name, err)
	}
	return Credential{
		Name:       row.Name,
		Token:      row.Token,
		Cookies:    cookies,
		CustomerID: row.CustomerID,
		ExpiresAt:  fromUnix(row.ExpiresAt),
	}, nil
}
