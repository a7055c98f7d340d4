package db

import (
	"database/sql"
)

type ApiProbe struct {
	ID        int64
	Endpoint  string
	Status    int64
	LatencyMs int64
	Error     string
	ProbedAt  int64
}

type BidSnapshot struct {
	LotID      string
	ObservedAt int64
	CurrentBid float64
	BidCount   int64
	IsClosed   bool
}

type Credential struct {
	Name       string
	Token      string
	Cookies    string
	CustomerID string
	ExpiresAt  int64
}

type CustomerLot struct {
	CustomerID string
	LotID      string
	MyMaxBid   float64
	IsWinning  bool
	UpdatedAt  int64
}

type FlashDeal struct {
	LotID           string
	InstantWinPrice float64
	EndsAt          int64
	SeenAt          int64
}

type Lot struct {
	LotID           string
	AuctionID       string
	LotNumber       string
	ProductName     string
	Brand           string
	Category        string
	Condition       string
	RetailPrice     float64
	InstantWinPrice float64
	CurrentBid      float64
	BidCount        int64
	AuctionLocation string
	ImageUrl        string
	Url             string
	ClosesAt        int64
	FirstSeen       int64
	LastSeen        int64
	Source          string
}

type Opportunity struct {
	LotID          string
	ScanID         string
	Score          float64
	DiscountPct    float64
	PredictedClose float64
	Reasons        string
	ScoredAt       int64
}

type Scan struct {
	ID         string
	Kind       string
	StartedAt  int64
	FinishedAt sql.NullInt64
	Terms      int64
	LotsFound  int64
	LotsKept   int64
	Errors     int64
}

type Watchlist struct {
	LotID           string
	MaxBid          float64
	Note            string
	AddedAt         int64
	ClosingNotified bool
}
