package lots

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// WireLot decodes any of the lot shapes returned by the search api, the
// typesense proxy, next.js page props and the customer endpoints.
type WireLot struct {
	Lot
}

// FlexString accepts a json string, number or boolean.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var str string
		err := json.Unmarshal(data, &str)
		if err != nil {
			return err
		}
		*s = FlexString(strings.TrimSpace(str))
		return nil
	}
	if string(data) == "true" || string(data) == "false" {
		*s = FlexString(data)
		return nil
	}
	var num json.Number
	err := json.Unmarshal(data, &num)
	if err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*s = FlexString(num.String())
	return nil
}

// FlexPrice accepts numbers and strings such as "$1,299.99".
type FlexPrice struct {
	decimal.Decimal
}

func (p *FlexPrice) UnmarshalJSON(data []byte) error {
	var s FlexString
	err := s.UnmarshalJSON(data)
	if err != nil {
		return err
	}
	value, err := ParsePrice(string(s))
	if err != nil {
		return err
	}
	p.Decimal = value
	return nil
}

// FlexTime accepts RFC3339 strings and unix seconds or milliseconds.
type FlexTime struct {
	time.Time
}

func (t *FlexTime) UnmarshalJSON(data []byte) error {
	var s FlexString
	err := s.UnmarshalJSON(data)
	if err != nil {
		return err
	}
	value, err := ParseTime(string(s))
	if err != nil {
		return err
	}
	t.Time = value
	return nil
}

// FlexBool accepts true/false, 1/0 and their string forms.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	var s FlexString
	err := s.UnmarshalJSON(data)
	if err != nil {
		return err
	}
	switch strings.ToLower(string(s)) {
	case "1", "true", "yes":
		*b = true
	default:
		*b = false
	}
	return nil
}

type wireLotJSON struct {
	LotID    FlexString `json:"lot_id"`
	ID       FlexString `json:"id"`
	MacLotID FlexString `json:"mac_lot_id"`
	MongoID  FlexString `json:"_id"`

	AuctionID FlexString `json:"auction_id"`
	LotNumber FlexString `json:"lot_number"`

	ProductName FlexString `json:"product_name"`
	Title       FlexString `json:"title"`
	Name        FlexString `json:"name"`

	Brand     FlexString `json:"brand"`
	Category  FlexString `json:"category"`
	Condition FlexString `json:"condition"`

	RetailPrice     FlexPrice `json:"retail_price"`
	Msrp            FlexPrice `json:"msrp"`
	InstantWinPrice FlexPrice `json:"instant_win_price"`
	BuyNowPrice     FlexPrice `json:"buy_now_price"`
	CurrentBid      FlexPrice `json:"current_bid"`
	WinningBid      FlexPrice `json:"winning_bid_amount"`

	BidCount   FlexString `json:"bid_count"`
	TotalBids  FlexString `json:"total_bids"`
	Location   FlexString `json:"auction_location"`
	LocationB  FlexString `json:"location"`
	ImageURL   FlexString `json:"image_url"`
	Thumbnail  FlexString `json:"thumbnail_url"`
	URL        FlexString `json:"url"`
	ExpectedAt FlexTime   `json:"expected_close_date"`
	ClosesAt   FlexTime   `json:"closes_at"`
	IsClosed   FlexBool   `json:"is_closed"`
}

func firstNonEmpty(values ...FlexString) string {
	for _, v := range values {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

func firstNonZero(values ...FlexPrice) decimal.Decimal {
	for _, v := range values {
		if !v.IsZero() {
			return v.Decimal
		}
	}
	return decimal.Zero
}

func (w *WireLot) UnmarshalJSON(data []byte) error {
	var raw wireLotJSON
	err := json.Unmarshal(data, &raw)
	if err != nil {
		return fmt.Errorf("decode lot: %w", err)
	}

	bids := 0
	if count := firstNonEmpty(raw.BidCount, raw.TotalBids); count != "" {
		bids, err = ParseCount(count)
		if err != nil {
			return fmt.Errorf("decode lot: %w", err)
		}
	}

	closesAt := raw.ClosesAt.Time
	if closesAt.IsZero() {
		closesAt = raw.ExpectedAt.Time
	}

	w.Lot = Lot{
		ID:              firstNonEmpty(raw.LotID, raw.ID, raw.MacLotID, raw.MongoID),
		AuctionID:       string(raw.AuctionID),
		LotNumber:       string(raw.LotNumber),
		Title:           firstNonEmpty(raw.ProductName, raw.Title, raw.Name),
		Brand:           string(raw.Brand),
		Category:        string(raw.Category),
		Condition:       string(raw.Condition),
		RetailPrice:     firstNonZero(raw.RetailPrice, raw.Msrp),
		InstantWinPrice: firstNonZero(raw.InstantWinPrice, raw.BuyNowPrice),
		CurrentBid:      firstNonZero(raw.CurrentBid, raw.WinningBid),
		BidCount:        bids,
		Location:        firstNonEmpty(raw.Location, raw.LocationB),
		ImageURL:        firstNonEmpty(raw.ImageURL, raw.Thumbnail),
		URL:             string(raw.URL),
		ClosesAt:        closesAt,
		IsClosed:        bool(raw.IsClosed),
	}
	return nil
}

// DecodeList decodes raw json values into lots, tagging each with `source`.
func DecodeList(raw []json.RawMessage, source string) ([]Lot, error) {
	out := make([]Lot, 0, len(raw))
	for _, r := range raw {
		var w WireLot
		err := json.Unmarshal(r, &w)
		if err != nil {
			return nil, err
		}
		w.Source = source
		out = append(out, w.Lot)
	}
	return out, nil
}

var priceReplacer = strings.NewReplacer("$", "", ",", "", " ", "", "USD", "")

// ParsePrice accepts plain numbers as well as "$1,299.99". Empty is zero.
func ParsePrice(s string) (decimal.Decimal, error) {
	s = priceReplacer.Replace(strings.TrimSpace(s))
	if s == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price '%s': %w", s, err)
	}
	return value, nil
}

// ParseCount accepts integers and floats such as "3.0", truncating the
// fraction. Empty is zero.
func ParseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("parse count '%s': not a number", s)
	}
	return int(f), nil
}

// ParseTime accepts RFC3339 (with or without zone), "2006-01-02 15:04:05"
// and unix seconds or milliseconds, fractional or not. Empty is the zero
// time.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if unix, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(unix) && !math.IsInf(unix, 0) {
		// anything past year 33658 in seconds is treated as milliseconds
		if unix > 1e12 {
			return time.UnixMilli(int64(unix)).UTC(), nil
		}
		sec, frac := math.Modf(unix)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time '%s': unknown format", s)
}
