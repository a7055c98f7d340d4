package lots

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, payload string) Lot {
	t.Helper()
	var w WireLot
	err := json.Unmarshal([]byte(payload), &w)
	if err != nil {
		t.Fatal(err)
	}
	return w.Lot
}

func TestWireLotIDFields(t *testing.T) {
	cases := []struct {
		payload  string
		expected string
	}{
		{`{"lot_id": "L-1", "id": 7}`, "L-1"},
		{`{"id": 12345}`, "12345"},
		{`{"mac_lot_id": " M9 "}`, "M9"},
		{`{"_id": "abc"}`, "abc"},
		{`{"lot_id": "", "id": null, "_id": "x"}`, "x"},
		{`{"product_name": "no id"}`, ""},
	}
	for _, c := range cases {
		require.Equal(t, c.expected, decode(t, c.payload).ID, c.payload)
	}
}

func TestWireLotFull(t *testing.T) {
	lot := decode(t, `{
		"lot_id": 991,
		"auction_id": "A12",
		"title": "DeWalt Drill",
		"retail_price": "$1,299.99",
		"instant_win_price": 450,
		"current_bid": "12.50",
		"bid_count": "3",
		"auction_location": "Spartanburg - Fernwood",
		"expected_close_date": 1735689600000,
		"is_closed": 0
	}`)

	expected := Lot{
		ID:              "991",
		AuctionID:       "A12",
		Title:           "DeWalt Drill",
		RetailPrice:     decimal.RequireFromString("1299.99"),
		InstantWinPrice: decimal.NewFromInt(450),
		CurrentBid:      decimal.RequireFromString("12.5"),
		BidCount:        3,
		Location:        "Spartanburg - Fernwood",
		ClosesAt:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	diff := cmp.Diff(expected, lot, cmp.Comparer(func(a, b decimal.Decimal) bool {
		return a.Equal(b)
	}))
	if diff != "" {
		t.Fatal(diff)
	}
}

func TestWireLotRejectsGarbage(t *testing.T) {
	var w WireLot
	err := json.Unmarshal([]byte(`{"lot_id": "1", "current_bid": "free"}`), &w)
	require.Error(t, err)
}

func TestWireLotFloatNumbers(t *testing.T) {
	lot := decode(t, `{"lot_id": "5", "bid_count": 3.0, "closes_at": 1717243200.5}`)
	require.Equal(t, 3, lot.BidCount)
	require.Equal(t, int64(1717243200), lot.ClosesAt.Unix())

	lot = decode(t, `{"lot_id": "6", "total_bids": "7.0"}`)
	require.Equal(t, 7, lot.BidCount)

	var w WireLot
	err := json.Unmarshal([]byte(`{"lot_id": "7", "bid_count": "many"}`), &w)
	require.Error(t, err)
}

func TestParseCount(t *testing.T) {
	cases := []struct {
		in       string
		expected int
	}{
		{"", 0},
		{"4", 4},
		{" 12 ", 12},
		{"3.0", 3},
		{"2.9", 2},
	}
	for _, c := range cases {
		n, err := ParseCount(c.in)
		require.NoError(t, err, c.in)
		require.Equal(t, c.expected, n, c.in)
	}
	_, err := ParseCount("NaN")
	require.Error(t, err)
}

func TestParseTime(t *testing.T) {
	ts, err := ParseTime("2024-06-01T12:00:00Z")
	require.NoError(t, err)
	require.Equal(t, int64(1717243200), ts.Unix())

	ts, err = ParseTime("1717243200")
	require.NoError(t, err)
	require.Equal(t, int64(1717243200), ts.Unix())

	ts, err = ParseTime("1717243200.25")
	require.NoError(t, err)
	require.Equal(t, int64(1717243200), ts.Unix())
	require.Equal(t, 250*time.Millisecond, time.Duration(ts.Nanosecond()))

	ts, err = ParseTime("1717243200123.0")
	require.NoError(t, err)
	require.Equal(t, int64(1717243200123), ts.UnixMilli())

	ts, err = ParseTime("")
	require.NoError(t, err)
	require.True(t, ts.IsZero())

	_, err = ParseTime("next tuesday")
	require.Error(t, err)
}
