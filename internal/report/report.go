// Package report renders stored scan results for people: console tables,
// JSON, spreadsheets and price charts.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"lotwatch/internal/store"
	"lotwatch/lib/textutil"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const titleWidth = 48

// OpportunityRow is the flattened form of an opportunity used by every
// output format.
type OpportunityRow struct {
	Rank           int      `json:"rank"`
	LotID          string   `json:"lot_id"`
	Title          string   `json:"title"`
	Location       string   `json:"location"`
	CurrentBid     string   `json:"current_bid"`
	RetailPrice    string   `json:"retail_price"`
	InstantWin     string   `json:"instant_win_price"`
	PredictedClose string   `json:"predicted_close"`
	DiscountPct    float64  `json:"discount_pct"`
	Score          float64  `json:"score"`
	BidCount       int      `json:"bid_count"`
	ClosesAt       string   `json:"closes_at,omitempty"`
	URL            string   `json:"url,omitempty"`
	Reasons        []string `json:"reasons"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func OpportunityRows(list []store.Opportunity) []OpportunityRow {
	rows := make([]OpportunityRow, len(list))
	for i, o := range list {
		reasons := o.Reasons
		if reasons == nil {
			reasons = []string{}
		}
		rows[i] = OpportunityRow{
			Rank:           i + 1,
			LotID:          o.Lot.ID,
			Title:          o.Lot.Title,
			Location:       o.Lot.Location,
			CurrentBid:     o.Lot.CurrentBid.StringFixed(2),
			RetailPrice:    o.Lot.RetailPrice.StringFixed(2),
			InstantWin:     o.Lot.InstantWinPrice.StringFixed(2),
			PredictedClose: o.PredictedClose.StringFixed(2),
			DiscountPct:    o.DiscountPct,
			Score:          o.Score,
			BidCount:       o.Lot.BidCount,
			ClosesAt:       formatTime(o.Lot.ClosesAt),
			URL:            o.Lot.URL,
			Reasons:        reasons,
		}
	}
	return rows
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func Opportunities(w io.Writer, list []store.Opportunity) {
	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Lot", "Title", "Location", "Bid", "Retail", "Discount", "Score"})
	for _, r := range OpportunityRows(list) {
		t.AppendRow(table.Row{
			r.Rank,
			r.LotID,
			textutil.Truncate(r.Title, titleWidth),
			r.Location,
			"$" + r.CurrentBid,
			"$" + r.RetailPrice,
			fmt.Sprintf("%.1f%%", r.DiscountPct),
			fmt.Sprintf("%.2f", r.Score),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
	})
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d lots", len(list))})
	t.Render()
}

func History(w io.Writer, lotID string, snapshots []store.Snapshot) {
	t := newTable(w)
	t.SetTitle("Lot " + lotID)
	t.AppendHeader(table.Row{"Observed", "Bid", "Bids", "Change", "Closed"})
	for i, s := range snapshots {
		change := ""
		if i > 0 {
			delta := s.CurrentBid.Sub(snapshots[i-1].CurrentBid)
			if delta.IsPositive() {
				change = "+$" + delta.StringFixed(2)
			} else if delta.IsNegative() {
				change = "-$" + delta.Neg().StringFixed(2)
			}
		}
		closed := ""
		if s.IsClosed {
			closed = "yes"
		}
		t.AppendRow(table.Row{
			s.ObservedAt.Local().Format("Jan 2 15:04:05"),
			"$" + s.CurrentBid.StringFixed(2),
			s.BidCount,
			change,
			closed,
		})
	}
	t.Render()
}

func duration(start, end time.Time) string {
	if end.IsZero() {
		return "unfinished"
	}
	return end.Sub(start).Round(time.Second).String()
}

func Scans(w io.Writer, list []store.ScanRecord) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Scan", "Kind", "Started", "Took", "Terms", "Found", "Kept", "Errors"})
	for _, s := range list {
		t.AppendRow(table.Row{
			s.ID,
			s.Kind,
			s.StartedAt.Local().Format("Jan 2 15:04:05"),
			duration(s.StartedAt, s.FinishedAt),
			s.Terms,
			s.LotsFound,
			s.LotsKept,
			s.Errors,
		})
	}
	t.Render()
}

func Probes(w io.Writer, list []store.Probe) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Endpoint", "Status", "Latency", "Probed", "Error"})
	for _, p := range list {
		status := "-"
		if p.Status > 0 {
			status = fmt.Sprint(p.Status)
		}
		t.AppendRow(table.Row{
			p.Endpoint,
			status,
			p.Latency.Round(time.Millisecond).String(),
			p.ProbedAt.Local().Format("Jan 2 15:04:05"),
			textutil.Truncate(p.Error, 60),
		})
	}
	t.Render()
}

func Watchlist(w io.Writer, entries []store.WatchEntry) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Lot", "Max bid", "Note", "Added"})
	for _, e := range entries {
		maxBid := "-"
		if e.MaxBid.IsPositive() {
			maxBid = "$" + e.MaxBid.StringFixed(2)
		}
		t.AppendRow(table.Row{e.LotID, maxBid, e.Note, e.AddedAt.Local().Format("Jan 2 15:04")})
	}
	t.Render()
}

func FlashDeals(w io.Writer, deals []store.FlashDeal) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Lot", "Instant win", "Ends"})
	for _, d := range deals {
		t.AppendRow(table.Row{d.LotID, "$" + d.InstantWinPrice.StringFixed(2), d.EndsAt.Local().Format("Jan 2 15:04")})
	}
	t.Render()
}

// WriteJSON writes `v` as indented json.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Format is an output format accepted by the report command.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatXLSX  Format = "xlsx"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatXLSX:
		return f, nil
	case "":
		return FormatTable, nil
	}
	return "", fmt.Errorf("unknown format %q, expected table, json or xlsx", s)
}
