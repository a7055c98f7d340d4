package macbid

import (
	"context"
	"encoding/json"
	"fmt"
	"lotwatch/internal/components/telemetry"
	"lotwatch/internal/lots"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const (
	report_client_search          = "client.search"
	report_client_auction_summary = "client.auction-summary"
	report_client_active_auctions = "client.active-auctions"
	report_client_turbo_clock     = "client.turbo-clock"
	report_client_lot             = "client.lot"
	report_client_cache           = "client.cache"
)

type ClientOptions struct {
	Session SessionOptions
	// Cache is used for search pages, it may be nil.
	Cache *ResponseCache
	// Now stamps fetched lots, nil means time.Now.
	Now func() time.Time
}

// Client wraps the JSON api at api.macdiscount.com.
type Client struct {
	http  *resty.Client
	cache *ResponseCache
	now   func() time.Time
	tel   telemetry.API
}

func NewClient(opts ClientOptions, tel telemetry.API) (*Client, error) {
	tel = telemetry.NewScopedAPI("macbid", tel)
	if opts.Session.BaseURL == "" {
		opts.Session.BaseURL = DefaultAPIBaseURL
	}
	httpClient, err := NewSession(opts.Session, tel)
	if err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		http:  httpClient,
		cache: opts.Cache,
		now:   opts.Now,
		tel:   tel,
	}, nil
}

// SetToken replaces the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.http.SetAuthToken(token)
}

func (c *Client) HasToken() bool {
	return c.http.Token != ""
}

// get returns the response body and when it was fetched, which is in the
// past when the body came from the cache.
func (c *Client) get(ctx context.Context, reportId, path string, query url.Values, cacheable bool) ([]byte, time.Time, error) {
	full := c.http.BaseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}

	if cacheable {
		body, fetchedAt, hit, err := c.cache.Get(full)
		if err != nil {
			c.tel.ReportWarning(report_client_cache, fmt.Errorf("get: %w", err), full)
		}
		if hit {
			c.tel.ReportDebug("cache hit", full, fetchedAt)
			return body, fetchedAt, nil
		}
	}

	fetchedAt := c.now()
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query).
		Get(path)
	if err != nil {
		c.tel.ReportBroken(reportId, err)
		return nil, time.Time{}, fmt.Errorf("GET %s: %w", path, err)
	}
	err = checkResponse(res)
	if err != nil {
		return nil, time.Time{}, err
	}

	if cacheable {
		err = c.cache.Set(full, res.Body(), fetchedAt)
		if err != nil {
			c.tel.ReportWarning(report_client_cache, fmt.Errorf("set: %w", err), full)
		}
	}
	return res.Body(), fetchedAt, nil
}

// decodeLots decodes each item on its own, items that fail to decode are
// reported and skipped.
func (c *Client) decodeLots(reportId string, items []json.RawMessage, source string, fetchedAt time.Time) []lots.Lot {
	out := make([]lots.Lot, 0, len(items))
	for _, item := range items {
		var w lots.WireLot
		err := json.Unmarshal(item, &w)
		if err != nil {
			c.tel.ReportWarning(reportId, err, string(item))
			continue
		}
		w.Source = source
		w.FetchedAt = fetchedAt
		out = append(out, w.Lot)
	}
	return out
}

type SearchParams struct {
	Term string
	// Page starts at 1.
	Page     int
	PerPage  int
	Location string
}

type SearchPage struct {
	Lots  []lots.Lot
	Total int
	Page  int
	Pages int
}

// Search runs a full text search over open lots.
func (c *Client) Search(ctx context.Context, params SearchParams) (SearchPage, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PerPage <= 0 {
		params.PerPage = 48
	}

	query := url.Values{}
	query.Set("q", params.Term)
	query.Set("page", strconv.Itoa(params.Page))
	query.Set("per_page", strconv.Itoa(params.PerPage))
	if params.Location != "" {
		query.Set("location", params.Location)
	}

	body, fetchedAt, err := c.get(ctx, report_client_search, "/search", query, true)
	if err != nil {
		return SearchPage{}, err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		c.tel.ReportBroken(report_client_search, err)
		return SearchPage{}, fmt.Errorf("search '%s': %w", params.Term, err)
	}

	page := SearchPage{
		Lots:  c.decodeLots(report_client_search, env.Items, lots.SourceSearch, fetchedAt),
		Total: env.Total,
		Page:  params.Page,
		Pages: env.Pages,
	}
	if page.Pages == 0 && page.Total > 0 {
		page.Pages = (page.Total + params.PerPage - 1) / params.PerPage
	}
	return page, nil
}

type Auction struct {
	ID       string
	Title    string
	Location string
	ClosesAt time.Time
	LotCount int
}

type wireAuction struct {
	ID              lots.FlexString `json:"id"`
	AuctionID       lots.FlexString `json:"auction_id"`
	Title           lots.FlexString `json:"title"`
	Name            lots.FlexString `json:"name"`
	Location        lots.FlexString `json:"location"`
	AuctionLocation lots.FlexString `json:"auction_location"`
	ClosesAt        lots.FlexTime   `json:"closes_at"`
	EndDate         lots.FlexTime   `json:"end_date"`
	LotCount        lots.FlexString `json:"lot_count"`
	TotalLots       lots.FlexString `json:"total_lots"`
}

func (w wireAuction) auction() Auction {
	pick := func(a, b lots.FlexString) string {
		if a != "" {
			return string(a)
		}
		return string(b)
	}
	closesAt := w.ClosesAt.Time
	if closesAt.IsZero() {
		closesAt = w.EndDate.Time
	}
	count, _ := strconv.Atoi(pick(w.LotCount, w.TotalLots))
	return Auction{
		ID:       pick(w.AuctionID, w.ID),
		Title:    pick(w.Title, w.Name),
		Location: pick(w.AuctionLocation, w.Location),
		ClosesAt: closesAt,
		LotCount: count,
	}
}

// AuctionSummary lists the currently open auctions.
func (c *Client) AuctionSummary(ctx context.Context) ([]Auction, error) {
	body, _, err := c.get(ctx, report_client_auction_summary, "/auctionsummary", nil, false)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		c.tel.ReportBroken(report_client_auction_summary, err)
		return nil, fmt.Errorf("auction summary: %w", err)
	}

	out := make([]Auction, 0, len(env.Items))
	for _, item := range env.Items {
		var w wireAuction
		err := json.Unmarshal(item, &w)
		if err != nil {
			c.tel.ReportWarning(report_client_auction_summary, err)
			continue
		}
		out = append(out, w.auction())
	}
	return out, nil
}

// CustomerLot is a lot the signed in customer is bidding on.
type CustomerLot struct {
	Lot       lots.Lot
	MyMaxBid  decimal.Decimal
	IsWinning bool
}

type wireCustomerLot struct {
	Lot       json.RawMessage `json:"lot"`
	MyMaxBid  lots.FlexPrice  `json:"my_max_bid"`
	MaxBid    lots.FlexPrice  `json:"max_bid"`
	IsWinning lots.FlexBool   `json:"is_winning"`
	Winning   lots.FlexBool   `json:"winning"`
}

// ActiveAuctions lists the lots a customer is bidding on, it needs a token.
func (c *Client) ActiveAuctions(ctx context.Context, customerID string) ([]CustomerLot, error) {
	if !c.HasToken() {
		return nil, fmt.Errorf("active auctions need a bearer token: %w", ErrUnauthorized)
	}
	if customerID == "" {
		return nil, fmt.Errorf("active auctions need a customer id")
	}

	path := fmt.Sprintf("/auctions/customer/%s/active-auctions", url.PathEscape(customerID))
	body, _, err := c.get(ctx, report_client_active_auctions, path, nil, false)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		c.tel.ReportBroken(report_client_active_auctions, err)
		return nil, fmt.Errorf("active auctions: %w", err)
	}

	out := make([]CustomerLot, 0, len(env.Items))
	for _, item := range env.Items {
		var extra wireCustomerLot
		err := json.Unmarshal(item, &extra)
		if err != nil {
			c.tel.ReportWarning(report_client_active_auctions, err)
			continue
		}
		lotJson := item
		if isObject(extra.Lot) {
			lotJson = extra.Lot
		}
		var w lots.WireLot
		err = json.Unmarshal(lotJson, &w)
		if err != nil {
			c.tel.ReportWarning(report_client_active_auctions, err)
			continue
		}
		w.Source = lots.SourceCustomer

		maxBid := extra.MyMaxBid.Decimal
		if maxBid.IsZero() {
			maxBid = extra.MaxBid.Decimal
		}
		out = append(out, CustomerLot{
			Lot:       w.Lot,
			MyMaxBid:  maxBid,
			IsWinning: bool(extra.IsWinning) || bool(extra.Winning),
		})
	}
	return out, nil
}

// FlashDeal is a turbo clock lot that can be won outright until EndsAt.
type FlashDeal struct {
	Lot    lots.Lot
	EndsAt time.Time
}

type wireFlashDeal struct {
	EndsAt       lots.FlexTime `json:"ends_at"`
	EndTime      lots.FlexTime `json:"end_time"`
	TurboEndTime lots.FlexTime `json:"turbo_end_time"`
}

func (c *Client) TurboClock(ctx context.Context) ([]FlashDeal, error) {
	body, fetchedAt, err := c.get(ctx, report_client_turbo_clock, "/turbo-clock-auctions", nil, false)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(body)
	if err != nil {
		c.tel.ReportBroken(report_client_turbo_clock, err)
		return nil, fmt.Errorf("turbo clock: %w", err)
	}

	decoded := c.decodeLots(report_client_turbo_clock, env.Items, lots.SourceTurboClock, fetchedAt)
	out := make([]FlashDeal, 0, len(decoded))
	for i, lot := range decoded {
		deal := FlashDeal{Lot: lot, EndsAt: lot.ClosesAt}
		var w wireFlashDeal
		// decodeLots skips broken items, so only trust positions when nothing was skipped
		if len(decoded) == len(env.Items) && json.Unmarshal(env.Items[i], &w) == nil {
			for _, t := range []time.Time{w.EndsAt.Time, w.EndTime.Time, w.TurboEndTime.Time} {
				if !t.IsZero() {
					deal.EndsAt = t
					break
				}
			}
		}
		out = append(out, deal)
	}
	return out, nil
}

// Lot fetches a single lot by id.
func (c *Client) Lot(ctx context.Context, id string) (lots.Lot, error) {
	body, fetchedAt, err := c.get(ctx, report_client_lot, "/lots/"+url.PathEscape(id), nil, false)
	if err != nil {
		return lots.Lot{}, err
	}
	if !isObject(body) {
		return lots.Lot{}, fmt.Errorf("lot %s: unexpected body %.80s", id, string(body))
	}

	var wrapped struct {
		Data json.RawMessage `json:"data"`
		Lot  json.RawMessage `json:"lot"`
	}
	lotJson := json.RawMessage(body)
	if json.Unmarshal(body, &wrapped) == nil {
		switch {
		case isObject(wrapped.Lot):
			lotJson = wrapped.Lot
		case isObject(wrapped.Data):
			lotJson = wrapped.Data
		}
	}

	var w lots.WireLot
	err = json.Unmarshal(lotJson, &w)
	if err != nil {
		c.tel.ReportBroken(report_client_lot, err)
		return lots.Lot{}, fmt.Errorf("lot %s: %w", id, err)
	}
	w.Source = lots.SourceSearch
	w.FetchedAt = fetchedAt
	if w.ID == "" {
		w.ID = id
	}
	return w.Lot, nil
}
