package macbid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"lotwatch/internal/components/telemetry"
	"lotwatch/internal/lots"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	report_nextdata_build_id = "nextdata.build-id"
	report_nextdata_fetch    = "nextdata.fetch"
)

var ErrNoBuildID = errors.New("no next.js build id on page")

type NextDataOptions struct {
	Session SessionOptions
	// BuildIDTTL is how long a discovered build id is trusted, zero means 30 minutes.
	BuildIDTTL time.Duration
}

// NextData reads the json the next.js frontend hydrates its pages from. The
// build id in those routes changes on every deploy, so it is discovered
// from the homepage and rediscovered when a route 404s.
type NextData struct {
	http     *resty.Client
	buildIds *expirable.LRU[string, string]
	tel      telemetry.API
}

func NewNextData(opts NextDataOptions, tel telemetry.API) (*NextData, error) {
	tel = telemetry.NewScopedAPI("macbid", tel)
	if opts.Session.BaseURL == "" {
		opts.Session.BaseURL = DefaultSiteBaseURL
	}
	if opts.BuildIDTTL <= 0 {
		opts.BuildIDTTL = time.Minute * 30
	}
	httpClient, err := NewSession(opts.Session, tel)
	if err != nil {
		return nil, err
	}
	return &NextData{
		http:     httpClient,
		buildIds: expirable.NewLRU[string, string](8, nil, opts.BuildIDTTL),
		tel:      tel,
	}, nil
}

// ParseBuildID extracts the build id from the __NEXT_DATA__ script of a page.
func ParseBuildID(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", err
	}
	script := doc.Find("script#__NEXT_DATA__").First()
	if script.Length() == 0 {
		return "", ErrNoBuildID
	}
	var data struct {
		BuildID string `json:"buildId"`
	}
	err = json.Unmarshal([]byte(script.Text()), &data)
	if err != nil {
		return "", fmt.Errorf("parse __NEXT_DATA__: %w", err)
	}
	if data.BuildID == "" {
		return "", ErrNoBuildID
	}
	return data.BuildID, nil
}

func (n *NextData) discover(ctx context.Context) (string, error) {
	res, err := n.http.R().
		SetContext(ctx).
		SetHeader("accept", "text/html").
		Get("/")
	if err != nil {
		n.tel.ReportBroken(report_nextdata_build_id, err)
		return "", fmt.Errorf("fetch homepage: %w", err)
	}
	err = checkResponse(res)
	if err != nil {
		return "", err
	}
	buildId, err := ParseBuildID(res.Body())
	if err != nil {
		n.tel.ReportBroken(report_nextdata_build_id, err)
		return "", err
	}
	n.tel.ReportDebug("discovered build id", buildId)
	n.buildIds.Add(n.http.BaseURL, buildId)
	return buildId, nil
}

// BuildID returns the cached build id, discovering it when needed.
func (n *NextData) BuildID(ctx context.Context) (string, error) {
	cached, ok := n.buildIds.Get(n.http.BaseURL)
	if ok {
		return cached, nil
	}
	return n.discover(ctx)
}

func (n *NextData) fetchWith(ctx context.Context, buildId, route string, out any) error {
	path := fmt.Sprintf("/_next/data/%s/%s.json", url.PathEscape(buildId), route)
	res, err := n.http.R().
		SetContext(ctx).
		SetHeader("x-nextjs-data", "1").
		Get(path)
	if err != nil {
		n.tel.ReportBroken(report_nextdata_fetch, err, route)
		return fmt.Errorf("GET %s: %w", path, err)
	}
	err = checkResponse(res)
	if err != nil {
		return err
	}
	err = json.Unmarshal(res.Body(), out)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Fetch decodes the data route for `route` (ex. "lot/123") into out. A 404
// triggers one rediscovery of the build id.
func (n *NextData) Fetch(ctx context.Context, route string, out any) error {
	route = strings.Trim(route, "/")
	buildId, err := n.BuildID(ctx)
	if err != nil {
		return err
	}

	err = n.fetchWith(ctx, buildId, route, out)
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	n.buildIds.Remove(n.http.BaseURL)
	fresh, err := n.discover(ctx)
	if err != nil {
		return err
	}
	if fresh == buildId {
		return fmt.Errorf("route %s: %w", route, ErrNotFound)
	}
	n.tel.ReportWarning(report_nextdata_fetch, "stale build id", buildId, fresh)
	return n.fetchWith(ctx, fresh, route, out)
}

// LotPage returns the lot from the page props of the lot detail page.
func (n *NextData) LotPage(ctx context.Context, id string) (lots.Lot, error) {
	var page struct {
		PageProps struct {
			Lot json.RawMessage `json:"lot"`
		} `json:"pageProps"`
	}
	err := n.Fetch(ctx, "lot/"+url.PathEscape(id), &page)
	if err != nil {
		return lots.Lot{}, err
	}
	if !isObject(page.PageProps.Lot) {
		return lots.Lot{}, fmt.Errorf("lot page %s: %w", id, ErrNotFound)
	}
	var w lots.WireLot
	err = json.Unmarshal(page.PageProps.Lot, &w)
	if err != nil {
		return lots.Lot{}, fmt.Errorf("lot page %s: %w", id, err)
	}
	w.Source = lots.SourceNextData
	if w.ID == "" {
		w.ID = id
	}
	return w.Lot, nil
}
