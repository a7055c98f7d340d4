package macbid

import (
	"context"
	"encoding/json"
	"fmt"
	"lotwatch/internal/components/assert"
	"lotwatch/internal/components/telemetry"
	"lotwatch/internal/lots"

	"github.com/go-resty/resty/v2"
)

const report_typesense_multi_search = "typesense.multi-search"

const (
	DefaultTypesenseCollection = "lots"
	DefaultTypesenseQueryBy    = "product_name,brand,category"
)

type TypesenseOptions struct {
	Session    SessionOptions
	APIKey     string
	Collection string
}

// Typesense queries the search proxy the site's own search box uses.
type Typesense struct {
	http       *resty.Client
	apiKey     string
	collection string
	tel        telemetry.API
}

func NewTypesense(opts TypesenseOptions, tel telemetry.API) (*Typesense, error) {
	assert.NotEmptyStr(opts.Session.BaseURL, "typesense base url")
	tel = telemetry.NewScopedAPI("macbid", tel)
	if opts.Collection == "" {
		opts.Collection = DefaultTypesenseCollection
	}
	httpClient, err := NewSession(opts.Session, tel)
	if err != nil {
		return nil, err
	}
	return &Typesense{
		http:       httpClient,
		apiKey:     opts.APIKey,
		collection: opts.Collection,
		tel:        tel,
	}, nil
}

type TypesenseQuery struct {
	Collection string `json:"collection"`
	Q          string `json:"q"`
	QueryBy    string `json:"query_by"`
	FilterBy   string `json:"filter_by,omitempty"`
	SortBy     string `json:"sort_by,omitempty"`
	Page       int    `json:"page,omitempty"`
	PerPage    int    `json:"per_page,omitempty"`
}

type TypesenseResult struct {
	Found int
	Page  int
	Lots  []lots.Lot
}

type typesenseResponse struct {
	Results []struct {
		Found int               `json:"found"`
		Page  int               `json:"page"`
		Hits  []json.RawMessage `json:"hits"`
		Code  int               `json:"code"`
		Error string            `json:"error"`
	} `json:"results"`
}

// MultiSearch runs every query in one request, results are in query order.
func (t *Typesense) MultiSearch(ctx context.Context, queries []TypesenseQuery) ([]TypesenseResult, error) {
	for i := range queries {
		if queries[i].Collection == "" {
			queries[i].Collection = t.collection
		}
		if queries[i].QueryBy == "" {
			queries[i].QueryBy = DefaultTypesenseQueryBy
		}
	}

	var body typesenseResponse
	res, err := t.http.R().
		SetContext(ctx).
		SetHeader("x-typesense-api-key", t.apiKey).
		SetBody(map[string]any{"searches": queries}).
		SetResult(&body).
		Post("/multi_search")
	if err != nil {
		t.tel.ReportBroken(report_typesense_multi_search, err)
		return nil, fmt.Errorf("typesense multi search: %w", err)
	}
	err = checkResponse(res)
	if err != nil {
		return nil, err
	}
	if len(body.Results) != len(queries) {
		return nil, fmt.Errorf("typesense multi search: got %d results for %d queries", len(body.Results), len(queries))
	}

	out := make([]TypesenseResult, len(body.Results))
	for i, r := range body.Results {
		if r.Error != "" {
			return nil, fmt.Errorf("typesense query '%s': %d %s", queries[i].Q, r.Code, r.Error)
		}
		hits := unwrapDocuments(r.Hits)
		decoded := make([]lots.Lot, 0, len(hits))
		for _, h := range hits {
			var w lots.WireLot
			err := json.Unmarshal(h, &w)
			if err != nil {
				t.tel.ReportWarning(report_typesense_multi_search, err)
				continue
			}
			w.Source = lots.SourceTypesense
			decoded = append(decoded, w.Lot)
		}
		out[i] = TypesenseResult{Found: r.Found, Page: r.Page, Lots: decoded}
	}
	return out, nil
}

// Search adapts a single search page onto MultiSearch.
func (t *Typesense) Search(ctx context.Context, params SearchParams) (SearchPage, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PerPage <= 0 {
		params.PerPage = 48
	}
	query := TypesenseQuery{
		Q:       params.Term,
		Page:    params.Page,
		PerPage: params.PerPage,
	}
	if params.Location != "" {
		query.FilterBy = fmt.Sprintf("auction_location:%s", params.Location)
	}

	results, err := t.MultiSearch(ctx, []TypesenseQuery{query})
	if err != nil {
		return SearchPage{}, err
	}
	r := results[0]
	return SearchPage{
		Lots:  r.Lots,
		Total: r.Found,
		Page:  params.Page,
		Pages: (r.Found + params.PerPage - 1) / params.PerPage,
	}, nil
}
