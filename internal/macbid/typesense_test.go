package macbid

import (
	"encoding/json"
	"io"
	"lotwatch/internal/components/telemetry"
	"lotwatch/internal/lots"
	"lotwatch/lib/testutil"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestTypesense(t *testing.T, handler http.HandlerFunc) *Typesense {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	ts, err := NewTypesense(TypesenseOptions{
		Session: testSession(server.URL),
		APIKey:  "search-only-key",
	}, telemetry.NewTestAPI(t))
	require.NoError(t, err)
	return ts
}

type multiSearchRequest struct {
	Searches []TypesenseQuery `json:"searches"`
}

func readSearches(t *testing.T, r *http.Request) []TypesenseQuery {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var req multiSearchRequest
	require.NoError(t, json.Unmarshal(raw, &req))
	return req.Searches
}

func TestTypesenseMultiSearch(t *testing.T) {
	ts := newTestTypesense(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/multi_search", r.URL.Path)
		require.Equal(t, "search-only-key", r.Header.Get("x-typesense-api-key"))

		searches := readSearches(t, r)
		require.Len(t, searches, 2)
		require.Equal(t, "drill", searches[0].Q)
		require.Equal(t, DefaultTypesenseCollection, searches[0].Collection)
		require.Equal(t, DefaultTypesenseQueryBy, searches[0].QueryBy)
		require.Equal(t, "archive", searches[1].Collection)
		require.Equal(t, "brand", searches[1].QueryBy)

		writeJSON(w, 200, `{"results": [
			{"found": 2, "page": 1, "hits": [
				{"document": {"lot_id": "1", "product_name": "DeWalt drill", "current_bid": "4.00"}, "highlights": []},
				{"document": {"lot_id": "2", "product_name": "Ryobi drill"}}
			]},
			{"found": 0, "page": 1, "hits": []}
		]}`)
	})

	results, err := ts.MultiSearch(testutil.Context(t), []TypesenseQuery{
		{Q: "drill"},
		{Q: "saw", Collection: "archive", QueryBy: "brand"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Equal(t, 2, results[0].Found)
	require.Len(t, results[0].Lots, 2)
	require.Equal(t, "1", results[0].Lots[0].ID)
	require.Equal(t, "DeWalt drill", results[0].Lots[0].Title)
	require.True(t, results[0].Lots[0].CurrentBid.Equal(decimal.NewFromInt(4)))
	require.Equal(t, lots.SourceTypesense, results[0].Lots[1].Source)
	require.Empty(t, results[1].Lots)
}

func TestTypesenseQueryError(t *testing.T) {
	ts := newTestTypesense(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"results": [
			{"found": 1, "page": 1, "hits": [{"document": {"lot_id": "1"}}]},
			{"code": 404, "error": "Could not find a field named 'nope' in the schema."}
		]}`)
	})

	_, err := ts.MultiSearch(testutil.Context(t), []TypesenseQuery{{Q: "a"}, {Q: "b", QueryBy: "nope"}})
	require.ErrorContains(t, err, "typesense query 'b'")
	require.ErrorContains(t, err, "404")
}

func TestTypesenseResultCountMismatch(t *testing.T) {
	ts := newTestTypesense(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"results": [{"found": 0, "hits": []}]}`)
	})

	_, err := ts.MultiSearch(testutil.Context(t), []TypesenseQuery{{Q: "a"}, {Q: "b"}})
	require.ErrorContains(t, err, "got 1 results for 2 queries")
}

func TestTypesenseStatusError(t *testing.T) {
	ts := newTestTypesense(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, `{"message": "Forbidden - a valid x-typesense-api-key header must be sent."}`)
	})

	_, err := ts.MultiSearch(testutil.Context(t), []TypesenseQuery{{Q: "a"}})
	var status *StatusError
	require.ErrorAs(t, err, &status)
	require.Equal(t, 401, status.Status)
}

func TestTypesenseSearchPage(t *testing.T) {
	ts := newTestTypesense(t, func(w http.ResponseWriter, r *http.Request) {
		searches := readSearches(t, r)
		require.Len(t, searches, 1)
		require.Equal(t, "auction_location:Greenville", searches[0].FilterBy)
		require.Equal(t, 2, searches[0].Page)
		require.Equal(t, 10, searches[0].PerPage)
		writeJSON(w, 200, `{"results": [{"found": 25, "page": 2, "hits": [{"document": {"lot_id": "9"}}]}]}`)
	})

	page, err := ts.Search(testutil.Context(t), SearchParams{Term: "tv", Page: 2, PerPage: 10, Location: "Greenville"})
	require.NoError(t, err)
	require.Equal(t, 25, page.Total)
	require.Equal(t, 3, page.Pages)
	require.Len(t, page.Lots, 1)
	require.Equal(t, "9", page.Lots[0].ID)
}
