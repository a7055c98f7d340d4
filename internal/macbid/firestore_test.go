package macbid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"lotwatch/internal/components/telemetry"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func frame(payload string) string {
	return fmt.Sprintf("%d\n%s", len(utf16.Encode([]rune(payload))), payload)
}

func TestParseFramesCountsUTF16(t *testing.T) {
	first := `[[0,["c","SID123","",8,12,30000]]]`
	// the emoji is 2 code units, the accented letter 1, while both are more bytes
	second := `[[1,[{"note":"café 🚚"}]]]`
	frames, err := ParseFrames(frame(first) + frame(second) + "\n")
	require.NoError(t, err)
	require.Equal(t, []string{first, second}, frames)

	_, err = ParseFrames("40\n[[0,[\"noop\"]]]")
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = ParseFrames("abc\n[]")
	require.Error(t, err)
}

func TestDecodeValue(t *testing.T) {
	raw := `{
		"bid": {"integerValue": "42"},
		"price": {"doubleValue": 12.5},
		"title": {"stringValue": "Yeti cooler"},
		"closed": {"booleanValue": true},
		"gone": {"nullValue": null},
		"at": {"timestampValue": "2024-06-01T12:00:00.123Z"},
		"meta": {"mapValue": {"fields": {"n": {"integerValue": "1"}}}},
		"tags": {"arrayValue": {"values": [{"stringValue": "a"}]}}
	}`
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &fields))

	decoded, err := DecodeFields(fields)
	require.NoError(t, err)
	require.Equal(t, int64(42), decoded["bid"])
	require.Equal(t, 12.5, decoded["price"])
	require.Equal(t, "Yeti cooler", decoded["title"])
	require.Equal(t, true, decoded["closed"])
	require.Nil(t, decoded["gone"])
	require.Equal(t, int64(1717243200), decoded["at"].(time.Time).Unix())
	require.Equal(t, map[string]any{"n": int64(1)}, decoded["meta"])
	require.Equal(t, []any{"a"}, decoded["tags"])

	_, err = DecodeValue(json.RawMessage(`{"geoPointValue": {}}`))
	require.Error(t, err)
}

func TestBidUpdateFromFields(t *testing.T) {
	update := BidUpdateFromFields("123", map[string]any{
		"current_bid": int64(30),
		"bid_count":   "4",
		"is_closed":   false,
	})
	require.Equal(t, "123", update.LotID)
	require.True(t, update.CurrentBid.Equal(decimal.NewFromInt(30)))
	require.Equal(t, 4, update.BidCount)
}

func TestFirestoreListen(t *testing.T) {
	document := `{"documentChange":{"document":{"name":"projects/macbid/databases/(default)/documents/lots/555","fields":{"current_bid":{"doubleValue":17.5},"bid_count":{"integerValue":"6"}},"updateTime":"2024-06-01T12:00:00Z"},"targetIds":[2]}}`

	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, listenChannelPath, r.URL.Path)
		require.Equal(t, "projects/macbid/databases/(default)", r.URL.Query().Get("database"))

		if r.Method == http.MethodPost {
			require.NoError(t, r.ParseForm())
			require.Contains(t, r.PostForm.Get("req0___data__"), "documents/lots/555")
			w.Header().Set("X-HTTP-Session-Id", "gs1")
			fmt.Fprint(w, frame(`[[0,["c","SID123","",8,12,30000]]]`))
			return
		}

		require.Equal(t, "SID123", r.URL.Query().Get("SID"))
		require.Equal(t, "gs1", r.URL.Query().Get("gsessionid"))
		if polls.Add(1) == 1 {
			fmt.Fprint(w, frame(`[[1,[{"targetChange":{"targetChangeType":"ADD","targetIds":[2]}}]]]`))
			fmt.Fprint(w, frame(`[[2,[`+document+`]]]`))
			return
		}
		// hold the poll open until the client goes away
		<-r.Context().Done()
	}))
	defer server.Close()

	client, err := NewFirestore(FirestoreOptions{
		Session: testSession(server.URL),
		Project: "macbid",
	}, telemetry.NewTestAPI(t))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	// runs before server.Close so the held poll is released
	defer cancel()
	updates, err := client.Listen(ctx, []string{"555"})
	require.NoError(t, err)

	select {
	case u := <-updates:
		require.Equal(t, "555", u.LotID)
		require.True(t, u.CurrentBid.Equal(decimal.RequireFromString("17.5")))
		require.Equal(t, 6, u.BidCount)
		require.Equal(t, int64(1717243200), u.UpdatedAt.Unix())
	case <-ctx.Done():
		t.Fatal("no update received")
	}
	require.False(t, strings.Contains(client.documentPath("1"), "//"))
}

func TestFirestoreListenBadSessionID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		fmt.Fprint(w, frame(`[[0,["c",{"id":7},"",8,12,30000]]]`))
	}))
	defer server.Close()

	tel := telemetry.NewTestAPI(t)
	client, err := NewFirestore(FirestoreOptions{
		Session: testSession(server.URL),
		Project: "macbid",
	}, tel)
	require.NoError(t, err)

	_, err = client.Listen(context.Background(), []string{"555"})
	require.ErrorContains(t, err, "decode session id")
	require.Len(t, tel.Reports("broken", report_firestore_open), 1)
}

func TestFirestoreErrorHidesAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "AIza-secret", r.URL.Query().Get("key"))
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"status":"PERMISSION_DENIED"}}`)
	}))
	defer server.Close()

	client, err := NewFirestore(FirestoreOptions{
		Session: testSession(server.URL),
		Project: "macbid",
		APIKey:  "AIza-secret",
	}, telemetry.NewTestAPI(t))
	require.NoError(t, err)

	_, err = client.Listen(context.Background(), []string{"555"})
	var status *StatusError
	require.ErrorAs(t, err, &status)
	require.Equal(t, http.StatusForbidden, status.Status)
	require.Contains(t, err.Error(), "key=REDACTED")
	require.NotContains(t, err.Error(), "AIza-secret")
}
