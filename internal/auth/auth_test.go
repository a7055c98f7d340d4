package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"lotwatch/internal/components/telemetry"
	"lotwatch/internal/store"
	"lotwatch/internal/store/db"
	"lotwatch/lib/testutil"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func makeJWT(t *testing.T, claims map[string]any) string {
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatal(err)
	}
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".c2lnbmF0dXJl"
}

func TestParseJWT(t *testing.T) {
	token := makeJWT(t, map[string]any{
		"sub":         "user-1",
		"customer_id": 4242,
		"exp":         now.Add(time.Hour).Unix(),
	})
	claims, err := ParseJWT(token, now)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "4242", claims.CustomerID)
	require.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())

	expired := makeJWT(t, map[string]any{"customerId": "7", "exp": now.Add(-time.Minute).Unix()})
	claims, err = ParseJWT(expired, now)
	require.ErrorIs(t, err, ErrTokenExpired)
	require.Equal(t, "7", claims.CustomerID)

	fractional := makeJWT(t, map[string]any{"exp": float64(now.Add(time.Hour).Unix()) + 0.5})
	claims, err = ParseJWT(fractional, now)
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())

	_, err = ParseJWT("opaque-token", now)
	require.ErrorIs(t, err, ErrNotJWT)

	_, err = ParseJWT("a.!!!.c", now)
	require.Error(t, err)
}

func TestTokenSourceChain(t *testing.T) {
	ctx := testutil.Context(t)
	tel := telemetry.NewTestAPI(t)
	st := store.NewStore(testutil.OpenDB(t, db.Schema))
	clock := func() time.Time { return now }

	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token.json")
	fileToken := makeJWT(t, map[string]any{"customer_id": "from-file"})
	require.NoError(t, os.WriteFile(tokenPath, []byte(`{"token": "`+fileToken+`"}`), 0600))

	source := TokenSource{Store: st, FilePath: tokenPath, Now: clock, Tel: tel}

	// nothing stored, so the file wins
	resolved, err := source.Resolve(ctx)
	require.NoError(t, err)
	require.Equal(t, OriginFile, resolved.Origin)
	require.Equal(t, "from-file", resolved.CustomerID)

	// a stored credential outranks the file
	require.NoError(t, st.SaveCredential(ctx, store.Credential{
		Name: DefaultCredentialName, Token: "opaque", CustomerID: "stored",
	}))
	resolved, err = source.Resolve(ctx)
	require.NoError(t, err)
	require.Equal(t, OriginCredential, resolved.Origin)
	require.Equal(t, "stored", resolved.CustomerID)

	// an explicit token outranks everything, unless it expired
	source.Explicit = makeJWT(t, map[string]any{"exp": now.Add(-time.Hour).Unix()})
	resolved, err = source.Resolve(ctx)
	require.NoError(t, err)
	require.Equal(t, OriginCredential, resolved.Origin)
	require.Len(t, tel.Reports("warning", report_token_source_resolve), 1)

	source.Explicit = "explicit"
	source.CustomerID = "configured"
	resolved, err = source.Resolve(ctx)
	require.NoError(t, err)
	require.Equal(t, OriginExplicit, resolved.Origin)
	require.Equal(t, "configured", resolved.CustomerID)
}

func TestTokenSourceEmpty(t *testing.T) {
	ctx := context.Background()

	_, err := TokenSource{FilePath: filepath.Join(t.TempDir(), "missing")}.Resolve(ctx)
	require.ErrorIs(t, err, ErrNoToken)

	expired := makeJWT(t, map[string]any{"exp": now.Add(-time.Hour).Unix()})
	_, err = TokenSource{Explicit: expired, Now: func() time.Time { return now }}.Resolve(ctx)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestRawTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("  raw-token\n"), 0600))
	value, customerID, err := readTokenFile(path)
	require.NoError(t, err)
	require.Equal(t, "raw-token", value)
	require.Equal(t, "", customerID)
}

func TestFromNetworkCookies(t *testing.T) {
	cookies := fromNetworkCookies([]*network.Cookie{
		{Name: "session", Value: "abc", Domain: ".mac.bid", Path: "/", Expires: -1},
		{Name: "cf", Value: "x", Domain: ".mac.bid", Path: "/", Expires: 1717243200.5},
	})
	require.Len(t, cookies, 2)
	require.True(t, cookies[0].Expires.IsZero())
	require.Equal(t, int64(1717243200), cookies[1].Expires.Unix())
}

func TestApplyCookies(t *testing.T) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	ApplyCookies(jar, []store.Cookie{
		{Name: "session", Value: "abc", Domain: ".mac.bid", Path: "/"},
		{Name: "ignored", Value: "x"},
	})

	site, _ := url.Parse("https://www.mac.bid/account")
	got := jar.Cookies(site)
	require.Len(t, got, 1)
	require.Equal(t, "session", got[0].Name)

	other, _ := url.Parse("https://api.macdiscount.com/search")
	require.Empty(t, jar.Cookies(other))
}
