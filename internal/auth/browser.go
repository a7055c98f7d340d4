package auth

import (
	"context"
	"errors"
	"fmt"
	"lotwatch/internal/store"
	"math"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	DefaultCredentialName = "default"
	DefaultLoginURL       = "https://www.mac.bid/login"
)

// tokenExpression reads whichever key the frontend stored the jwt under.
const tokenExpression = `localStorage.getItem("token") || localStorage.getItem("access_token") || localStorage.getItem("accessToken") || ""`

type LoginOptions struct {
	Email    string
	Password string
	Headless bool
	LoginURL string
	// Timeout bounds the whole login, zero means 2 minutes.
	Timeout   time.Duration
	UserAgent string
}

func browserFlags(opts LoginOptions) []chromedp.ExecAllocatorOption {
	flags := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if opts.UserAgent != "" {
		flags = append(flags, chromedp.UserAgent(opts.UserAgent))
	}
	return flags
}

func fromNetworkCookies(cookies []*network.Cookie) []store.Cookie {
	out := make([]store.Cookie, 0, len(cookies))
	for _, c := range cookies {
		cookie := store.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		}
		// session cookies report an expiry of -1
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			cookie.Expires = time.Unix(int64(sec), int64(frac*1e9))
		}
		out = append(out, cookie)
	}
	return out
}

// BrowserLogin signs in through a real chrome instance and returns the jwt
// the site stored in localStorage along with the session cookies.
func BrowserLogin(ctx context.Context, opts LoginOptions) (store.Credential, error) {
	if opts.Email == "" || opts.Password == "" {
		return store.Credential{}, fmt.Errorf("browser login needs an email and password")
	}
	if opts.LoginURL == "" {
		opts.LoginURL = DefaultLoginURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute * 2
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, browserFlags(opts)...)
	defer allocCancel()
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	browserCtx, timeoutCancel := context.WithTimeout(browserCtx, opts.Timeout)
	defer timeoutCancel()

	var token string
	var cookies []*network.Cookie
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(opts.LoginURL),
		chromedp.WaitVisible(`input[type="email"], input[name="email"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[type="email"], input[name="email"]`, opts.Email, chromedp.ByQuery),
		chromedp.SendKeys(`input[type="password"]`, opts.Password, chromedp.ByQuery),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		chromedp.Poll(tokenExpression, &token, chromedp.WithPollingInterval(time.Millisecond*500)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
	)
	if errors.Is(err, context.DeadlineExceeded) {
		return store.Credential{}, fmt.Errorf("browser login: no token after %s, check the credentials", opts.Timeout)
	}
	if err != nil {
		return store.Credential{}, fmt.Errorf("browser login: %w", err)
	}

	cred := store.Credential{
		Name:    DefaultCredentialName,
		Token:   token,
		Cookies: fromNetworkCookies(cookies),
	}
	claims, err := ParseJWT(token, time.Now())
	if err == nil || errors.Is(err, ErrTokenExpired) {
		cred.CustomerID = claims.CustomerID
		cred.ExpiresAt = claims.ExpiresAt
	}
	return cred, nil
}
