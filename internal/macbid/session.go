// Package macbid talks to the undocumented endpoints behind mac.bid: the
// search api, the typesense proxy, next.js data routes and the firestore
// listen channel.
package macbid

import (
	"lotwatch/internal/components/assert"
	"lotwatch/internal/components/telemetry"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIBaseURL  = "https://api.macdiscount.com"
	DefaultSiteBaseURL = "https://www.mac.bid"
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

type SessionOptions struct {
	BaseURL   string
	UserAgent string
	// Token is sent as a bearer token when not empty.
	Token   string
	Headers map[string]string
	Timeout time.Duration
	// RequestsPerSecond and Burst configure the token bucket, zero means
	// 2 requests per second.
	RequestsPerSecond float64
	Burst             int
	// Retries is how many times 429 and 5xx responses are retried, zero means
	// 3 and a negative value disables retries.
	Retries int
	// RetryWait is the initial backoff between retries, zero means 500ms.
	RetryWait time.Duration
	// Jar is shared between sessions that must see the same cookies, a new
	// jar is created when it is nil.
	Jar http.CookieJar
	// Output receives full http dumps when not nil.
	Output telemetry.InstrumentOutput
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Timeout == 0 {
		o.Timeout = time.Second * 30
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = 2
	}
	if o.Burst <= 0 {
		o.Burst = 2
	}
	if o.RetryWait <= 0 {
		o.RetryWait = time.Millisecond * 500
	}
	switch {
	case o.Retries == 0:
		o.Retries = 3
	case o.Retries < 0:
		o.Retries = 0
	}
	return o
}

// NewSession builds the resty client every mac.bid client shares: spoofed
// browser headers, a cookie jar, the cloudflare bypass transport, a rate
// limiter and retries on 429/5xx.
func NewSession(opts SessionOptions, tel telemetry.API) (*resty.Client, error) {
	assert.NotNil(tel, "telemetry")
	assert.NotEmptyStr(opts.BaseURL, "session base url")
	opts = opts.withDefaults()

	parsedBaseUrl, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseURL)
	jar := opts.Jar
	if jar == nil {
		jar, err = cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
	}
	httpClient.SetCookieJar(jar)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)

	httpClient.SetHeader("user-agent", opts.UserAgent)
	httpClient.SetHeader("accept", "application/json, text/plain, */*")
	httpClient.SetHeader("origin", DefaultSiteBaseURL)
	httpClient.SetHeader("referer", DefaultSiteBaseURL+"/")
	for k, v := range opts.Headers {
		httpClient.SetHeader(k, v)
	}
	if opts.Token != "" {
		httpClient.SetAuthToken(opts.Token)
	}
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsedBaseUrl.Hostname()))
	httpClient.SetTimeout(opts.Timeout)

	httpClient.SetRetryCount(opts.Retries)
	httpClient.SetRetryWaitTime(opts.RetryWait)
	httpClient.SetRetryMaxWaitTime(time.Second * 8)
	httpClient.AddRetryCondition(func(res *resty.Response, err error) bool {
		if err != nil || res == nil {
			return err != nil
		}
		return isRetryableStatus(res.StatusCode())
	})

	// max burst >= rate just means that no requests will be dropped
	rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, tel, opts.Output)
	return httpClient, nil
}
