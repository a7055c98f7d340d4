package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
)

// InstrumentOutput receives full request/response dumps, keyed by request id.
type InstrumentOutput interface {
	Write(id string, contents string)
}

// redactedHeaders never make it into a dump.
var redactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Set-Cookie",
	"X-Typesense-Api-Key",
	"X-Goog-Api-Key",
}

// redactedParams are query parameters that carry credentials, such as the
// firestore web api key.
var redactedParams = []string{
	"key",
	"api_key",
	"apikey",
	"x-typesense-api-key",
	"token",
	"access_token",
}

// RedactURL replaces the value of credential query parameters with
// "REDACTED", leaving the rest of the url as is.
func RedactURL(rawUrl string) string {
	base, query, ok := strings.Cut(rawUrl, "?")
	if !ok || query == "" {
		return rawUrl
	}
	fragment := ""
	if i := strings.IndexByte(query, '#'); i >= 0 {
		query, fragment = query[:i], query[i:]
	}

	parts := strings.Split(query, "&")
	for i, part := range parts {
		key, _, _ := strings.Cut(part, "=")
		name, err := url.QueryUnescape(key)
		if err != nil {
			name = key
		}
		redact := slices.ContainsFunc(redactedParams, func(p string) bool {
			return strings.EqualFold(p, name)
		})
		if redact {
			parts[i] = key + "=REDACTED"
		}
	}
	return base + "?" + strings.Join(parts, "&") + fragment
}

type instrumentResty struct {
	tel       API
	output    InstrumentOutput
	idcounter *atomic.Uint64
}

// InstrumentResty reports every request the client makes to `tel`. When
// `output` is not nil it also receives a dump of every exchange with
// credentials redacted.
func InstrumentResty(client *resty.Client, tel API, output InstrumentOutput) {
	i := instrumentResty{tel: tel, output: output, idcounter: &atomic.Uint64{}}

	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

type reqCtxKeyType int

var reqCtxKey reqCtxKeyType

type reqCtx struct {
	id uint64
	// only used for latency, so it does not go through chrono
	startTime time.Time
	attempt   int
}

func (i instrumentResty) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	ctx := req.Context()
	rc := reqCtx{
		id:        i.idcounter.Add(1),
		startTime: time.Now(),
		attempt:   req.Attempt,
	}
	req.SetContext(context.WithValue(ctx, reqCtxKey, rc))
	i.tel.ReportDebug(report_resty_request, rc.id, req.Method, RedactURL(req.URL))
	return nil
}

func (i instrumentResty) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	rc, ok := res.Request.Context().Value(reqCtxKey).(reqCtx)
	if !ok {
		return nil
	}

	i.tel.ReportDebug(
		report_resty_response,
		rc.id,
		time.Since(rc.startTime).Round(time.Millisecond).String(),
		res.Status(),
		fmt.Sprintf("%d bytes", len(res.Body())),
	)
	if i.output != nil {
		i.output.Write(strconv.FormatUint(rc.id, 10), formatHttpMessage(res))
	}
	return nil
}

func (i instrumentResty) onError(req *resty.Request, err error) {
	var took time.Duration
	attempt := req.Attempt
	rc, ok := req.Context().Value(reqCtxKey).(reqCtx)
	if ok {
		took = time.Since(rc.startTime)
	}
	i.tel.ReportWarning(report_resty_response, err, req.Method, RedactURL(req.URL), took, attempt)
}

func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var out strings.Builder
	for _, k := range keys {
		redact := slices.ContainsFunc(redactedHeaders, func(h string) bool {
			return strings.EqualFold(h, k)
		})
		for _, v := range headers[k] {
			if redact {
				v = "<redacted>"
			}
			fmt.Fprintf(&out, "%s: %s\n", k, v)
		}
	}
	return strings.TrimSuffix(out.String(), "\n")
}

func formatRequestBody(req *http.Request) string {
	if req == nil || req.GetBody == nil {
		return "<no body>"
	}
	body, err := req.GetBody()
	if err != nil {
		return "failed to get request body: " + err.Error()
	}
	contents, err := io.ReadAll(body)
	if err != nil {
		return "failed to read request body: " + err.Error()
	}
	return string(contents)
}

func formatHttpMessage(res *resty.Response) string {
	var out strings.Builder

	out.WriteString("---- REQUEST ----\n\n")
	fmt.Fprintf(&out, "%s %s (attempt %d)\n\n", res.Request.Method, RedactURL(res.Request.URL), res.Request.Attempt)
	if res.Request.RawRequest != nil {
		out.WriteString(formatHeaders(res.Request.RawRequest.Header))
	}
	out.WriteString("\n\n")
	out.WriteString(formatRequestBody(res.Request.RawRequest))

	responseUrl := res.Request.URL
	if res.RawResponse != nil {
		redirected, err := res.RawResponse.Location()
		if err == nil {
			responseUrl = redirected.String()
		}
	}
	out.WriteString("\n\n---- RESPONSE ----\n\n")
	fmt.Fprintf(&out, "%d %s (%s)\n\n", res.StatusCode(), RedactURL(responseUrl), res.Time().Round(time.Millisecond))
	out.WriteString(formatHeaders(res.Header()))
	out.WriteString("\n\n")
	out.Write(res.Body())
	return out.String()
}
