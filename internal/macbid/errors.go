package macbid

import (
	"errors"
	"fmt"
	"lotwatch/internal/components/telemetry"
	"net/http"

	"github.com/go-resty/resty/v2"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrServer       = errors.New("server error")
)

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// StatusError is returned for every non 2xx response. It unwraps to one of
// the sentinel errors when the status falls into a known class.
type StatusError struct {
	Status int
	Method string
	URL    string
	Body   string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, body)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return ErrUnauthorized
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.Status >= 500:
		return ErrServer
	}
	return nil
}

func checkResponse(res *resty.Response) error {
	if res.IsSuccess() {
		return nil
	}
	return &StatusError{
		Status: res.StatusCode(),
		Method: res.Request.Method,
		URL:    telemetry.RedactURL(res.Request.URL),
		Body:   res.String(),
	}
}
