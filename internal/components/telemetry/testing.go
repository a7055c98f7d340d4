package telemetry

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

// Report is a single report captured by TestAPI.
type Report struct {
	Kind   string
	ID     string
	Params []any
}

// TestAPI logs every report through t.Log and keeps them around so tests can
// assert that a component reported a breakage.
type TestAPI struct {
	t       testing.TB
	mu      *sync.Mutex
	reports *[]Report
}

func NewTestAPI(t testing.TB) TestAPI {
	return TestAPI{t: t, mu: &sync.Mutex{}, reports: &[]Report{}}
}

func (a TestAPI) record(kind, id string, params []any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	*a.reports = append(*a.reports, Report{Kind: kind, ID: id, Params: params})
	a.t.Log(kind, id, fmt.Sprint(params...))
}

func (a TestAPI) ReportBroken(id string, params ...any) {
	a.record("broken", id, params)
}

func (a TestAPI) ReportWarning(id string, params ...any) {
	a.record("warning", id, params)
}

func (a TestAPI) ReportDebug(msg string, params ...any) {
	a.record("debug", msg, params)
}

func (a TestAPI) ReportCount(id string, count int64) {
	a.record("count", id, []any{count})
}

// Reports returns every report of the given kind whose id contains `id`.
func (a TestAPI) Reports(kind, id string) []Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Report
	for _, r := range *a.reports {
		if r.Kind == kind && strings.Contains(r.ID, id) {
			out = append(out, r)
		}
	}
	return out
}
