package telemetry

import (
	"fmt"
)

// API is how components report what happens to them. Components never log
// directly so tests can swap in TestAPI and assert on what was reported.
type API interface {
	// ReportBroken reports a component that stopped working and needs a fix.
	//
	// `id` names the component, not the line that failed: `client.search`
	// rather than `client.search-decode`. Put the details in params or in the
	// wrapped error. Ids are lowercase, use underscores inside a name and a
	// dot between a type and its method. ScopedAPI adds the package, so ids
	// only need `<type>.<method>`.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something that may be fine but is worth a look
	// (a retried request, a malformed lot that was skipped).
	ReportWarning(id string, params ...any)

	// ReportDebug is only shown when running verbose.
	ReportDebug(msg string, params ...any)

	// ReportCount reports how many of something happened in one run, counts
	// are data points over time and should not be summed.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a package namespace, nesting scopes
// joins them with dots.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	if scoped, ok := inner.(ScopedAPI); ok {
		return ScopedAPI{namespace: scoped.namespace + "." + namespace, inner: scoped.inner}
	}
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) id(id string) string {
	return fmt.Sprintf("%s: %s", s.namespace, id)
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.id(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.id(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.id(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.id(id), count)
}
