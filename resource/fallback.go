package resource

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/lex00/wetwire-site-go/internal/stackerr"
)

// ErrorFallbackRule rewrites an origin error into a substitute response.
type ErrorFallbackRule struct {
	MatchCode        int
	SubstituteStatus int
	CacheTTLSeconds  int
	ResponsePath     string
}

// Validate checks the rule's codes, TTL and path.
func (r ErrorFallbackRule) Validate() error {
	switch {
	case r.MatchCode < 400 || r.MatchCode > 599:
		return fmt.Errorf("%w: match code %d is not an error status", stackerr.ErrInvalidErrorMap, r.MatchCode)
	case http.StatusText(r.SubstituteStatus) == "":
		return fmt.Errorf("%w: substitute status %d for %d is not a known HTTP status", stackerr.ErrInvalidErrorMap, r.SubstituteStatus, r.MatchCode)
	case r.CacheTTLSeconds < 0:
		return fmt.Errorf("%w: negative cache TTL for %d", stackerr.ErrInvalidErrorMap, r.MatchCode)
	case !strings.HasPrefix(r.ResponsePath, "/"):
		return fmt.Errorf("%w: response path %q for %d must start with /", stackerr.ErrInvalidErrorMap, r.ResponsePath, r.MatchCode)
	}
	return nil
}

// ErrorFallbackMap is an ordered set of rules keyed by MatchCode.
// The zero value maps nothing.
type ErrorFallbackMap struct {
	rules []ErrorFallbackRule
}

// NewErrorFallbackMap validates rules and orders them by MatchCode.
// Duplicate match codes are rejected.
func NewErrorFallbackMap(rules ...ErrorFallbackRule) (ErrorFallbackMap, error) {
	seen := make(map[int]bool, len(rules))
	sorted := make([]ErrorFallbackRule, 0, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return ErrorFallbackMap{}, err
		}
		if seen[r.MatchCode] {
			return ErrorFallbackMap{}, fmt.Errorf("%w: duplicate match code %d", stackerr.ErrInvalidErrorMap, r.MatchCode)
		}
		seen[r.MatchCode] = true
		sorted = append(sorted, r)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MatchCode < sorted[j].MatchCode })
	return ErrorFallbackMap{rules: sorted}, nil
}

// DefaultSPA maps 403 and 404 to a 200 response carrying the index document,
// uncached, so client-side routes resolve in the browser.
func DefaultSPA(indexDocument string) ErrorFallbackMap {
	if indexDocument == "" {
		indexDocument = DefaultIndexDocument
	}
	path := "/" + strings.TrimPrefix(indexDocument, "/")
	return ErrorFallbackMap{rules: []ErrorFallbackRule{
		{MatchCode: http.StatusForbidden, SubstituteStatus: http.StatusOK, CacheTTLSeconds: 0, ResponsePath: path},
		{MatchCode: http.StatusNotFound, SubstituteStatus: http.StatusOK, CacheTTLSeconds: 0, ResponsePath: path},
	}}
}

// Resolve returns the rule matching an origin status code.
func (m ErrorFallbackMap) Resolve(code int) (ErrorFallbackRule, bool) {
	for _, r := range m.rules {
		if r.MatchCode == code {
			return r, true
		}
	}
	return ErrorFallbackRule{}, false
}

// Rules returns a copy of the rules ordered by MatchCode.
func (m ErrorFallbackMap) Rules() []ErrorFallbackRule {
	out := make([]ErrorFallbackRule, len(m.rules))
	copy(out, m.rules)
	return out
}

// Len returns the number of rules.
func (m ErrorFallbackMap) Len() int { return len(m.rules) }
