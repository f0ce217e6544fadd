package deletion

import (
	"errors"
	"maps"
	"net/http"
	"slices"
	"sync"

	"github.com/cyp0633/caldelete/internal/xml"
	"github.com/cyp0633/caldelete/server/storage"
)

// Outcome is the result of a delete: either a plain status, or a multi-status
// listing the members that could not be deleted.
type Outcome struct {
	Status int
	// Failures maps member URI to its status. Only set for multi-status outcomes.
	Failures map[string]int
}

func noContent() Outcome {
	return Outcome{Status: http.StatusNoContent}
}

// OK reports whether everything was deleted.
func (o Outcome) OK() bool {
	return o.Status == http.StatusNoContent
}

// IsMultiStatus reports whether o carries per-member failures.
func (o Outcome) IsMultiStatus() bool {
	return o.Status == http.StatusMultiStatus
}

// Multistatus renders the failures as a DAV multistatus body, ordered by URI.
func (o Outcome) Multistatus() *xml.MultistatusResponse {
	resp := &xml.MultistatusResponse{}
	for _, uri := range slices.Sorted(maps.Keys(o.Failures)) {
		resp.Responses = append(resp.Responses, xml.Response{
			Href:   uri,
			Status: xml.StatusLine(o.Failures[uri]),
		})
	}
	return resp
}

// outcomeOf converts the result of a physical Store.Delete into an Outcome.
// Anything other than success or a partial delete is returned as an error.
func outcomeOf(err error) (Outcome, error) {
	if err == nil {
		return noContent(), nil
	}
	var partial *storage.PartialDeleteError
	if !errors.As(err, &partial) {
		return Outcome{}, err
	}
	failures := make(map[string]int, len(partial.Failures))
	for uri, memberErr := range partial.Failures {
		failures[uri] = childStatus(memberErr)
	}
	return Outcome{Status: http.StatusMultiStatus, Failures: failures}, nil
}

// Aggregator accumulates per-member failures of a batch delete. It is safe for
// concurrent use.
type Aggregator struct {
	uri           string
	defaultStatus int

	mu       sync.Mutex
	failures map[string]int
}

// NewAggregator creates an aggregator for the batch rooted at uri that
// succeeds with 204 No Content unless a member fails.
func NewAggregator(uri string) *Aggregator {
	return &Aggregator{
		uri:           uri,
		defaultStatus: http.StatusNoContent,
		failures:      make(map[string]int),
	}
}

// Add records that the member at uri failed with status.
func (a *Aggregator) Add(uri string, status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[uri] = status
}

// Merge unions the failures of o into the aggregator. Plain outcomes carry no
// failures and leave it unchanged.
func (a *Aggregator) Merge(o Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	maps.Copy(a.failures, o.Failures)
}

// URI returns the URI of the batch.
func (a *Aggregator) URI() string {
	return a.uri
}

// Len returns the number of failed members recorded.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.failures)
}

// Outcome returns the default status if nothing failed, else a multi-status.
func (a *Aggregator) Outcome() Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.failures) == 0 {
		return Outcome{Status: a.defaultStatus}
	}
	return Outcome{Status: http.StatusMultiStatus, Failures: maps.Clone(a.failures)}
}
