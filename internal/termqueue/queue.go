// Package termqueue implements the FIFO of pending query terms with
// queue-scoped deduplication. A term that has been popped may be re-added;
// presence is tracked only for terms currently queued.
package termqueue

import (
	"errors"
	"strings"

	"loom/internal/textutil"
)

// Normalize trims whitespace and strips a single leading '#' from a query
// term. Casing is preserved; dedup comparisons fold separately.
func Normalize(value string) string {
	term := strings.TrimSpace(value)
	term = strings.TrimPrefix(term, "#")
	return strings.TrimSpace(term)
}

// Queue is a FIFO of query terms. It is not safe for concurrent use; the
// feedback loop owns it for the duration of a run.
type Queue struct {
	terms   []string
	present map[string]struct{}
}

// New constructs a queue seeded with the provided terms.
func New(initial ...string) *Queue {
	q := &Queue{present: make(map[string]struct{})}
	q.AddMany(initial)
	return q
}

// Len reports the number of queued terms.
func (q *Queue) Len() int {
	return len(q.terms)
}

// Add enqueues a term, returning true when it was newly enqueued. Empty terms
// and terms already present (case-folded comparison) are rejected.
func (q *Queue) Add(term string) bool {
	norm := Normalize(term)
	if norm == "" {
		return false
	}
	key := textutil.Fold(norm)
	if _, ok := q.present[key]; ok {
		return false
	}
	q.present[key] = struct{}{}
	q.terms = append(q.terms, norm)
	return true
}

// AddMany enqueues each term in order and returns how many were newly added.
func (q *Queue) AddMany(terms []string) int {
	added := 0
	for _, term := range terms {
		if q.Add(term) {
			added++
		}
	}
	return added
}

// PopBatch removes and returns up to size terms in FIFO order. A non-positive
// size is a caller error.
func (q *Queue) PopBatch(size int) ([]string, error) {
	if size <= 0 {
		return nil, errors.New("termqueue: batch size must be positive")
	}
	n := min(size, len(q.terms))
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		term := q.terms[0]
		q.terms = q.terms[1:]
		delete(q.present, textutil.Fold(term))
		out = append(out, term)
	}
	return out, nil
}

// PresentKeys returns the case-folded keys of the terms currently queued.
func (q *Queue) PresentKeys() map[string]struct{} {
	out := make(map[string]struct{}, len(q.present))
	for key := range q.present {
		out[key] = struct{}{}
	}
	return out
}
