// Package stagnation detects when discovery has plateaued: a sliding window
// over per-iteration new-eligible counts whose sum falls below a threshold.
package stagnation

import "errors"

// Tracker keeps the last windowSize observations of "new eligible items this
// iteration". It is owned by a single feedback loop and is not safe for
// concurrent use.
type Tracker struct {
	windowSize  int
	minNewTotal int
	values      []int
	observed    int
}

// New constructs a tracker. windowSize must be positive and minNewTotal
// non-negative.
func New(windowSize, minNewTotal int) (*Tracker, error) {
	if windowSize <= 0 {
		return nil, errors.New("stagnation: window size must be positive")
	}
	if minNewTotal < 0 {
		return nil, errors.New("stagnation: min new total must be non-negative")
	}
	return &Tracker{windowSize: windowSize, minNewTotal: minNewTotal}, nil
}

// Push appends an observation, evicting the oldest once the window is full,
// and reports whether discovery has stagnated. Stagnation requires a full
// window and a window sum strictly below the threshold. When the threshold
// exceeds the window size, at least minNewTotal observations must have been
// made first; without that warm-up the tracker would trigger before enough
// history exists.
func (t *Tracker) Push(value int) bool {
	t.values = append(t.values, value)
	t.observed++
	for len(t.values) > t.windowSize {
		t.values = t.values[1:]
	}

	if len(t.values) < t.windowSize {
		return false
	}
	if t.minNewTotal > t.windowSize && t.observed < t.minNewTotal {
		return false
	}
	return t.Total() < t.minNewTotal
}

// Total returns the sum of the current window, for diagnostics.
func (t *Tracker) Total() int {
	sum := 0
	for _, v := range t.values {
		sum += v
	}
	return sum
}
