// Package results keeps the append-only log of completed reaction samples
// and the running statistics derived from it.
package results

import (
	"sync"
	"time"
)

// Sample is one completed, non-premature reaction.
type Sample struct {
	Timestamp      time.Time `json:"timestamp"`
	ReactionTimeMs int64     `json:"reactionTimeMs"`
}

// Stats are derived from the log. Average and Best are nil when it is empty.
type Stats struct {
	Count   int
	Average *float64
	Best    *int64
}

// Aggregator is safe for concurrent use. Writes come from the session loop,
// reads also come from the UI goroutine.
type Aggregator struct {
	mu      sync.RWMutex
	samples []Sample
	sum     int64
	best    int64
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Append adds a sample to the end of the log and folds it into the running
// sum and minimum.
func (a *Aggregator) Append(s Sample) {
	if s.ReactionTimeMs < 0 {
		s.ReactionTimeMs = 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.samples) == 0 || s.ReactionTimeMs < a.best {
		a.best = s.ReactionTimeMs
	}
	a.sum += s.ReactionTimeMs
	a.samples = append(a.samples, s)
}

// Reset clears the log and statistics in one step.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples = nil
	a.sum = 0
	a.best = 0
}

func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	st := Stats{Count: len(a.samples)}
	if st.Count == 0 {
		return st
	}
	avg := float64(a.sum) / float64(st.Count)
	best := a.best
	st.Average = &avg
	st.Best = &best
	return st
}

// Samples returns a copy of the log in completion order.
func (a *Aggregator) Samples() []Sample {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Sample, len(a.samples))
	copy(out, a.samples)
	return out
}

// History returns a copy of the log, newest first.
func (a *Aggregator) History() []Sample {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Sample, len(a.samples))
	for i, s := range a.samples {
		out[len(a.samples)-1-i] = s
	}
	return out
}

func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.samples)
}
