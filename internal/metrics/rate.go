package metrics

import (
	"sync"
)

// Rate tracks the proportion of true observations.
//
// Both counts sit behind one mutex so a reader never sees a true count
// that is ahead of the total.
type Rate struct {
	name string

	mu    sync.Mutex
	trues int64
	total int64
}

// NewRate creates an empty rate.
func NewRate(name string) *Rate {
	return &Rate{name: name}
}

// Name returns the metric name.
func (r *Rate) Name() string { return r.name }

// Kind returns KindRate.
func (r *Rate) Kind() Kind { return KindRate }

// Add records one boolean observation.
func (r *Rate) Add(v bool) {
	r.mu.Lock()
	r.total++
	if v {
		r.trues++
	}
	r.mu.Unlock()
}

// Rate returns trues/total, or 0 when nothing has been observed.
func (r *Rate) Rate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ratio(r.trues, r.total)
}

// Passes returns the number of true observations.
func (r *Rate) Passes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trues
}

// Fails returns the number of false observations.
func (r *Rate) Fails() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total - r.trues
}

// Total returns the number of observations.
func (r *Rate) Total() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Snapshot returns the rate aggregates.
func (r *Rate) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Name:   r.name,
		Kind:   KindRate,
		Count:  r.total,
		Rate:   ratio(r.trues, r.total),
		Passes: r.trues,
		Fails:  r.total - r.trues,
	}
}

func ratio(trues, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(trues) / float64(total)
}
