package metrics

import (
	"math"
	"sort"
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Histogram bounds for live quantiles, in microseconds (1µs to 1 hour).
const (
	histogramMin     = 1
	histogramMax     = 3600000000
	histogramSigFigs = 3
)

// Trend keeps every observed sample and reports exact aggregates.
//
// Samples are usually durations in milliseconds. Alongside the exact sample
// set, an HDR histogram is kept so that progress displays can read an
// approximate quantile without sorting.
type Trend struct {
	name string

	mu      sync.Mutex
	samples []float64
	sorted  bool
	sum     float64
	min     float64
	max     float64

	// NOTE: hdrhistogram is not safe for concurrent use; guarded by mu.
	hist *hdrhistogram.Histogram
}

// NewTrend creates an empty trend.
func NewTrend(name string) *Trend {
	return &Trend{
		name: name,
		hist: hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs),
	}
}

// Name returns the metric name.
func (t *Trend) Name() string { return t.name }

// Kind returns KindTrend.
func (t *Trend) Kind() Kind { return KindTrend }

// Add records one sample.
func (t *Trend) Add(x float64) {
	micros := int64(x * 1000)
	if micros < histogramMin {
		micros = histogramMin
	}
	if micros > histogramMax {
		micros = histogramMax
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) == 0 || x < t.min {
		t.min = x
	}
	if len(t.samples) == 0 || x > t.max {
		t.max = x
	}
	t.samples = append(t.samples, x)
	t.sum += x
	t.sorted = false
	_ = t.hist.RecordValue(micros)
}

// Count returns the number of samples.
func (t *Trend) Count() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(len(t.samples))
}

// Avg returns the arithmetic mean, or 0 when empty.
func (t *Trend) Avg() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) == 0 {
		return 0
	}
	return t.sum / float64(len(t.samples))
}

// Min returns the smallest sample, or 0 when empty.
func (t *Trend) Min() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.min
}

// Max returns the largest sample, or 0 when empty.
func (t *Trend) Max() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.max
}

// Med returns the median.
func (t *Trend) Med() (float64, bool) {
	return t.Percentile(0.5)
}

// Percentile returns the q-quantile (0 <= q <= 1) using linear interpolation
// between the closest ranks. ok is false when there are no samples.
//
// p(0) is always the minimum and p(1) the maximum.
func (t *Trend) Percentile(q float64) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percentileLocked(q)
}

func (t *Trend) percentileLocked(q float64) (float64, bool) {
	n := len(t.samples)
	if n == 0 {
		return 0, false
	}
	if !t.sorted {
		sort.Float64s(t.samples)
		t.sorted = true
	}

	if q <= 0 {
		return t.samples[0], true
	}
	if q >= 1 {
		return t.samples[n-1], true
	}

	pos := q * float64(n-1)
	lower := int(math.Floor(pos))
	upper := lower + 1
	if upper >= n {
		return t.samples[n-1], true
	}
	frac := pos - float64(lower)
	return t.samples[lower] + frac*(t.samples[upper]-t.samples[lower]), true
}

// LiveQuantile returns an approximate q-quantile from the HDR histogram.
// Used for progress output while the run is still recording.
func (t *Trend) LiveQuantile(q float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hist.TotalCount() == 0 {
		return 0
	}
	return float64(t.hist.ValueAtQuantile(q*100)) / 1000
}

// Snapshot returns the trend aggregates.
func (t *Trend) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		Name:        t.name,
		Kind:        KindTrend,
		Count:       int64(len(t.samples)),
		Percentiles: make(map[string]*float64, len(ReportedPercentiles)),
	}

	for _, q := range ReportedPercentiles {
		if v, ok := t.percentileLocked(q); ok {
			snap.Percentiles[PercentileKey(q)] = floatPtr(v)
		} else {
			snap.Percentiles[PercentileKey(q)] = nil
		}
	}

	if len(t.samples) == 0 {
		return snap
	}

	med, _ := t.percentileLocked(0.5)
	snap.Avg = floatPtr(t.sum / float64(len(t.samples)))
	snap.Min = floatPtr(t.min)
	snap.Med = floatPtr(med)
	snap.Max = floatPtr(t.max)
	return snap
}

func floatPtr(v float64) *float64 {
	return &v
}
