// Package metrics provides the run-scoped metric collectors used by the load engine.
//
// Three kinds of metric exist:
//   - Trend: numeric distribution (avg, min, med, max, percentiles)
//   - Rate: proportion of true observations
//   - Counter: monotonic sum
//
// Metrics are identified by name and created lazily on first use through a
// Registry. The kind of a metric is fixed by its first use.
//
// # Thread Safety
//
// Every collector serialises its own mutations; the Registry only locks its
// name index while looking up or creating a metric, so recordings into
// different metrics never contend with each other.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Kind identifies the type of a metric.
type Kind int

const (
	// KindTrend is a numeric distribution.
	KindTrend Kind = iota + 1
	// KindRate is a boolean proportion.
	KindRate
	// KindCounter is a monotonic sum.
	KindCounter
)

func (k Kind) String() string {
	switch k {
	case KindTrend:
		return "trend"
	case KindRate:
		return "rate"
	case KindCounter:
		return "counter"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "trend":
		*k = KindTrend
	case "rate":
		*k = KindRate
	case "counter":
		*k = KindCounter
	default:
		return fmt.Errorf("unknown metric kind: %s", text)
	}
	return nil
}

// ErrKindMismatch is returned when a metric name is reused with a different kind.
var ErrKindMismatch = errors.New("metric kind mismatch")

// Metric is the common interface of all collectors.
type Metric interface {
	// Name returns the unique metric name.
	Name() string

	// Kind returns the metric kind.
	Kind() Kind

	// Snapshot returns a consistent point-in-time view of the aggregate.
	Snapshot() Snapshot
}

// Builtin metric names recorded by the engine itself.
const (
	HTTPReqs          = "http_reqs"
	HTTPReqDuration   = "http_req_duration"
	HTTPReqFailed     = "http_req_failed"
	DataReceived      = "data_received"
	Iterations        = "iterations"
	IterationDuration = "iteration_duration"
	Checks            = "checks"
	Errors            = "errors"

	HTTPReqConnecting     = "http_req_connecting"
	HTTPReqTLSHandshaking = "http_req_tls_handshaking"
	HTTPReqWaiting        = "http_req_waiting"
	HTTPReqReceiving      = "http_req_receiving"
)

// Registry holds every metric of one run.
type Registry struct {
	metrics map[string]Metric
	mu      sync.RWMutex

	startTime time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		metrics:   make(map[string]Metric),
		startTime: time.Now(),
	}
}

// StartTime returns when the registry was created.
func (r *Registry) StartTime() time.Time {
	return r.startTime
}

// Trend returns the named trend, creating it if needed.
func (r *Registry) Trend(name string) (*Trend, error) {
	m, err := r.getOrCreate(name, KindTrend, func() Metric { return NewTrend(name) })
	if err != nil {
		return nil, err
	}
	return m.(*Trend), nil
}

// Rate returns the named rate, creating it if needed.
func (r *Registry) Rate(name string) (*Rate, error) {
	m, err := r.getOrCreate(name, KindRate, func() Metric { return NewRate(name) })
	if err != nil {
		return nil, err
	}
	return m.(*Rate), nil
}

// Counter returns the named counter, creating it if needed.
func (r *Registry) Counter(name string) (*Counter, error) {
	m, err := r.getOrCreate(name, KindCounter, func() Metric { return NewCounter(name) })
	if err != nil {
		return nil, err
	}
	return m.(*Counter), nil
}

func (r *Registry) getOrCreate(name string, kind Kind, create func() Metric) (Metric, error) {
	r.mu.RLock()
	m, ok := r.metrics[name]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		m, ok = r.metrics[name]
		if !ok {
			m = create()
			r.metrics[name] = m
		}
		r.mu.Unlock()
	}

	if m.Kind() != kind {
		return nil, fmt.Errorf("%w: %q is a %s, requested %s", ErrKindMismatch, name, m.Kind(), kind)
	}
	return m, nil
}

// Get returns a metric by name.
func (r *Registry) Get(name string) (Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metrics[name]
	return m, ok
}

// Names returns all metric names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Snapshot returns snapshots of all metrics keyed by name.
func (r *Registry) Snapshot() map[string]Snapshot {
	r.mu.RLock()
	all := make([]Metric, 0, len(r.metrics))
	for _, m := range r.metrics {
		all = append(all, m)
	}
	r.mu.RUnlock()

	result := make(map[string]Snapshot, len(all))
	for _, m := range all {
		result[m.Name()] = m.Snapshot()
	}
	return result
}

// Snapshot is a point-in-time view of one metric.
//
// Only the fields relevant to the metric kind are populated. Percentiles
// are nil when the trend has no samples.
type Snapshot struct {
	Name string `json:"name"`
	Kind Kind   `json:"type"`

	// Trend
	Count       int64               `json:"count"`
	Avg         *float64            `json:"avg,omitempty"`
	Min         *float64            `json:"min,omitempty"`
	Med         *float64            `json:"med,omitempty"`
	Max         *float64            `json:"max,omitempty"`
	Percentiles map[string]*float64 `json:"percentiles,omitempty"`

	// Rate
	Rate   float64 `json:"rate"`
	Passes int64   `json:"passes,omitempty"`
	Fails  int64   `json:"fails,omitempty"`

	// Counter
	Value float64 `json:"value"`
}

// ReportedPercentiles are the percentiles included in trend snapshots.
var ReportedPercentiles = []float64{0.90, 0.95, 0.99}

// PercentileKey formats a quantile the way thresholds and reports name it, e.g. "p(95)".
func PercentileKey(q float64) string {
	return "p(" + strconv.FormatFloat(math.Round(q*1e6)/1e4, 'f', -1, 64) + ")"
}
