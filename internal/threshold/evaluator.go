package threshold

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/wesleyorama2/bookload/internal/metrics"
)

// Status is the outcome of one threshold.
type Status int

const (
	// StatusPassed means the predicate held.
	StatusPassed Status = iota
	// StatusFailed means the predicate was breached.
	StatusFailed
	// StatusInconclusive means there was nothing to evaluate against.
	StatusInconclusive
)

func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusInconclusive:
		return "inconclusive"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "passed":
		*s = StatusPassed
	case "failed":
		*s = StatusFailed
	case "inconclusive":
		*s = StatusInconclusive
	default:
		return fmt.Errorf("unknown threshold status: %s", text)
	}
	return nil
}

// Result contains the result of a threshold evaluation.
type Result struct {
	Metric      string   `json:"metric"`
	Expression  string   `json:"expression"`
	Status      Status   `json:"status"`
	Actual      *float64 `json:"actual"`
	Message     string   `json:"message,omitempty"`
	AbortOnFail bool     `json:"abortOnFail,omitempty"`
}

// Summary is the evaluation of every configured threshold.
type Summary struct {
	Results []Result `json:"results"`

	// Passed is true when no threshold failed. Inconclusive thresholds do
	// not fail the run; they are counted separately.
	Passed       bool `json:"passed"`
	Failed       int  `json:"failed"`
	Inconclusive int  `json:"inconclusive"`
}

// Evaluator evaluates a fixed set of thresholds against a registry.
type Evaluator struct {
	thresholds []*Threshold
}

// NewEvaluator creates an evaluator over the thresholds, in order.
func NewEvaluator(thresholds []*Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Thresholds returns the configured thresholds.
func (e *Evaluator) Thresholds() []*Threshold {
	return e.thresholds
}

// HasAbort reports whether any threshold may abort the run.
func (e *Evaluator) HasAbort() bool {
	for _, t := range e.thresholds {
		if t.AbortOnFail {
			return true
		}
	}
	return false
}

// Evaluate evaluates every threshold against the registry. elapsed is the
// run time so far, used for per-second counter rates. It never fails: a
// threshold that cannot be evaluated is reported as inconclusive.
func (e *Evaluator) Evaluate(reg *metrics.Registry, elapsed time.Duration) Summary {
	summary := Summary{
		Results: make([]Result, 0, len(e.thresholds)),
		Passed:  true,
	}

	for _, t := range e.thresholds {
		r := evaluate(t, reg, elapsed)
		switch r.Status {
		case StatusFailed:
			summary.Failed++
			summary.Passed = false
		case StatusInconclusive:
			summary.Inconclusive++
		}
		summary.Results = append(summary.Results, r)
	}

	return summary
}

// Breached returns the failed thresholds that are allowed to abort the run
// at the given elapsed time.
func (e *Evaluator) Breached(reg *metrics.Registry, elapsed time.Duration) []Result {
	var breached []Result
	for _, t := range e.thresholds {
		if !t.AbortOnFail || elapsed < t.DelayAbortEval {
			continue
		}
		if r := evaluate(t, reg, elapsed); r.Status == StatusFailed {
			breached = append(breached, r)
		}
	}
	return breached
}

func evaluate(t *Threshold, reg *metrics.Registry, elapsed time.Duration) Result {
	result := Result{
		Metric:      t.Metric,
		Expression:  t.Expression,
		Status:      StatusInconclusive,
		AbortOnFail: t.AbortOnFail,
	}

	m, ok := reg.Get(t.Metric)
	if !ok {
		result.Message = "metric was never observed"
		return result
	}

	actual, msg := aggregate(t, m, elapsed)
	if msg != "" {
		result.Message = msg
		return result
	}

	result.Actual = &actual
	if t.Check(actual) {
		result.Status = StatusPassed
	} else {
		result.Status = StatusFailed
		result.Message = fmt.Sprintf("%s is %s, threshold: %s %s",
			aggName(t), formatFloat(actual), t.Operator, formatFloat(t.Value))
	}
	return result
}

// aggregate extracts the threshold's aggregation from the metric. A
// non-empty message means the threshold is inconclusive.
func aggregate(t *Threshold, m metrics.Metric, elapsed time.Duration) (float64, string) {
	switch metric := m.(type) {
	case *metrics.Trend:
		if metric.Count() == 0 {
			return 0, "no samples"
		}
		switch t.Aggregation {
		case AggAvg:
			return metric.Avg(), ""
		case AggMin:
			return metric.Min(), ""
		case AggMax:
			return metric.Max(), ""
		case AggCount:
			return float64(metric.Count()), ""
		case AggMed:
			v, _ := metric.Med()
			return v, ""
		case AggPercentile:
			v, ok := metric.Percentile(t.Quantile)
			if !ok {
				return 0, "no samples"
			}
			return v, ""
		}

	case *metrics.Rate:
		if metric.Total() == 0 {
			return 0, "no samples"
		}
		switch t.Aggregation {
		case AggRate:
			return metric.Rate(), ""
		case AggCount:
			return float64(metric.Passes()), ""
		}

	case *metrics.Counter:
		if metric.Snapshot().Count == 0 {
			return 0, "no samples"
		}
		switch t.Aggregation {
		case AggCount, AggValue:
			return metric.Value(), ""
		case AggRate:
			if elapsed <= 0 {
				return 0, "run has no elapsed time"
			}
			return metric.Value() / elapsed.Seconds(), ""
		}
	}

	return 0, fmt.Sprintf("%s does not apply to %s metrics", aggName(t), m.Kind())
}

func aggName(t *Threshold) string {
	if t.Aggregation == AggPercentile {
		return metrics.PercentileKey(t.Quantile)
	}
	return t.Aggregation
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
}
