// Package threshold parses and evaluates pass/fail predicates over run metrics.
//
// A threshold expression has the form
//
//	aggregation operator value
//
// for example "p(95)<500", "rate<0.1" or "avg <= 1.5s". Supported
// aggregations are avg, min, max, med, count, rate, value and p(N).
// Values may carry a "ms" or "s" suffix and are then compared in
// milliseconds, the unit of every duration trend.
package threshold

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidExpression is returned for expressions that cannot be parsed.
var ErrInvalidExpression = errors.New("invalid threshold expression")

// Aggregation names.
const (
	AggAvg        = "avg"
	AggMin        = "min"
	AggMax        = "max"
	AggMed        = "med"
	AggCount      = "count"
	AggRate       = "rate"
	AggValue      = "value"
	AggPercentile = "p"
)

var exprPattern = regexp.MustCompile(
	`^([a-z]+)(?:\(\s*([0-9]+(?:\.[0-9]+)?)\s*\))?\s*(<=|>=|==|!=|<|>)\s*(-?[0-9]+(?:\.[0-9]+)?(?:[eE][-+]?[0-9]+)?)\s*(ms|s)?$`,
)

// Threshold is one parsed predicate bound to a metric name.
type Threshold struct {
	Metric     string
	Expression string

	Aggregation string
	// Quantile is set for p(N) aggregations, in [0, 1].
	Quantile float64
	Operator string
	Value    float64

	// AbortOnFail stops the run as soon as the threshold fails mid-run.
	AbortOnFail bool
	// DelayAbortEval postpones abort checks until this much of the run has
	// elapsed, so early noise cannot abort a run.
	DelayAbortEval time.Duration
}

// Parse parses expr as a threshold on metric.
func Parse(metric, expr string) (*Threshold, error) {
	metric = strings.TrimSpace(metric)
	if metric == "" {
		return nil, fmt.Errorf("%w: metric name is required", ErrInvalidExpression)
	}

	trimmed := strings.TrimSpace(expr)
	matches := exprPattern.FindStringSubmatch(trimmed)
	if matches == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidExpression, expr)
	}

	t := &Threshold{
		Metric:      metric,
		Expression:  trimmed,
		Aggregation: matches[1],
		Operator:    matches[3],
	}

	switch t.Aggregation {
	case AggAvg, AggMin, AggMax, AggMed, AggCount, AggRate, AggValue:
		if matches[2] != "" {
			return nil, fmt.Errorf("%w: %q takes no argument", ErrInvalidExpression, t.Aggregation)
		}
	case AggPercentile:
		if matches[2] == "" {
			return nil, fmt.Errorf("%w: p() requires a percentile, e.g. p(95)", ErrInvalidExpression)
		}
		pct, err := strconv.ParseFloat(matches[2], 64)
		if err != nil || pct < 0 || pct > 100 {
			return nil, fmt.Errorf("%w: percentile %s out of range [0, 100]", ErrInvalidExpression, matches[2])
		}
		t.Quantile = pct / 100
	default:
		return nil, fmt.Errorf("%w: unknown aggregation %q", ErrInvalidExpression, t.Aggregation)
	}

	value, err := strconv.ParseFloat(matches[4], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad value %q: %v", ErrInvalidExpression, matches[4], err)
	}
	if matches[5] == "s" {
		value *= 1000
	}
	t.Value = value

	return t, nil
}

// MustParse is like Parse but panics on error. For tests and presets.
func MustParse(metric, expr string) *Threshold {
	t, err := Parse(metric, expr)
	if err != nil {
		panic(err)
	}
	return t
}

// Check compares actual against the threshold value.
func (t *Threshold) Check(actual float64) bool {
	return compareValues(actual, t.Operator, t.Value)
}

func (t *Threshold) String() string {
	return t.Metric + ": " + t.Expression
}

func compareValues(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==":
		return actual == threshold
	case "!=":
		return actual != threshold
	default:
		return false
	}
}
