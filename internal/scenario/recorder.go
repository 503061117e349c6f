package scenario

import (
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/bookload/internal/metrics"
)

// Recorder writes scenario outcomes into the metric registry.
type Recorder struct {
	registry *metrics.Registry
	logger   *zap.Logger
}

// NewRecorder creates a recorder over reg.
func NewRecorder(reg *metrics.Registry, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{registry: reg, logger: logger}
}

// Record records one iteration of s that took iterDuration.
//
// Every check is observed in the checks rate and in a per-check sub-metric.
// The errors rate observes true for an unsuccessful outcome unless the
// scenario's Expected predicate excuses it.
func (r *Recorder) Record(s *Scenario, o Outcome, iterDuration time.Duration) {
	r.counter(metrics.Iterations, 1)
	r.trend(metrics.IterationDuration, iterDuration)

	if o.Skipped {
		return
	}

	for _, c := range o.Checks {
		r.rate(metrics.Checks, c.Passed)
		r.rate(metrics.Checks+"{check:"+c.Label+"}", c.Passed)
	}

	if s.Policy.Trend != "" && (o.StatusCode != 0 || o.RequestDuration > 0) {
		r.trend(s.Policy.Trend, o.RequestDuration)
	}

	expected := s.Policy.Expected != nil && s.Policy.Expected(o)
	isError := !o.Success() && !expected
	r.rate(metrics.Errors, isError)
	if isError {
		r.logger.Debug("scenario error",
			zap.String("scenario", s.Name),
			zap.Int("status", o.StatusCode),
			zap.Error(o.Err))
	}

	if s.Policy.Counter != "" && s.Policy.CountIf != nil && s.Policy.CountIf(o) {
		r.counter(s.Policy.Counter, 1)
	}
}

func (r *Recorder) trend(name string, d time.Duration) {
	t, err := r.registry.Trend(name)
	if err != nil {
		r.logger.Warn("recording metric", zap.Error(err))
		return
	}
	t.Add(float64(d) / float64(time.Millisecond))
}

func (r *Recorder) rate(name string, v bool) {
	rate, err := r.registry.Rate(name)
	if err != nil {
		r.logger.Warn("recording metric", zap.Error(err))
		return
	}
	rate.Add(v)
}

func (r *Recorder) counter(name string, n float64) {
	c, err := r.registry.Counter(name)
	if err != nil {
		r.logger.Warn("recording metric", zap.Error(err))
		return
	}
	c.Add(n)
}
