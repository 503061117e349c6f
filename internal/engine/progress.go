package engine

import (
	"time"

	"github.com/wesleyorama2/bookload/internal/metrics"
)

// Progress is a live view of a running test.
type Progress struct {
	Elapsed       time.Duration
	TotalDuration time.Duration
	Percent       float64

	Stage       int // 1-based
	TotalStages int
	StageName   string

	TargetVUs int
	ActiveVUs int

	Iterations float64
	Requests   float64
	ErrorRate  float64

	// P95 is an approximate p(95) of http_req_duration in milliseconds.
	P95 float64
}

// Progress returns live run progress. ok is false before the run starts.
func (e *Engine) Progress() (p Progress, ok bool) {
	e.mu.RLock()
	sched := e.scheduler
	e.mu.RUnlock()
	if sched == nil {
		return Progress{}, false
	}

	stats := sched.GetStats()
	p = Progress{
		Elapsed:       stats.Elapsed,
		TotalDuration: stats.TotalDuration,
		Percent:       sched.GetProgress() * 100,
		Stage:         stats.CurrentStage + 1,
		TotalStages:   stats.TotalStages,
		StageName:     stats.StageName,
		TargetVUs:     stats.TargetVUs,
		ActiveVUs:     e.state.ActiveVUs(),
	}

	if m, found := e.registry.Get(metrics.Iterations); found {
		if c, isCounter := m.(*metrics.Counter); isCounter {
			p.Iterations = c.Value()
		}
	}
	if m, found := e.registry.Get(metrics.HTTPReqs); found {
		if c, isCounter := m.(*metrics.Counter); isCounter {
			p.Requests = c.Value()
		}
	}
	if m, found := e.registry.Get(metrics.HTTPReqFailed); found {
		if r, isRate := m.(*metrics.Rate); isRate {
			p.ErrorRate = r.Rate()
		}
	}
	if m, found := e.registry.Get(metrics.HTTPReqDuration); found {
		if t, isTrend := m.(*metrics.Trend); isTrend {
			p.P95 = t.LiveQuantile(0.95)
		}
	}
	return p, true
}
