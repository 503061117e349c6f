package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wesleyorama2/bookload/internal/metrics"
)

// Stop reasons.
const (
	StopCompleted   = "completed"
	StopInterrupted = "interrupted"
	StopAborted     = "aborted"
)

// vuCounter is the part of the VU pool the run state reports on.
type vuCounter interface {
	Active() int
	MaxActive() int
}

// RunState is the state of one run, shared by reference between the
// scheduler, the abort monitor and the reporters.
type RunState struct {
	RunID     string
	StartTime time.Time
	Metrics   *metrics.Registry

	vus vuCounter

	stopOnce sync.Once
	stopCh   chan struct{}

	mu          sync.RWMutex
	stopReason  string
	abortDetail string
	stopTime    time.Time
}

func newRunState(reg *metrics.Registry) *RunState {
	return &RunState{
		RunID:   uuid.NewString(),
		Metrics: reg,
		stopCh:  make(chan struct{}),
	}
}

// ActiveVUs returns the current number of active VUs.
func (s *RunState) ActiveVUs() int {
	if s.vus == nil {
		return 0
	}
	return s.vus.Active()
}

// MaxVUs returns the highest number of VUs active at once.
func (s *RunState) MaxVUs() int {
	if s.vus == nil {
		return 0
	}
	return s.vus.MaxActive()
}

// Stop closes the stop channel. Only the first reason is kept.
func (s *RunState) Stop(reason, detail string) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopReason = reason
		s.abortDetail = detail
		s.stopTime = time.Now()
		s.mu.Unlock()
		close(s.stopCh)
	})
}

// Stopping is closed once the run has been asked to stop.
func (s *RunState) Stopping() <-chan struct{} {
	return s.stopCh
}

// StopReason returns why the run stopped, or "" while it is running.
func (s *RunState) StopReason() (reason, detail string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopReason, s.abortDetail
}

// Elapsed returns the time since the run started.
func (s *RunState) Elapsed() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	return time.Since(s.StartTime)
}
