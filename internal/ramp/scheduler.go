package ramp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultTick is how often the scheduler recomputes the VU target.
const DefaultTick = 100 * time.Millisecond

// Scaler adjusts the number of running VUs. *vu.Pool implements it.
type Scaler interface {
	ScaleTo(target int) int
}

// Stats is a point-in-time view of scheduler progress.
type Stats struct {
	StartTime     time.Time     `json:"startTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`
	TargetVUs     int           `json:"targetVUs"`
	ActiveVUs     int           `json:"activeVUs"`
	CurrentStage  int           `json:"currentStage"`
	StageName     string        `json:"stageName,omitempty"`
	TotalStages   int           `json:"totalStages"`
	Progress      float64       `json:"progress"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTick sets the scheduling interval.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithLogger sets the scheduler's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStopSignal makes Run return early once stop is closed.
func WithStopSignal(stop <-chan struct{}) Option {
	return func(s *Scheduler) {
		s.stop = stop
	}
}

// Scheduler moves a Scaler through a Profile on a fixed tick.
type Scheduler struct {
	profile Profile
	scaler  Scaler
	tick    time.Duration
	logger  *zap.Logger
	stop    <-chan struct{}

	mu        sync.RWMutex
	startTime time.Time

	running      atomic.Bool
	finished     atomic.Bool
	target       atomic.Int32
	active       atomic.Int32
	currentStage atomic.Int32
}

// NewScheduler creates a scheduler for profile driving scaler.
func NewScheduler(profile Profile, scaler Scaler, opts ...Option) *Scheduler {
	s := &Scheduler{
		profile: profile,
		scaler:  scaler,
		tick:    DefaultTick,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Profile returns the scheduler's profile.
func (s *Scheduler) Profile() Profile {
	return s.profile
}

// Run blocks until the profile completes, the stop signal fires or ctx is
// done. It returns ctx.Err() only when ctx ended the run.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.startTime = time.Now()
	s.mu.Unlock()
	s.running.Store(true)
	defer s.running.Store(false)

	s.currentStage.Store(-1)
	if s.step(0) {
		s.finished.Store(true)
		return nil
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			s.logger.Info("ramp stopped early", zap.Duration("elapsed", s.elapsed()))
			return nil
		case <-ticker.C:
			if s.step(s.elapsed()) {
				s.finished.Store(true)
				s.logger.Info("ramp profile complete", zap.Duration("elapsed", s.elapsed()))
				return nil
			}
		}
	}
}

// step applies the target for elapsed time t and reports whether the
// profile has completed.
func (s *Scheduler) step(t time.Duration) bool {
	target, done := s.profile.TargetAt(t)
	s.target.Store(int32(target))
	s.active.Store(int32(s.scaler.ScaleTo(target)))

	stage := int32(s.profile.StageAt(t))
	if prev := s.currentStage.Swap(stage); prev != stage && !done {
		st := s.profile.stages[stage]
		s.logger.Info("ramp stage",
			zap.Int("stage", int(stage)+1),
			zap.Int("of", len(s.profile.stages)),
			zap.Int("target", st.Target),
			zap.Duration("duration", st.Duration),
			zap.String("name", st.Name))
	}
	return done
}

func (s *Scheduler) elapsed() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

// Finished reports whether the profile ran to completion.
func (s *Scheduler) Finished() bool {
	return s.finished.Load()
}

// GetProgress returns current progress (0.0 to 1.0).
func (s *Scheduler) GetProgress() float64 {
	if !s.running.Load() {
		if s.elapsed() == 0 {
			return 0
		}
		if s.finished.Load() {
			return 1
		}
	}
	progress := float64(s.elapsed()) / float64(s.profile.total)
	if progress > 1 {
		progress = 1
	}
	return progress
}

// GetStats returns scheduler statistics.
func (s *Scheduler) GetStats() Stats {
	s.mu.RLock()
	start := s.startTime
	s.mu.RUnlock()

	stage := int(s.currentStage.Load())
	name := ""
	if stage >= 0 && stage < len(s.profile.stages) {
		name = s.profile.stages[stage].Name
	}

	return Stats{
		StartTime:     start,
		Elapsed:       s.elapsed(),
		TotalDuration: s.profile.total,
		TargetVUs:     int(s.target.Load()),
		ActiveVUs:     int(s.active.Load()),
		CurrentStage:  stage,
		StageName:     name,
		TotalStages:   len(s.profile.stages),
		Progress:      s.GetProgress(),
	}
}
