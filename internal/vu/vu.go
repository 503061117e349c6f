// Package vu runs virtual users: goroutines that repeatedly pick a weighted
// scenario, execute it against the target and record the outcome.
package vu

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/bookload/internal/metrics"
	"github.com/wesleyorama2/bookload/internal/scenario"
)

// State represents the lifecycle state of a Virtual User.
type State int32

const (
	// StateIdle indicates the VU is between iterations.
	StateIdle State = iota
	// StateRunning indicates the VU is executing an iteration.
	StateRunning
	// StateStopping indicates the VU has been asked to stop after its
	// current iteration.
	StateStopping
	// StateStopped indicates the VU goroutine has exited.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SleepRange is the think time drawn uniformly between iterations.
type SleepRange struct {
	Min time.Duration
	Max time.Duration
}

// Draw returns a duration in [Min, Max].
func (r SleepRange) Draw(rng *rand.Rand) time.Duration {
	if r.Max <= r.Min {
		if r.Min < 0 {
			return 0
		}
		return r.Min
	}
	return r.Min + time.Duration(rng.Int63n(int64(r.Max-r.Min)+1))
}

// VirtualUser is a single simulated user.
//
// A VU owns its random source, so the sequence of scenarios it picks is
// reproducible for a given seed and id. It shares only the metric registry
// and whatever the scenario actions share between themselves.
type VirtualUser struct {
	ID int

	sampler  *scenario.Sampler
	recorder *scenario.Recorder
	sleep    SleepRange
	logger   *zap.Logger
	rng      *rand.Rand
	sc       scenario.Context

	state     atomic.Int32
	iteration atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneOnce sync.Once
	doneCh   chan struct{}
}

// NewVirtualUser creates a VU whose random source is seeded with seed+id.
func NewVirtualUser(id int, seed int64, sampler *scenario.Sampler, recorder *scenario.Recorder,
	reg *metrics.Registry, sleep SleepRange, logger *zap.Logger) *VirtualUser {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.Int("vu", id))
	rng := rand.New(rand.NewSource(seed + int64(id)))

	return &VirtualUser{
		ID:       id,
		sampler:  sampler,
		recorder: recorder,
		sleep:    sleep,
		logger:   logger,
		rng:      rng,
		sc: scenario.Context{
			VUID:    id,
			Rand:    rng,
			Logger:  logger,
			Metrics: reg,
		},
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() State {
	return State(vu.state.Load())
}

// GetIteration returns the number of iterations started.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// Run executes iterations until the VU is asked to stop or ctx is done.
//
// The stop request is observed only between iterations. ctx is the request
// context: once it is cancelled the in-flight iteration is abandoned and its
// outcome is not recorded.
func (vu *VirtualUser) Run(ctx context.Context) {
	defer vu.MarkStopped()
	vu.logger.Debug("vu started")

	for {
		if vu.stopping(ctx) {
			vu.logger.Debug("vu stopped", zap.Int64("iterations", vu.iteration.Load()))
			return
		}

		if !vu.runIteration(ctx) {
			return
		}

		if !vu.think(ctx) {
			vu.logger.Debug("vu stopped during sleep", zap.Int64("iterations", vu.iteration.Load()))
			return
		}
	}
}

func (vu *VirtualUser) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-vu.stopCh:
		return true
	default:
		return false
	}
}

// runIteration picks and executes one scenario. It returns false when the
// request context was cancelled underneath it.
func (vu *VirtualUser) runIteration(ctx context.Context) bool {
	s := vu.sampler.Pick(vu.rng)

	vu.state.CompareAndSwap(int32(StateIdle), int32(StateRunning))
	vu.sc.Iteration = vu.iteration.Add(1) - 1

	start := time.Now()
	outcome := vu.execute(ctx, s)
	elapsed := time.Since(start)

	vu.state.CompareAndSwap(int32(StateRunning), int32(StateIdle))

	if ctx.Err() != nil {
		vu.logger.Debug("discarding cancelled iteration", zap.String("scenario", s.Name))
		return false
	}

	vu.recorder.Record(s, outcome, elapsed)
	return true
}

func (vu *VirtualUser) execute(ctx context.Context, s *scenario.Scenario) (outcome scenario.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			vu.logger.Error("scenario panicked", zap.String("scenario", s.Name), zap.Any("panic", r))
			outcome = scenario.Outcome{Err: fmt.Errorf("scenario %s panicked: %v", s.Name, r)}
		}
	}()
	return s.Action(ctx, &vu.sc)
}

// think sleeps for a random duration. It returns false when interrupted.
func (vu *VirtualUser) think(ctx context.Context) bool {
	d := vu.sleep.Draw(vu.rng)
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-vu.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// RequestStop signals the VU to stop after completing the current iteration.
func (vu *VirtualUser) RequestStop() {
	vu.stopOnce.Do(func() {
		if vu.GetState() != StateStopped {
			vu.state.Store(int32(StateStopping))
		}
		close(vu.stopCh)
	})
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-vu.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

// Done is closed when the VU goroutine exits.
func (vu *VirtualUser) Done() <-chan struct{} {
	return vu.doneCh
}

// MarkStopped marks the VU as fully stopped.
func (vu *VirtualUser) MarkStopped() {
	vu.state.Store(int32(StateStopped))
	vu.doneOnce.Do(func() { close(vu.doneCh) })
}
