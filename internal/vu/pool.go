package vu

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/bookload/internal/metrics"
	"github.com/wesleyorama2/bookload/internal/scenario"
)

// ErrMissingSampler is returned when a pool is created without scenarios.
var ErrMissingSampler = errors.New("vu pool requires a scenario sampler")

// PoolConfig contains everything the pool hands to the VUs it spawns.
type PoolConfig struct {
	Sampler  *scenario.Sampler
	Recorder *scenario.Recorder
	Metrics  *metrics.Registry
	Logger   *zap.Logger

	// Seed is added to each VU id to seed that VU's random source.
	Seed  int64
	Sleep SleepRange

	// HTTPClient is the client shared by every VU. Its idle connections
	// are closed on Shutdown.
	HTTPClient *http.Client
}

// Pool manages the lifecycle of Virtual Users.
//
// ScaleTo spawns new VUs or drains the most recently spawned ones. A
// drained VU finishes its current iteration before its goroutine exits,
// so Running can briefly exceed Active.
type Pool struct {
	cfg    PoolConfig
	ctx    context.Context
	logger *zap.Logger

	mu      sync.Mutex
	vus     []*VirtualUser
	nextID  int
	stopped bool

	active    atomic.Int32
	maxActive atomic.Int32
	running   atomic.Int32
	wg        sync.WaitGroup
}

// NewPool creates a VU pool. ctx is the request context given to every VU;
// cancelling it aborts in-flight requests.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	if cfg.Sampler == nil {
		return nil, ErrMissingSampler
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = scenario.NewRecorder(cfg.Metrics, cfg.Logger)
	}

	return &Pool{
		cfg:    cfg,
		ctx:    ctx,
		logger: cfg.Logger,
	}, nil
}

// ScaleTo adjusts the number of active VUs to target and returns the new
// active count. It has no effect after StopAll.
func (p *Pool) ScaleTo(target int) int {
	if target < 0 {
		target = 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return len(p.vus)
	}

	current := len(p.vus)
	switch {
	case target > current:
		for i := current; i < target; i++ {
			p.spawnLocked()
		}
	case target < current:
		for i := current - 1; i >= target; i-- {
			p.vus[i].RequestStop()
			p.vus[i] = nil
		}
		p.vus = p.vus[:target]
	}

	if target != current {
		p.logger.Debug("scaled vus", zap.Int("from", current), zap.Int("to", target))
	}

	p.active.Store(int32(len(p.vus)))
	if n := int32(len(p.vus)); n > p.maxActive.Load() {
		p.maxActive.Store(n)
	}
	return len(p.vus)
}

func (p *Pool) spawnLocked() {
	p.nextID++
	vu := NewVirtualUser(p.nextID, p.cfg.Seed, p.cfg.Sampler, p.cfg.Recorder,
		p.cfg.Metrics, p.cfg.Sleep, p.cfg.Logger)
	p.vus = append(p.vus, vu)

	p.wg.Add(1)
	p.running.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Add(-1)
		vu.Run(p.ctx)
	}()
}

// Active returns the number of VUs that have not been drained.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// MaxActive returns the highest active count seen.
func (p *Pool) MaxActive() int {
	return int(p.maxActive.Load())
}

// Running returns the number of VU goroutines still alive, including
// drained VUs finishing their last iteration.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Spawned returns the total number of VUs ever created.
func (p *Pool) Spawned() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextID
}

// StopAll asks every VU to stop after its current iteration and prevents
// further scaling.
func (p *Pool) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	p.stopped = true

	for _, vu := range p.vus {
		vu.RequestStop()
	}
	p.vus = nil
	p.active.Store(0)
}

// Wait waits for every VU goroutine to exit. It returns false if the
// timeout expired first.
func (p *Pool) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Shutdown stops every VU, waits up to timeout for them and releases the
// shared HTTP client's idle connections. It reports whether all VUs exited.
func (p *Pool) Shutdown(timeout time.Duration) bool {
	p.StopAll()
	ok := p.Wait(timeout)
	if p.cfg.HTTPClient != nil {
		p.cfg.HTTPClient.CloseIdleConnections()
	}
	return ok
}
