// Package engine orchestrates a load test run: it wires the VU pool, the
// ramp scheduler and the threshold evaluator around one metric registry.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/bookload/internal/booking"
	"github.com/wesleyorama2/bookload/internal/config"
	bhttp "github.com/wesleyorama2/bookload/internal/http"
	"github.com/wesleyorama2/bookload/internal/metrics"
	"github.com/wesleyorama2/bookload/internal/ramp"
	"github.com/wesleyorama2/bookload/internal/scenario"
	"github.com/wesleyorama2/bookload/internal/threshold"
	"github.com/wesleyorama2/bookload/internal/vu"
)

const (
	defaultAbortInterval = time.Second
	forcedStopTimeout    = 5 * time.Second
)

// ErrAlreadyRun is returned when Run is called twice on the same engine.
var ErrAlreadyRun = errors.New("engine has already run")

// Engine is the main orchestrator of a run.
//
// It coordinates:
//   - the ramp scheduler driving the VU pool
//   - the abort monitor watching abortOnFail thresholds
//   - the operator interrupt (ctx cancellation)
//   - the final threshold evaluation
//
// Example usage:
//
//	cfg, _ := config.LoadConfig("test.yaml")
//	eng, _ := engine.NewEngine(cfg)
//	result, _ := eng.Run(ctx)
//	fmt.Printf("Test passed: %v\n", result.Passed)
//
// An Engine runs once.
type Engine struct {
	config *config.TestConfig
	logger *zap.Logger

	profile   ramp.Profile
	sleep     vu.SleepRange
	seed      int64
	evaluator *threshold.Evaluator
	sampler   *scenario.Sampler
	tokens    *booking.TokenPool

	httpClient *http.Client
	registry   *metrics.Registry
	state      *RunState

	abortInterval  time.Duration
	cancelRequests context.CancelFunc

	mu        sync.RWMutex
	started   bool
	running   bool
	scheduler *ramp.Scheduler
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. Components log through it.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithAbortCheckInterval sets how often abortOnFail thresholds are checked.
func WithAbortCheckInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.abortInterval = d
		}
	}
}

// Result contains the complete results of a run.
type Result struct {
	RunID       string        `json:"runId"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
	Duration    time.Duration `json:"duration"`
	Seed        int64         `json:"seed"`
	Stages      []ramp.Stage  `json:"stages"`

	// VUs is the active VU count when the run was asked to stop.
	VUs    int `json:"vus"`
	MaxVUs int `json:"vusMax"`

	Metrics    map[string]metrics.Snapshot `json:"metrics"`
	Thresholds threshold.Summary           `json:"thresholds"`

	// Passed is false when a threshold failed or the run was aborted.
	Passed bool `json:"passed"`

	StopReason  string `json:"stopReason"`
	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abortReason,omitempty"`
	Interrupted bool   `json:"interrupted"`

	// ForcedStop is set when in-flight iterations outlived the graceful
	// stop period and were cancelled.
	ForcedStop bool `json:"forcedStop,omitempty"`
}

// NewEngine validates cfg and builds every component of the run. cfg must
// already have had config.ApplyDefaults applied.
func NewEngine(cfg *config.TestConfig, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Engine{
		config:        cfg,
		logger:        zap.NewNop(),
		seed:          cfg.Seed(),
		registry:      metrics.NewRegistry(),
		abortInterval: defaultAbortInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.state = newRunState(e.registry)

	var err error
	if e.profile, err = cfg.Profile(); err != nil {
		return nil, fmt.Errorf("invalid ramp profile: %w", err)
	}
	if e.sleep, err = cfg.SleepRange(); err != nil {
		return nil, fmt.Errorf("invalid sleep range: %w", err)
	}

	thresholds, err := cfg.BuildThresholds()
	if err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}
	e.evaluator = threshold.NewEvaluator(thresholds)

	s := cfg.Settings
	transport := bhttp.DefaultTransportConfig()
	if s.Timeout > 0 {
		transport.Timeout = time.Duration(s.Timeout)
	}
	if s.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = s.MaxIdleConnsPerHost
	}
	transport.InsecureSkipVerify = s.InsecureSkipVerify
	e.httpClient = bhttp.NewHTTPClient(transport)

	clientOpts := []bhttp.ClientOption{
		bhttp.WithBaseURL(s.BaseURL),
		bhttp.WithHTTPClient(e.httpClient),
		bhttp.WithMetrics(e.registry),
		bhttp.WithLogger(e.logger),
	}
	if s.UserAgent != "" {
		clientOpts = append(clientOpts, bhttp.WithHeader("User-Agent", s.UserAgent))
	}
	for k, v := range s.Headers {
		clientOpts = append(clientOpts, bhttp.WithHeader(k, v))
	}

	e.tokens = booking.NewTokenPool(s.TokenPoolSize, s.DefaultToken)
	suite := booking.NewSuite(booking.NewAPI(bhttp.NewClient(clientOpts...)), e.tokens, e.logger)

	scenarios := scenario.NewRegistry()
	if err := suite.Register(scenarios, cfg.Weights()); err != nil {
		return nil, fmt.Errorf("failed to register scenarios: %w", err)
	}
	if e.sampler, err = scenarios.Close(); err != nil {
		return nil, fmt.Errorf("failed to register scenarios: %w", err)
	}

	return e, nil
}

// Run executes the ramp profile and returns the evaluated results.
//
// Cancelling ctx is treated as an operator interrupt: VUs finish their
// current iteration (bounded by gracefulStop) and a result is still
// returned. An error is returned only if the run could not start.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	pool, err := e.start(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	stopMetrics, err := e.serveMetrics(pool)
	if err != nil {
		e.cancelRequests()
		pool.Shutdown(forcedStopTimeout)
		return nil, err
	}
	defer stopMetrics()

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		e.monitor(ctx)
	}()

	e.logger.Info("run started",
		zap.String("runId", e.state.RunID),
		zap.String("name", e.config.Name),
		zap.Duration("duration", e.profile.TotalDuration()),
		zap.Int("maxVUs", e.profile.MaxTarget()),
		zap.Int64("seed", e.seed))

	if err := e.scheduler.Run(ctx); err != nil {
		e.state.Stop(StopInterrupted, "")
	}
	finalVUs := pool.Active()
	e.state.Stop(StopCompleted, "")
	<-monitorDone

	forced := e.drain(pool)
	return e.result(finalVUs, forced), nil
}

// start marks the engine running and builds the pool and scheduler.
func (e *Engine) start(ctx context.Context) (*vu.Pool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil, ErrAlreadyRun
	}
	e.started = true

	// Requests outlive ctx so an interrupt lets in-flight iterations finish.
	reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	pool, err := vu.NewPool(reqCtx, vu.PoolConfig{
		Sampler:    e.sampler,
		Recorder:   scenario.NewRecorder(e.registry, e.logger),
		Metrics:    e.registry,
		Logger:     e.logger,
		Seed:       e.seed,
		Sleep:      e.sleep,
		HTTPClient: e.httpClient,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	e.cancelRequests = cancel

	e.state.vus = pool
	e.state.StartTime = time.Now()
	e.scheduler = ramp.NewScheduler(e.profile, pool,
		ramp.WithTick(time.Duration(e.config.Settings.Tick)),
		ramp.WithLogger(e.logger),
		ramp.WithStopSignal(e.state.Stopping()))
	e.running = true
	return pool, nil
}

// monitor stops the run on operator interrupt or on a breached
// abortOnFail threshold. It returns once the run is stopping.
func (e *Engine) monitor(ctx context.Context) {
	var tick <-chan time.Time
	if e.evaluator.HasAbort() {
		ticker := time.NewTicker(e.abortInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-e.state.Stopping():
			return
		case <-ctx.Done():
			e.logger.Info("interrupt received, stopping run", zap.Duration("elapsed", e.state.Elapsed()))
			e.state.Stop(StopInterrupted, "")
			return
		case <-tick:
			breached := e.evaluator.Breached(e.registry, e.state.Elapsed())
			if len(breached) == 0 {
				continue
			}
			b := breached[0]
			detail := fmt.Sprintf("threshold %s on %s crossed: %s", b.Expression, b.Metric, b.Message)
			e.logger.Warn("aborting run",
				zap.String("metric", b.Metric),
				zap.String("threshold", b.Expression),
				zap.String("reason", b.Message))
			e.state.Stop(StopAborted, detail)
			return
		}
	}
}

// drain stops every VU and waits for in-flight iterations, cancelling
// them after gracefulStop. It reports whether cancellation was needed.
func (e *Engine) drain(pool *vu.Pool) bool {
	grace := time.Duration(e.config.Settings.GracefulStop)
	pool.StopAll()

	forced := false
	if !pool.Wait(grace) {
		forced = true
		e.logger.Warn("graceful stop timed out, cancelling in-flight iterations",
			zap.Duration("gracefulStop", grace),
			zap.Int("running", pool.Running()))
	}
	e.cancelRequests()
	if !pool.Shutdown(forcedStopTimeout) {
		e.logger.Error("vus did not exit after cancellation", zap.Int("running", pool.Running()))
	}
	return forced
}

func (e *Engine) result(finalVUs int, forced bool) *Result {
	end := time.Now()
	elapsed := end.Sub(e.state.StartTime)
	summary := e.evaluator.Evaluate(e.registry, elapsed)
	reason, detail := e.state.StopReason()

	res := &Result{
		RunID:       e.state.RunID,
		Name:        e.config.Name,
		Description: e.config.Description,
		StartTime:   e.state.StartTime,
		EndTime:     end,
		Duration:    elapsed,
		Seed:        e.seed,
		Stages:      e.profile.Stages(),
		VUs:         finalVUs,
		MaxVUs:      e.state.MaxVUs(),
		Metrics:     e.registry.Snapshot(),
		Thresholds:  summary,
		StopReason:  reason,
		Aborted:     reason == StopAborted,
		AbortReason: detail,
		Interrupted: reason == StopInterrupted,
		ForcedStop:  forced,
	}
	res.Passed = summary.Passed && !res.Aborted

	e.logger.Info("run finished",
		zap.String("runId", res.RunID),
		zap.String("stopReason", reason),
		zap.Duration("duration", elapsed),
		zap.Bool("passed", res.Passed))
	return res
}

// serveMetrics starts the Prometheus endpoint when configured and returns
// a function shutting it down.
func (e *Engine) serveMetrics(pool *vu.Pool) (func(), error) {
	addr := e.config.Output.MetricsAddr
	if addr == "" {
		return func() {}, nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on metrics address %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.NewPrometheusHandler(e.registry, func() float64 {
		return float64(pool.Active())
	}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	e.logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// State returns the run state.
func (e *Engine) State() *RunState {
	return e.state
}

// Config returns the test configuration.
func (e *Engine) Config() *config.TestConfig {
	return e.config
}

// Profile returns the ramp profile.
func (e *Engine) Profile() ramp.Profile {
	return e.profile
}

// Seed returns the seed the VUs derive their random sources from.
func (e *Engine) Seed() int64 {
	return e.seed
}

// IsRunning returns true if the engine is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Stop asks a running engine to stop as if interrupted.
func (e *Engine) Stop() {
	e.state.Stop(StopInterrupted, "")
}
