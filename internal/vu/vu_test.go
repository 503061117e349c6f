package vu_test

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/bookload/internal/metrics"
	"github.com/wesleyorama2/bookload/internal/scenario"
	"github.com/wesleyorama2/bookload/internal/vu"
)

func passing(context.Context, *scenario.Context) scenario.Outcome {
	var o scenario.Outcome
	o.Check("ok", true)
	o.StatusCode = 200
	return o
}

func sampler(t *testing.T, actions map[string]scenario.Action, order []string) *scenario.Sampler {
	t.Helper()
	reg := scenario.NewRegistry()
	for _, name := range order {
		require.NoError(t, reg.Register(name, 1, actions[name], scenario.Policy{}))
	}
	s, err := reg.Close()
	require.NoError(t, err)
	return s
}

func counterValue(t *testing.T, reg *metrics.Registry, name string) float64 {
	t.Helper()
	c, err := reg.Counter(name)
	require.NoError(t, err)
	return c.Value()
}

func TestSleepRange_Draw(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	r := vu.SleepRange{Min: time.Second, Max: 3 * time.Second}
	for i := 0; i < 1000; i++ {
		d := r.Draw(rng)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}

	assert.Equal(t, 500*time.Millisecond, vu.SleepRange{Min: 500 * time.Millisecond}.Draw(rng))
	assert.Equal(t, time.Duration(0), vu.SleepRange{}.Draw(rng))
	assert.Equal(t, time.Duration(0), vu.SleepRange{Min: -time.Second}.Draw(rng))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", vu.StateIdle.String())
	assert.Equal(t, "running", vu.StateRunning.String())
	assert.Equal(t, "stopping", vu.StateStopping.String())
	assert.Equal(t, "stopped", vu.StateStopped.String())
	assert.Equal(t, "unknown", vu.State(42).String())
}

// runPicks runs a single VU for n iterations and returns the scenario
// names it picked.
func runPicks(t *testing.T, seed int64, id, n int) []string {
	t.Helper()

	var (
		picks []string
		user  *vu.VirtualUser
	)
	record := func(name string) scenario.Action {
		return func(context.Context, *scenario.Context) scenario.Outcome {
			picks = append(picks, name)
			if len(picks) == n {
				user.RequestStop()
			}
			return scenario.Outcome{}
		}
	}
	order := []string{"a", "b", "c"}
	s := sampler(t, map[string]scenario.Action{"a": record("a"), "b": record("b"), "c": record("c")}, order)

	reg := metrics.NewRegistry()
	user = vu.NewVirtualUser(id, seed, s, scenario.NewRecorder(reg, nil), reg, vu.SleepRange{}, nil)
	user.Run(context.Background())

	assert.Equal(t, vu.StateStopped, user.GetState())
	assert.Equal(t, int64(n), user.GetIteration())
	assert.Equal(t, float64(n), counterValue(t, reg, metrics.Iterations))
	return picks
}

func TestVirtualUser_ReproducibleForSeedAndID(t *testing.T) {
	first := runPicks(t, 42, 3, 50)
	second := runPicks(t, 42, 3, 50)
	assert.Equal(t, first, second)

	other := runPicks(t, 42, 4, 50)
	assert.NotEqual(t, first, other)
}

func TestVirtualUser_StopObservedBetweenIterations(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var completed atomic.Int32

	blocking := func(ctx context.Context, _ *scenario.Context) scenario.Outcome {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		completed.Add(1)
		return passing(ctx, nil)
	}

	s := sampler(t, map[string]scenario.Action{"slow": blocking}, []string{"slow"})
	reg := metrics.NewRegistry()
	user := vu.NewVirtualUser(1, 1, s, scenario.NewRecorder(reg, nil), reg, vu.SleepRange{}, nil)

	go user.Run(context.Background())
	<-entered

	user.RequestStop()
	assert.Equal(t, vu.StateStopping, user.GetState())
	assert.False(t, user.WaitForStop(50*time.Millisecond), "vu must not abandon its iteration")

	close(release)
	require.True(t, user.WaitForStop(time.Second))

	assert.Equal(t, int32(1), completed.Load())
	assert.Equal(t, float64(1), counterValue(t, reg, metrics.Iterations))

	checks, err := reg.Rate(metrics.Checks)
	require.NoError(t, err)
	assert.Equal(t, int64(1), checks.Passes())
}

func TestVirtualUser_StopInterruptsSleep(t *testing.T) {
	s := sampler(t, map[string]scenario.Action{"ok": passing}, []string{"ok"})
	reg := metrics.NewRegistry()
	user := vu.NewVirtualUser(1, 1, s, scenario.NewRecorder(reg, nil), reg,
		vu.SleepRange{Min: time.Hour, Max: time.Hour}, nil)

	go user.Run(context.Background())

	require.Eventually(t, func() bool { return user.GetIteration() == 1 }, time.Second, 5*time.Millisecond)
	user.RequestStop()
	require.True(t, user.WaitForStop(time.Second))
	assert.Equal(t, int64(1), user.GetIteration())
}

func TestVirtualUser_CancelledIterationIsDiscarded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})

	waitForCancel := func(ctx context.Context, _ *scenario.Context) scenario.Outcome {
		close(started)
		<-ctx.Done()
		var o scenario.Outcome
		o.Err = ctx.Err()
		o.Check("status 201", false)
		return o
	}

	s := sampler(t, map[string]scenario.Action{"hang": waitForCancel}, []string{"hang"})
	reg := metrics.NewRegistry()
	user := vu.NewVirtualUser(1, 1, s, scenario.NewRecorder(reg, nil), reg, vu.SleepRange{}, nil)

	go user.Run(ctx)
	<-started
	cancel()
	require.True(t, user.WaitForStop(time.Second))

	_, seen := reg.Get(metrics.Iterations)
	assert.False(t, seen)
	_, seen = reg.Get(metrics.Errors)
	assert.False(t, seen)
}

func TestVirtualUser_PanicBecomesError(t *testing.T) {
	var user *vu.VirtualUser
	explode := func(context.Context, *scenario.Context) scenario.Outcome {
		user.RequestStop()
		panic("boom")
	}

	s := sampler(t, map[string]scenario.Action{"explode": explode}, []string{"explode"})
	reg := metrics.NewRegistry()
	user = vu.NewVirtualUser(1, 1, s, scenario.NewRecorder(reg, nil), reg, vu.SleepRange{}, nil)
	user.Run(context.Background())

	errs, err := reg.Rate(metrics.Errors)
	require.NoError(t, err)
	assert.Equal(t, int64(1), errs.Passes())
}

func TestVirtualUser_ContextCarriesIdentity(t *testing.T) {
	var (
		mu    sync.Mutex
		iters []int64
		user  *vu.VirtualUser
	)
	inspect := func(_ context.Context, sc *scenario.Context) scenario.Outcome {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 7, sc.VUID)
		assert.NotNil(t, sc.Rand)
		assert.NotNil(t, sc.Metrics)
		iters = append(iters, sc.Iteration)
		if len(iters) == 3 {
			user.RequestStop()
		}
		return scenario.Outcome{}
	}

	s := sampler(t, map[string]scenario.Action{"inspect": inspect}, []string{"inspect"})
	reg := metrics.NewRegistry()
	user = vu.NewVirtualUser(7, 0, s, scenario.NewRecorder(reg, nil), reg, vu.SleepRange{}, nil)
	user.Run(context.Background())

	assert.Equal(t, []int64{0, 1, 2}, iters)
}

func newPool(t *testing.T, ctx context.Context, action scenario.Action, sleep vu.SleepRange) (*vu.Pool, *metrics.Registry) {
	t.Helper()
	reg := metrics.NewRegistry()
	pool, err := vu.NewPool(ctx, vu.PoolConfig{
		Sampler: sampler(t, map[string]scenario.Action{"work": action}, []string{"work"}),
		Metrics: reg,
		Seed:    1,
		Sleep:   sleep,
	})
	require.NoError(t, err)
	return pool, reg
}

func TestNewPool_RequiresSampler(t *testing.T) {
	_, err := vu.NewPool(context.Background(), vu.PoolConfig{})
	assert.ErrorIs(t, err, vu.ErrMissingSampler)
}

func TestPool_ScaleUpAndDown(t *testing.T) {
	pool, _ := newPool(t, context.Background(), passing, vu.SleepRange{Min: 5 * time.Millisecond, Max: 10 * time.Millisecond})

	assert.Equal(t, 5, pool.ScaleTo(5))
	assert.Equal(t, 5, pool.Active())
	assert.Equal(t, 5, pool.Spawned())

	assert.Equal(t, 2, pool.ScaleTo(2))
	assert.Equal(t, 2, pool.Active())
	require.Eventually(t, func() bool { return pool.Running() == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 4, pool.ScaleTo(4))
	assert.Equal(t, 7, pool.Spawned())
	assert.Equal(t, 5, pool.MaxActive())

	assert.Equal(t, 0, pool.ScaleTo(-3))
	assert.True(t, pool.Wait(time.Second))
	assert.Equal(t, 0, pool.Running())
}

func TestPool_StopAllPreventsScaling(t *testing.T) {
	pool, reg := newPool(t, context.Background(), passing, vu.SleepRange{Min: time.Millisecond, Max: 2 * time.Millisecond})

	pool.ScaleTo(3)
	require.Eventually(t, func() bool {
		return counterValue(t, reg, metrics.Iterations) >= 3
	}, time.Second, 5*time.Millisecond)

	pool.StopAll()
	assert.Equal(t, 0, pool.Active())
	assert.Equal(t, 0, pool.ScaleTo(10))
	assert.Equal(t, 3, pool.Spawned())

	assert.True(t, pool.Wait(time.Second))
}

func TestPool_WaitTimesOutThenCancelDiscards(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hang := func(ctx context.Context, _ *scenario.Context) scenario.Outcome {
		<-ctx.Done()
		return scenario.Outcome{Err: ctx.Err()}
	}
	pool, reg := newPool(t, ctx, hang, vu.SleepRange{})

	pool.ScaleTo(4)
	require.Eventually(t, func() bool { return pool.Running() == 4 }, time.Second, 5*time.Millisecond)

	pool.StopAll()
	assert.False(t, pool.Wait(50*time.Millisecond))

	cancel()
	assert.True(t, pool.Wait(time.Second))

	_, seen := reg.Get(metrics.Iterations)
	assert.False(t, seen, "cancelled iterations must not be recorded")
}

func TestPool_Shutdown(t *testing.T) {
	pool, _ := newPool(t, context.Background(), passing, vu.SleepRange{Min: time.Millisecond, Max: time.Millisecond})
	pool.ScaleTo(10)
	assert.True(t, pool.Shutdown(time.Second))
	assert.Equal(t, 0, pool.Running())
}
