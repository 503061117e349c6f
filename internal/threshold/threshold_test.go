package threshold

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/bookload/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		expr     string
		agg      string
		quantile float64
		op       string
		value    float64
	}{
		{"p(95)<500", AggPercentile, 0.95, "<", 500},
		{"p(99) < 1000", AggPercentile, 0.99, "<", 1000},
		{"p(99.9)<=2s", AggPercentile, 0.999, "<=", 2000},
		{"rate<0.1", AggRate, 0, "<", 0.1},
		{"avg >= 150ms", AggAvg, 0, ">=", 150},
		{"count>1000", AggCount, 0, ">", 1000},
		{"med!=0", AggMed, 0, "!=", 0},
		{"value==3", AggValue, 0, "==", 3},
		{"  max > -1  ", AggMax, 0, ">", -1},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			th, err := Parse("http_req_duration", tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.agg, th.Aggregation)
			assert.InDelta(t, tt.quantile, th.Quantile, 1e-12)
			assert.Equal(t, tt.op, th.Operator)
			assert.InDelta(t, tt.value, th.Value, 1e-9)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"p95<500",
		"p()<500",
		"p(101)<500",
		"avg(3)<1",
		"stddev<3",
		"rate<<0.1",
		"rate<abc",
		"rate",
		"p(95)<500h",
	}

	for _, expr := range invalid {
		t.Run(expr, func(t *testing.T) {
			_, err := Parse("errors", expr)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidExpression))
		})
	}

	_, err := Parse("", "rate<0.1")
	assert.Error(t, err, "metric name is required")
}

func TestEvaluate_P95EndToEnd(t *testing.T) {
	reg := metrics.NewRegistry()
	trend, err := reg.Trend(metrics.HTTPReqDuration)
	require.NoError(t, err)

	for i := 0; i < 95; i++ {
		trend.Add(400)
	}
	for i := 0; i < 5; i++ {
		trend.Add(900)
	}

	ev := NewEvaluator([]*Threshold{MustParse(metrics.HTTPReqDuration, "p(95)<500")})
	summary := ev.Evaluate(reg, time.Minute)

	require.Len(t, summary.Results, 1)
	r := summary.Results[0]
	assert.Equal(t, StatusPassed, r.Status)
	require.NotNil(t, r.Actual)
	assert.InDelta(t, 425, *r.Actual, 1e-9)
	assert.True(t, summary.Passed)
}

// Linear interpolation between the 95th and 96th of 100 samples lets large
// outliers pull p(95) over the limit even though 95% of requests were fast.
func TestEvaluate_P95LargeOutliers(t *testing.T) {
	reg := metrics.NewRegistry()
	trend, err := reg.Trend(metrics.HTTPReqDuration)
	require.NoError(t, err)

	for i := 0; i < 95; i++ {
		trend.Add(400)
	}
	for i := 0; i < 5; i++ {
		trend.Add(5000)
	}

	ev := NewEvaluator([]*Threshold{MustParse(metrics.HTTPReqDuration, "p(95)<500")})
	summary := ev.Evaluate(reg, time.Minute)

	require.Len(t, summary.Results, 1)
	r := summary.Results[0]
	require.NotNil(t, r.Actual)
	assert.InDelta(t, 630, *r.Actual, 1e-9)
	assert.Equal(t, StatusFailed, r.Status)
	assert.False(t, summary.Passed)
}

func TestEvaluate_Statuses(t *testing.T) {
	reg := metrics.NewRegistry()

	errorsRate, _ := reg.Rate("errors")
	errorsRate.Add(true)
	errorsRate.Add(false)

	duration, _ := reg.Trend("http_req_duration")
	duration.Add(100)

	_, _ = reg.Trend("booking_creation_time") // created, never observed

	counter, _ := reg.Counter("successful_bookings")
	counter.Add(30)

	ev := NewEvaluator([]*Threshold{
		MustParse("errors", "rate<0.1"),                // failed
		MustParse("http_req_duration", "avg<200"),      // passed
		MustParse("booking_creation_time", "p(95)<1s"), // inconclusive: no samples
		MustParse("not_recorded", "rate<0.1"),          // inconclusive: unknown metric
		MustParse("errors", "p(95)<1"),                 // inconclusive: wrong kind
		MustParse("successful_bookings", "rate>=1"),    // passed: 30 over 10s
		MustParse("successful_bookings", "count>=31"),  // failed
	})

	summary := ev.Evaluate(reg, 10*time.Second)
	require.Len(t, summary.Results, 7)

	want := []Status{
		StatusFailed,
		StatusPassed,
		StatusInconclusive,
		StatusInconclusive,
		StatusInconclusive,
		StatusPassed,
		StatusFailed,
	}
	for i, r := range summary.Results {
		assert.Equal(t, want[i], r.Status, "threshold %d (%s)", i, r.Expression)
	}

	assert.False(t, summary.Passed)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 3, summary.Inconclusive)

	assert.Contains(t, summary.Results[0].Message, "rate is 0.5")
	assert.Equal(t, "metric was never observed", summary.Results[3].Message)
	assert.Contains(t, summary.Results[4].Message, "does not apply to rate")
	assert.Nil(t, summary.Results[2].Actual)
}

func TestEvaluate_InconclusiveDoesNotFail(t *testing.T) {
	ev := NewEvaluator([]*Threshold{MustParse("errors", "rate<0.1")})
	summary := ev.Evaluate(metrics.NewRegistry(), time.Second)

	assert.True(t, summary.Passed)
	assert.Equal(t, 1, summary.Inconclusive)
}

func TestBreached(t *testing.T) {
	reg := metrics.NewRegistry()
	rate, _ := reg.Rate("errors")
	for i := 0; i < 10; i++ {
		rate.Add(true)
	}

	abort := MustParse("errors", "rate<0.1")
	abort.AbortOnFail = true
	abort.DelayAbortEval = 10 * time.Second

	noAbort := MustParse("errors", "rate<0.5")

	ev := NewEvaluator([]*Threshold{abort, noAbort})
	assert.True(t, ev.HasAbort())

	assert.Empty(t, ev.Breached(reg, 5*time.Second), "abort delayed until 10s")

	breached := ev.Breached(reg, 10*time.Second)
	require.Len(t, breached, 1)
	assert.Equal(t, "rate<0.1", breached[0].Expression)
	assert.True(t, breached[0].AbortOnFail)
}

func TestStatus_Text(t *testing.T) {
	for _, s := range []Status{StatusPassed, StatusFailed, StatusInconclusive} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var got Status
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, s, got)
	}
}
