package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/bookload/internal/engine"
	"github.com/wesleyorama2/bookload/internal/metrics"
	"github.com/wesleyorama2/bookload/internal/ramp"
	"github.com/wesleyorama2/bookload/internal/threshold"
)

func ptr(v float64) *float64 { return &v }

func sampleResult() *engine.Result {
	reg := metrics.NewRegistry()
	d, _ := reg.Trend(metrics.HTTPReqDuration)
	for _, v := range []float64{10, 20, 30, 40, 50} {
		d.Add(v)
	}
	_, _ = reg.Trend("booking_creation_time")
	failed, _ := reg.Rate(metrics.HTTPReqFailed)
	failed.Add(false)
	failed.Add(false)
	failed.Add(true)
	reqs, _ := reg.Counter(metrics.HTTPReqs)
	reqs.Add(3)
	named, _ := reg.Counter(metrics.HTTPReqs + "{name:CreateBooking}")
	named.Add(1)

	start := time.Date(2025, 3, 18, 10, 0, 0, 0, time.UTC)
	return &engine.Result{
		RunID:      "run-1",
		Name:       "Booking load test",
		StartTime:  start,
		EndTime:    start.Add(10 * time.Second),
		Duration:   10 * time.Second,
		Seed:       42,
		Stages:     []ramp.Stage{{Duration: 5 * time.Second, Target: 5}, {Duration: 5 * time.Second, Target: 0}},
		VUs:        0,
		MaxVUs:     5,
		Metrics:    reg.Snapshot(),
		StopReason: engine.StopCompleted,
		Passed:     false,
		Thresholds: threshold.Summary{
			Results: []threshold.Result{
				{Metric: metrics.HTTPReqDuration, Expression: "p(95)<500", Status: threshold.StatusPassed, Actual: ptr(48)},
				{Metric: metrics.HTTPReqFailed, Expression: "rate<0.1", Status: threshold.StatusFailed, Actual: ptr(0.3333),
					Message: "rate is 0.3333, threshold: < 0.1"},
				{Metric: "booking_creation_time", Expression: "p(95)<500", Status: threshold.StatusInconclusive,
					Message: "no samples"},
			},
			Failed:       1,
			Inconclusive: 1,
		},
	}
}

func TestFromResult(t *testing.T) {
	snap := FromResult(sampleResult())

	assert.Equal(t, SnapshotVersion, snap.Version)
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, 10*time.Second, snap.Duration())
	assert.Equal(t, []StageSnapshot{{Duration: "5s", Target: 5}, {Duration: "5s", Target: 0}}, snap.Stages)
	assert.Equal(t, 5, snap.VUsMax)
	assert.Contains(t, snap.Metrics, metrics.HTTPReqDuration)
}

func TestWriteJSON_UndefinedPercentilesAreNull(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, FromResult(sampleResult())))

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))

	ms := raw["metrics"].(map[string]interface{})
	empty := ms["booking_creation_time"].(map[string]interface{})
	percentiles := empty["percentiles"].(map[string]interface{})
	require.Contains(t, percentiles, "p(95)")
	assert.Nil(t, percentiles["p(95)"])

	full := ms[metrics.HTTPReqDuration].(map[string]interface{})
	assert.Equal(t, "trend", full["type"])
	assert.InDelta(t, 30.0, full["avg"], 1e-9)

	thresholds := raw["thresholds"].(map[string]interface{})
	results := thresholds["results"].([]interface{})
	assert.Equal(t, "failed", results[1].(map[string]interface{})["status"])
}

func TestSaveAndReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.json")
	snap := FromResult(sampleResult())
	require.NoError(t, SaveJSON(path, snap))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	got, err := ReadJSON(f)
	require.NoError(t, err)
	assert.Equal(t, snap.RunID, got.RunID)
	assert.Equal(t, threshold.StatusFailed, got.Thresholds.Results[1].Status)
	assert.Equal(t, metrics.KindRate, got.Metrics[metrics.HTTPReqFailed].Kind)
	assert.Nil(t, got.Metrics["booking_creation_time"].Percentiles["p(99)"])
}

func TestConsole_PrintSummary(t *testing.T) {
	var buf bytes.Buffer
	NewConsole(&buf, NoColorScheme()).PrintSummary(FromResult(sampleResult()))
	out := buf.String()

	assert.Contains(t, out, "http_req_duration")
	assert.Contains(t, out, "avg=30.00ms")
	assert.Contains(t, out, "p(95)=")
	assert.Contains(t, out, "p(99)=N/A", "empty trend prints N/A")
	assert.Contains(t, out, "33.33% ✓ 1 ✗ 2")
	assert.Contains(t, out, "0.30/s")
	assert.Contains(t, out, "{ name:CreateBooking }")
	assert.Contains(t, out, "vus_max")

	assert.Contains(t, out, "✓ http_req_duration: p(95)<500 (actual: 48)")
	assert.Contains(t, out, "✗ http_req_failed: rate<0.1")
	assert.Contains(t, out, "? booking_creation_time: p(95)<500 (inconclusive: no samples)")
	assert.Contains(t, out, "✗ FAILED")
	assert.Contains(t, out, "1 inconclusive")

	// Sub-metrics follow their base metric.
	assert.Less(t, strings.Index(out, "http_reqs."), strings.Index(out, "{ name:CreateBooking }"))
}

func TestConsole_PrintSummary_Aborted(t *testing.T) {
	res := sampleResult()
	res.Aborted = true
	res.AbortReason = "threshold rate<0.1 on errors crossed"

	var buf bytes.Buffer
	NewConsole(&buf, nil).PrintSummary(FromResult(res))
	assert.Contains(t, buf.String(), "run aborted: threshold rate<0.1 on errors crossed")
}

func TestConsole_PrintHeader(t *testing.T) {
	var buf bytes.Buffer
	NewConsole(&buf, NoColorScheme()).PrintHeader(Header{
		Name:     "Booking load test",
		BaseURL:  "http://localhost:8080/api",
		Duration: "4m0s",
		MaxVUs:   50,
		Stages:   5,
		Seed:     7,
		Weights:  map[string]float64{"list_bookings": 30, "create_booking": 40},
	})
	out := buf.String()
	assert.Contains(t, out, "5 stages, up to 50 VUs over 4m0s")
	assert.Contains(t, out, "create_booking=40, list_bookings=30")
}

func TestFormatMillis(t *testing.T) {
	assert.Equal(t, "N/A", formatMillis(nil))
	assert.Equal(t, "0.00ms", formatMillis(ptr(0)))
	assert.Equal(t, "500.00µs", formatMillis(ptr(0.5)))
	assert.Equal(t, "12.35ms", formatMillis(ptr(12.346)))
	assert.Equal(t, "1.50s", formatMillis(ptr(1500)))
	assert.Equal(t, "2.00m", formatMillis(ptr(120000)))
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "1,234,567", formatNumber(1234567))
	assert.Equal(t, "-1,000", formatNumber(-1000))
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1.50 kB", formatBytes(1500))
	assert.Equal(t, "12 B", formatBytes(12))
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "1m05s", formatDuration(65*time.Second))
	assert.Equal(t, "N/A", formatValue(nil))
	assert.Equal(t, "0.33", formatValue(ptr(0.3333)))
}

func TestProgressPrinter_Line(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressPrinter(&buf, nil, 0, nil)

	line := p.Line(engine.Progress{
		Elapsed:       30 * time.Second,
		TotalDuration: time.Minute,
		Percent:       50,
		Stage:         2,
		TotalStages:   3,
		StageName:     "steady",
		TargetVUs:     20,
		ActiveVUs:     19,
		Iterations:    1234,
		Requests:      2000,
		ErrorRate:     0.005,
		P95:           123.4,
	})

	assert.Contains(t, line, "[████████████░░░░░░░░░░░░]")
	assert.Contains(t, line, " 50%")
	assert.Contains(t, line, "30.0s/1m00s")
	assert.Contains(t, line, "stage 2/3 steady")
	assert.Contains(t, line, "vus=19/20")
	assert.Contains(t, line, "iters=1,234")
	assert.Contains(t, line, "failed=0.50%")
	assert.Contains(t, line, "p(95)=123.40ms")

	assert.Contains(t, p.Line(engine.Progress{}), "p(95)=N/A")
}

func TestProgressPrinter_NonTTYAppendsLines(t *testing.T) {
	var buf bytes.Buffer
	calls := 0
	source := func() (engine.Progress, bool) {
		calls++
		return engine.Progress{Percent: float64(calls * 10)}, calls > 1
	}

	p := NewProgressPrinter(&buf, source, 5*time.Millisecond, NoColorScheme())
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		p.Run(stop)
		close(done)
	}()

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return strings.Count(buf.String(), "\n") >= 2
	}, time.Second, 5*time.Millisecond)
	close(stop)
	<-done

	assert.NotContains(t, buf.String(), "\r")
}

func TestGenerateHTMLString(t *testing.T) {
	html, err := GenerateHTMLString(FromResult(sampleResult()))
	require.NoError(t, err)

	assert.Contains(t, html, "<title>Booking load test - Load Test Report</title>")
	assert.Contains(t, html, "FAILED")
	assert.Contains(t, html, "http_req_duration")
	assert.Contains(t, html, "30.00ms")
	assert.Contains(t, html, "33.33%")
	assert.Contains(t, html, `class="fail"`)
	assert.Contains(t, html, "http_reqs{name:CreateBooking}")

	_, err = GenerateHTMLString(nil)
	assert.Error(t, err)
}

func TestGenerateHTML_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, GenerateHTML(FromResult(sampleResult()), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<!DOCTYPE html>"))
}
