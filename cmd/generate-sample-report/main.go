// Command generate-sample-report renders an HTML report from synthetic
// metrics, for previewing the report template without running a test.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/wesleyorama2/bookload/internal/booking"
	"github.com/wesleyorama2/bookload/internal/engine"
	"github.com/wesleyorama2/bookload/internal/metrics"
	"github.com/wesleyorama2/bookload/internal/ramp"
	"github.com/wesleyorama2/bookload/internal/report"
	"github.com/wesleyorama2/bookload/internal/threshold"
)

func main() {
	outputPath := "sample-report.html"
	if len(os.Args) > 1 {
		outputPath = os.Args[1]
	}

	if err := report.GenerateHTML(report.FromResult(createSampleResult()), outputPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Sample report generated: %s\n", outputPath)
}

func createSampleResult() *engine.Result {
	const duration = 4 * time.Minute

	rng := rand.New(rand.NewSource(1))
	reg := metrics.NewRegistry()

	mustTrend := func(name string) *metrics.Trend {
		t, err := reg.Trend(name)
		if err != nil {
			panic(err)
		}
		return t
	}
	mustRate := func(name string) *metrics.Rate {
		r, err := reg.Rate(name)
		if err != nil {
			panic(err)
		}
		return r
	}
	mustCounter := func(name string) *metrics.Counter {
		c, err := reg.Counter(name)
		if err != nil {
			panic(err)
		}
		return c
	}

	requests := []struct {
		name    string
		count   int
		meanMs  float64
		failPct float64
	}{
		{"CreateBooking", 2341, 85, 0.02},
		{"ListBookings", 1760, 40, 0.005},
		{"GetBookingByToken", 1180, 25, 0.01},
		{"StaffTransition", 590, 55, 0.03},
	}

	for _, r := range requests {
		tag := "{name:" + r.name + "}"
		for i := 0; i < r.count; i++ {
			ms := rng.ExpFloat64() * r.meanMs
			failed := rng.Float64() < r.failPct

			mustTrend(metrics.HTTPReqDuration).Add(ms)
			mustTrend(metrics.HTTPReqDuration + tag).Add(ms)
			mustRate(metrics.HTTPReqFailed).Add(failed)
			mustRate(metrics.HTTPReqFailed + tag).Add(failed)
			mustCounter(metrics.HTTPReqs).Add(1)
			mustCounter(metrics.HTTPReqs + tag).Add(1)
			mustCounter(metrics.DataReceived).Add(float64(200 + rng.Intn(1800)))
			mustRate(metrics.Checks).Add(!failed)
			mustRate(metrics.Errors).Add(failed)
			mustCounter(metrics.Iterations).Add(1)
			mustTrend(metrics.IterationDuration).Add(ms + 1000 + rng.Float64()*2000)

			switch r.name {
			case "CreateBooking":
				mustTrend(booking.MetricBookingCreationTime).Add(ms)
				if !failed {
					mustCounter(booking.MetricSuccessfulBookings).Add(1)
				}
			case "GetBookingByToken":
				mustTrend(booking.MetricBookingRetrievalTime).Add(ms)
			}
		}
	}

	evaluator := threshold.NewEvaluator([]*threshold.Threshold{
		threshold.MustParse(metrics.HTTPReqDuration, "p(95)<500"),
		threshold.MustParse(metrics.HTTPReqDuration, "p(99)<1000"),
		threshold.MustParse(metrics.HTTPReqFailed, "rate<0.1"),
		threshold.MustParse(metrics.Errors, "rate<0.1"),
		threshold.MustParse(booking.MetricBookingCreationTime, "p(95)<200"),
	})
	summary := evaluator.Evaluate(reg, duration)

	end := time.Now()
	return &engine.Result{
		RunID:       "00000000-0000-4000-8000-000000000001",
		Name:        "Booking load test",
		Description: "Sample report rendered from synthetic metrics",
		StartTime:   end.Add(-duration),
		EndTime:     end,
		Duration:    duration,
		Seed:        1,
		Stages: []ramp.Stage{
			{Duration: 30 * time.Second, Target: 20, Name: "ramp-up"},
			{Duration: time.Minute, Target: 20, Name: "steady"},
			{Duration: 30 * time.Second, Target: 50, Name: "surge"},
			{Duration: time.Minute, Target: 50, Name: "peak"},
			{Duration: 30 * time.Second, Target: 0, Name: "ramp-down"},
		},
		MaxVUs:     50,
		Metrics:    reg.Snapshot(),
		Thresholds: summary,
		Passed:     summary.Passed,
		StopReason: engine.StopCompleted,
	}
}
