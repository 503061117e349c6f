package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/wesleyorama2/bookload/internal/metrics"
	"github.com/wesleyorama2/bookload/internal/threshold"
)

const nameWidth = 36

// Console prints run headers and summaries.
type Console struct {
	w      io.Writer
	colors *ColorScheme
}

// NewConsole creates a console reporter writing to w.
func NewConsole(w io.Writer, colors *ColorScheme) *Console {
	if colors == nil {
		colors = NoColorScheme()
	}
	return &Console{w: w, colors: colors}
}

// Header describes a run about to start.
type Header struct {
	Name     string
	BaseURL  string
	Duration string
	MaxVUs   int
	Stages   int
	Seed     int64
	Weights  map[string]float64
}

// PrintHeader prints the run banner.
func (c *Console) PrintHeader(h Header) {
	line := strings.Repeat("━", 56)
	c.println(c.colors.Title.Sprint(line))
	c.println(c.colors.Section.Sprint(h.Name))
	c.println(c.colors.Title.Sprint(line))
	c.printf("  target:    %s\n", c.colors.Value.Sprint(h.BaseURL))
	c.printf("  profile:   %d stages, up to %d VUs over %s\n", h.Stages, h.MaxVUs, h.Duration)
	c.printf("  seed:      %d\n", h.Seed)

	if len(h.Weights) > 0 {
		names := make([]string, 0, len(h.Weights))
		for name := range h.Weights {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = fmt.Sprintf("%s=%g", name, h.Weights[name])
		}
		c.printf("  scenarios: %s\n", strings.Join(parts, ", "))
	}
	c.println("")
}

type row struct {
	name  string
	value string
}

// PrintSummary prints one line per metric, the threshold outcomes and the
// overall verdict.
func (c *Console) PrintSummary(snap *Snapshot) {
	c.println("")
	c.printf("%s %s\n", c.colors.Section.Sprint("run"), c.colors.Dim.Sprint(snap.RunID))
	c.printf("  duration: %s, vus_max: %d, stop: %s\n", formatDuration(snap.Duration()), snap.VUsMax, snap.StopReason)
	c.println("")

	for _, r := range c.metricRows(snap) {
		name := r.name
		indent := "  "
		if open := strings.IndexByte(name, '{'); open > 0 {
			name = "{ " + name[open+1:len(name)-1] + " }"
			indent = "    "
		}
		c.printf("%s%s %s\n", indent, c.colors.MetricName.Sprint(dotted(name, nameWidth-len(indent))), r.value)
	}

	if len(snap.Thresholds.Results) > 0 {
		c.println("")
		c.println(c.colors.Section.Sprint("thresholds"))
		for _, r := range snap.Thresholds.Results {
			c.printf("  %s %s\n", c.thresholdIcon(r.Status), thresholdLine(r))
		}
	}

	c.println("")
	switch {
	case snap.Aborted:
		c.printf("%s run aborted: %s\n", c.colors.FailIcon(), snap.AbortReason)
	case snap.Interrupted:
		c.printf("%s run interrupted before the profile completed\n", c.colors.InconclusiveIcon())
	}

	verdict := c.colors.Pass.Sprint("✓ PASSED")
	if !snap.Passed {
		verdict = c.colors.Fail.Sprint("✗ FAILED")
	}
	summary := fmt.Sprintf("%d thresholds, %d failed", len(snap.Thresholds.Results), snap.Thresholds.Failed)
	if snap.Thresholds.Inconclusive > 0 {
		summary += fmt.Sprintf(", %d inconclusive", snap.Thresholds.Inconclusive)
	}
	c.printf("%s %s\n", verdict, c.colors.Dim.Sprint("("+summary+")"))
}

func (c *Console) metricRows(snap *Snapshot) []row {
	seconds := snap.Duration().Seconds()

	rows := make([]row, 0, len(snap.Metrics)+2)
	for name, m := range snap.Metrics {
		rows = append(rows, row{name: name, value: c.metricValue(name, m, seconds)})
	}
	rows = append(rows,
		row{name: "vus", value: c.colors.Value.Sprint(snap.VUs)},
		row{name: "vus_max", value: c.colors.Value.Sprint(snap.VUsMax)},
	)
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })
	return rows
}

func (c *Console) metricValue(name string, m metrics.Snapshot, seconds float64) string {
	switch m.Kind {
	case metrics.KindTrend:
		parts := []string{
			"avg=" + formatMillis(m.Avg),
			"min=" + formatMillis(m.Min),
			"med=" + formatMillis(m.Med),
			"max=" + formatMillis(m.Max),
		}
		for _, q := range metrics.ReportedPercentiles {
			key := metrics.PercentileKey(q)
			parts = append(parts, key+"="+formatMillis(m.Percentiles[key]))
		}
		return c.colors.Value.Sprint(strings.Join(parts, " "))

	case metrics.KindRate:
		return fmt.Sprintf("%s %s %d %s %d",
			c.colors.Value.Sprint(formatPercent(m.Rate)),
			c.colors.PassIcon(), m.Passes,
			c.colors.FailIcon(), m.Fails)

	case metrics.KindCounter:
		perSecond := 0.0
		if seconds > 0 {
			perSecond = m.Value / seconds
		}
		if base, _, _ := strings.Cut(name, "{"); base == metrics.DataReceived {
			return fmt.Sprintf("%s %s",
				c.colors.Value.Sprint(formatBytes(m.Value)),
				c.colors.Dim.Sprint(formatBytes(perSecond)+"/s"))
		}
		return fmt.Sprintf("%s %s",
			c.colors.Value.Sprintf("%g", m.Value),
			c.colors.Dim.Sprintf("%.2f/s", perSecond))
	}
	return notAvailable
}

func (c *Console) thresholdIcon(s threshold.Status) string {
	switch s {
	case threshold.StatusPassed:
		return c.colors.PassIcon()
	case threshold.StatusFailed:
		return c.colors.FailIcon()
	default:
		return c.colors.InconclusiveIcon()
	}
}

func thresholdLine(r threshold.Result) string {
	line := fmt.Sprintf("%s: %s", r.Metric, r.Expression)
	if r.AbortOnFail {
		line += " [abortOnFail]"
	}
	switch r.Status {
	case threshold.StatusPassed:
		line += fmt.Sprintf(" (actual: %s)", formatValue(r.Actual))
	case threshold.StatusFailed:
		line += fmt.Sprintf(" (%s)", r.Message)
	default:
		line += fmt.Sprintf(" (inconclusive: %s)", r.Message)
	}
	return line
}

// dotted pads name with dots to width, k6 style.
func dotted(name string, width int) string {
	if len(name) >= width {
		return name + ":"
	}
	return name + strings.Repeat(".", width-len(name)) + ":"
}

func (c *Console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.w, format, args...)
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.w, s)
}
