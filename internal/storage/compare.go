package storage

import (
	"sort"
	"strings"

	"github.com/wesleyorama2/bookload/internal/metrics"
	"github.com/wesleyorama2/bookload/internal/report"
)

// Delta compares one statistic between two runs.
type Delta struct {
	Metric   string   `json:"metric"`
	Stat     string   `json:"stat"`
	Baseline *float64 `json:"baseline"`
	Current  *float64 `json:"current"`
	// Change is the relative change in percent; nil when either side is
	// undefined or the baseline is zero.
	Change *float64 `json:"change"`
}

// Comparison is the result of comparing two runs.
type Comparison struct {
	Baseline string  `json:"baseline"`
	Current  string  `json:"current"`
	Deltas   []Delta `json:"deltas"`
}

// Compare compares the key statistics of every base metric present in
// either run. Sub-metrics are skipped.
func Compare(baseline, current *report.Snapshot) Comparison {
	names := map[string]metrics.Kind{}
	for _, snap := range []*report.Snapshot{baseline, current} {
		for name, m := range snap.Metrics {
			if !strings.Contains(name, "{") {
				names[name] = m.Kind
			}
		}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	cmp := Comparison{Baseline: baseline.RunID, Current: current.RunID}
	for _, name := range sorted {
		b, bok := baseline.Metrics[name]
		c, cok := current.Metrics[name]
		for _, stat := range statsFor(names[name]) {
			d := Delta{Metric: name, Stat: stat}
			if bok {
				d.Baseline = statOf(b, stat)
			}
			if cok {
				d.Current = statOf(c, stat)
			}
			d.Change = change(d.Baseline, d.Current)
			cmp.Deltas = append(cmp.Deltas, d)
		}
	}
	return cmp
}

func statsFor(kind metrics.Kind) []string {
	switch kind {
	case metrics.KindTrend:
		stats := []string{"avg", "med"}
		for _, q := range metrics.ReportedPercentiles {
			stats = append(stats, metrics.PercentileKey(q))
		}
		return stats
	case metrics.KindRate:
		return []string{"rate"}
	default:
		return []string{"count"}
	}
}

func statOf(m metrics.Snapshot, stat string) *float64 {
	switch stat {
	case "avg":
		return m.Avg
	case "med":
		return m.Med
	case "rate":
		v := m.Rate
		return &v
	case "count":
		v := m.Value
		return &v
	}
	return m.Percentiles[stat]
}

func change(baseline, current *float64) *float64 {
	if baseline == nil || current == nil || *baseline == 0 {
		return nil
	}
	v := (*current - *baseline) / *baseline * 100
	return &v
}
