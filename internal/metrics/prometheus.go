package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "bookload"

// Collector exposes a Registry to Prometheus.
//
// The metric set of a run is not known up front, so Collector is an
// unchecked collector: Describe sends nothing and Collect builds const
// metrics from the current snapshot.
type Collector struct {
	registry *Registry
}

// NewCollector creates a Prometheus collector over the registry.
func NewCollector(r *Registry) *Collector {
	return &Collector{registry: r}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, snap := range c.registry.Snapshot() {
		base, tag := splitSubMetric(name)

		switch snap.Kind {
		case KindTrend:
			desc := prometheus.NewDesc(promName(base, "milliseconds"), "Trend "+base, []string{"name"}, nil)
			quantiles := make(map[float64]float64, len(ReportedPercentiles))
			for _, q := range ReportedPercentiles {
				if v := snap.Percentiles[PercentileKey(q)]; v != nil {
					quantiles[q] = *v
				}
			}
			sum := 0.0
			if snap.Avg != nil {
				sum = *snap.Avg * float64(snap.Count)
			}
			m, err := prometheus.NewConstSummary(desc, uint64(snap.Count), sum, quantiles, tag)
			if err == nil {
				ch <- m
			}

		case KindRate:
			rateDesc := prometheus.NewDesc(promName(base, "ratio"), "Rate "+base, []string{"name"}, nil)
			totalDesc := prometheus.NewDesc(promName(base, "observations_total"), "Observations of "+base, []string{"name"}, nil)
			ch <- prometheus.MustNewConstMetric(rateDesc, prometheus.GaugeValue, snap.Rate, tag)
			ch <- prometheus.MustNewConstMetric(totalDesc, prometheus.CounterValue, float64(snap.Count), tag)

		case KindCounter:
			desc := prometheus.NewDesc(promName(base, "total"), "Counter "+base, []string{"name"}, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, snap.Value, tag)
		}
	}
}

// NewPrometheusHandler returns an HTTP handler serving the registry and
// the live VU gauge in the Prometheus text format.
func NewPrometheusHandler(r *Registry, activeVUs func() float64) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(r))
	if activeVUs != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: promNamespace,
			Name:      "vus",
			Help:      "Currently active virtual users",
		}, activeVUs))
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// splitSubMetric splits "http_req_duration{name:CreateBooking}" into its
// base name and tag value.
func splitSubMetric(name string) (base, tag string) {
	open := strings.IndexByte(name, '{')
	if open < 0 || !strings.HasSuffix(name, "}") {
		return name, ""
	}
	base = name[:open]
	inner := name[open+1 : len(name)-1]
	if idx := strings.IndexByte(inner, ':'); idx >= 0 {
		inner = inner[idx+1:]
	}
	return base, inner
}

func promName(base, suffix string) string {
	return prometheus.BuildFQName(promNamespace, "", sanitize(base)+"_"+suffix)
}

func sanitize(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
