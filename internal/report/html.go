package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"sort"
	"strings"

	"github.com/wesleyorama2/bookload/internal/metrics"
	"github.com/wesleyorama2/bookload/internal/threshold"
)

// htmlData contains all data needed to render the HTML report.
type htmlData struct {
	*Snapshot
	Trends   []trendRow
	Rates    []rateRow
	Counters []counterRow
}

type trendRow struct {
	Name                              string
	Sub                               bool
	Count                             int64
	Avg, Min, Med, Max, P90, P95, P99 string
}

type rateRow struct {
	Name          string
	Sub           bool
	Rate          string
	Passes, Fails int64
}

type counterRow struct {
	Name      string
	Sub       bool
	Value     string
	PerSecond string
}

// GenerateHTML renders the snapshot as an HTML report and writes it to path.
func GenerateHTML(snap *Snapshot, path string) error {
	html, err := GenerateHTMLString(snap)
	if err != nil {
		return fmt.Errorf("failed to generate HTML: %w", err)
	}

	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

// GenerateHTMLString renders the snapshot as an HTML report.
func GenerateHTMLString(snap *Snapshot) (string, error) {
	if snap == nil {
		return "", fmt.Errorf("snapshot cannot be nil")
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": formatDuration,
		"formatValue":    formatValue,
		"statusClass":    statusClass,
	}).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, buildHTMLData(snap)); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

func buildHTMLData(snap *Snapshot) htmlData {
	data := htmlData{Snapshot: snap}
	seconds := snap.Duration().Seconds()

	names := make([]string, 0, len(snap.Metrics))
	for name := range snap.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		m := snap.Metrics[name]
		sub := strings.Contains(name, "{")
		switch m.Kind {
		case metrics.KindTrend:
			data.Trends = append(data.Trends, trendRow{
				Name:  name,
				Sub:   sub,
				Count: m.Count,
				Avg:   formatMillis(m.Avg),
				Min:   formatMillis(m.Min),
				Med:   formatMillis(m.Med),
				Max:   formatMillis(m.Max),
				P90:   formatMillis(m.Percentiles[metrics.PercentileKey(0.90)]),
				P95:   formatMillis(m.Percentiles[metrics.PercentileKey(0.95)]),
				P99:   formatMillis(m.Percentiles[metrics.PercentileKey(0.99)]),
			})
		case metrics.KindRate:
			data.Rates = append(data.Rates, rateRow{
				Name:   name,
				Sub:    sub,
				Rate:   formatPercent(m.Rate),
				Passes: m.Passes,
				Fails:  m.Fails,
			})
		case metrics.KindCounter:
			perSecond := 0.0
			if seconds > 0 {
				perSecond = m.Value / seconds
			}
			data.Counters = append(data.Counters, counterRow{
				Name:      name,
				Sub:       sub,
				Value:     fmt.Sprintf("%g", m.Value),
				PerSecond: fmt.Sprintf("%.2f/s", perSecond),
			})
		}
	}
	return data
}

func statusClass(s threshold.Status) string {
	switch s {
	case threshold.StatusPassed:
		return "pass"
	case threshold.StatusFailed:
		return "fail"
	default:
		return "unknown"
	}
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Name}} - Load Test Report</title>
    <style>
        :root {
            --bg: #f8fafc;
            --card: #ffffff;
            --text: #1e293b;
            --muted: #64748b;
            --border: #e2e8f0;
            --pass: #22c55e;
            --fail: #ef4444;
            --unknown: #f59e0b;
        }
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; background: var(--bg); color: var(--text); line-height: 1.5; }
        .container { max-width: 1200px; margin: 0 auto; padding: 2rem; }
        header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 2rem; }
        .meta { color: var(--muted); font-size: 0.875rem; }
        .status { padding: 0.5rem 1rem; border-radius: 0.5rem; font-weight: 700; color: #fff; }
        .status.pass { background: var(--pass); }
        .status.fail { background: var(--fail); }
        .cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 1rem; margin-bottom: 2rem; }
        .card { background: var(--card); border: 1px solid var(--border); border-radius: 0.5rem; padding: 1rem; }
        .card .label { color: var(--muted); font-size: 0.75rem; text-transform: uppercase; }
        .card .value { font-size: 1.5rem; font-weight: 600; }
        section { background: var(--card); border: 1px solid var(--border); border-radius: 0.5rem; padding: 1rem; margin-bottom: 1.5rem; }
        h2 { font-size: 1.125rem; margin-bottom: 0.75rem; }
        table { width: 100%; border-collapse: collapse; font-size: 0.875rem; }
        th, td { text-align: left; padding: 0.4rem 0.5rem; border-bottom: 1px solid var(--border); }
        th { color: var(--muted); font-weight: 500; }
        td.sub { padding-left: 1.5rem; color: var(--muted); }
        .pass { color: var(--pass); }
        .fail { color: var(--fail); }
        .unknown { color: var(--unknown); }
        .notice { border-left: 4px solid var(--fail); padding: 0.75rem 1rem; margin-bottom: 1.5rem; background: var(--card); }
    </style>
</head>
<body>
<div class="container">
    <header>
        <div>
            <h1>{{.Name}}</h1>
            {{if .Description}}<p class="meta">{{.Description}}</p>{{end}}
            <p class="meta">Run {{.RunID}} &middot; {{.StartTime.Format "2006-01-02 15:04:05"}} &middot; seed {{.Seed}}</p>
        </div>
        <div class="status {{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}&#10003; PASSED{{else}}&#10007; FAILED{{end}}</div>
    </header>

    {{if .Aborted}}<div class="notice">Run aborted: {{.AbortReason}}</div>{{end}}
    {{if .Interrupted}}<div class="notice">Run interrupted before the profile completed.</div>{{end}}

    <div class="cards">
        <div class="card"><div class="label">Duration</div><div class="value">{{formatDuration .Duration}}</div></div>
        <div class="card"><div class="label">Max VUs</div><div class="value">{{.VUsMax}}</div></div>
        <div class="card"><div class="label">Stages</div><div class="value">{{len .Stages}}</div></div>
        <div class="card"><div class="label">Thresholds failed</div><div class="value">{{.Thresholds.Failed}} / {{len .Thresholds.Results}}</div></div>
    </div>

    {{if .Thresholds.Results}}
    <section>
        <h2>Thresholds</h2>
        <table>
            <tr><th></th><th>Metric</th><th>Expression</th><th>Actual</th><th>Message</th></tr>
            {{range .Thresholds.Results}}
            <tr>
                <td class="{{statusClass .Status}}">{{.Status}}</td>
                <td>{{.Metric}}</td>
                <td>{{.Expression}}{{if .AbortOnFail}} (abortOnFail){{end}}</td>
                <td>{{formatValue .Actual}}</td>
                <td>{{.Message}}</td>
            </tr>
            {{end}}
        </table>
    </section>
    {{end}}

    {{if .Trends}}
    <section>
        <h2>Trends</h2>
        <table>
            <tr><th>Metric</th><th>Count</th><th>avg</th><th>min</th><th>med</th><th>max</th><th>p(90)</th><th>p(95)</th><th>p(99)</th></tr>
            {{range .Trends}}
            <tr><td{{if .Sub}} class="sub"{{end}}>{{.Name}}</td><td>{{.Count}}</td><td>{{.Avg}}</td><td>{{.Min}}</td><td>{{.Med}}</td><td>{{.Max}}</td><td>{{.P90}}</td><td>{{.P95}}</td><td>{{.P99}}</td></tr>
            {{end}}
        </table>
    </section>
    {{end}}

    {{if .Rates}}
    <section>
        <h2>Rates</h2>
        <table>
            <tr><th>Metric</th><th>Rate</th><th>&#10003;</th><th>&#10007;</th></tr>
            {{range .Rates}}
            <tr><td{{if .Sub}} class="sub"{{end}}>{{.Name}}</td><td>{{.Rate}}</td><td>{{.Passes}}</td><td>{{.Fails}}</td></tr>
            {{end}}
        </table>
    </section>
    {{end}}

    {{if .Counters}}
    <section>
        <h2>Counters</h2>
        <table>
            <tr><th>Metric</th><th>Total</th><th>Rate</th></tr>
            {{range .Counters}}
            <tr><td{{if .Sub}} class="sub"{{end}}>{{.Name}}</td><td>{{.Value}}</td><td>{{.PerSecond}}</td></tr>
            {{end}}
        </table>
    </section>
    {{end}}

    <section>
        <h2>Ramp profile</h2>
        <table>
            <tr><th>#</th><th>Duration</th><th>Target VUs</th><th>Name</th></tr>
            {{range $i, $s := .Stages}}
            <tr><td>{{$i}}</td><td>{{$s.Duration}}</td><td>{{$s.Target}}</td><td>{{$s.Name}}</td></tr>
            {{end}}
        </table>
    </section>

    <p class="meta">Generated by bookload &middot; {{.EndTime.Format "2006-01-02 15:04:05 MST"}}</p>
</div>
</body>
</html>
`
