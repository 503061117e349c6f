package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/bookload/internal/engine"
)

const (
	// DefaultProgressInterval is how often the live line is redrawn.
	DefaultProgressInterval = time.Second

	clearLine   = "\r\033[2K"
	barWidth    = 24
	barFilled   = "█"
	barUnfilled = "░"
)

// ProgressSource reports live progress; ok is false until the run starts.
type ProgressSource func() (p engine.Progress, ok bool)

// ProgressPrinter prints a live progress line while a run is active. On a
// terminal the line is redrawn in place; otherwise one line is appended
// per update.
type ProgressPrinter struct {
	w        io.Writer
	source   ProgressSource
	interval time.Duration
	tty      bool
	colors   *ColorScheme

	mu    sync.Mutex
	drawn bool
}

// NewProgressPrinter creates a progress printer. interval <= 0 means
// DefaultProgressInterval.
func NewProgressPrinter(w io.Writer, source ProgressSource, interval time.Duration, colors *ColorScheme) *ProgressPrinter {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	if colors == nil {
		colors = NoColorScheme()
	}
	return &ProgressPrinter{
		w:        w,
		source:   source,
		interval: interval,
		tty:      IsTerminal(w),
		colors:   colors,
	}
}

// Run prints progress every interval until stop is closed.
func (p *ProgressPrinter) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			p.Finish()
			return
		case <-ticker.C:
			if pr, ok := p.source(); ok {
				p.Print(pr)
			}
		}
	}
}

// Print writes one progress update.
func (p *ProgressPrinter) Print(pr engine.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tty {
		fmt.Fprint(p.w, clearLine+p.Line(pr))
		p.drawn = true
		return
	}
	fmt.Fprintln(p.w, p.Line(pr))
}

// Finish terminates a line being redrawn in place.
func (p *ProgressPrinter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn {
		fmt.Fprintln(p.w)
		p.drawn = false
	}
}

// Line renders a progress update without a trailing newline.
func (p *ProgressPrinter) Line(pr engine.Progress) string {
	stage := fmt.Sprintf("stage %d/%d", pr.Stage, pr.TotalStages)
	if pr.StageName != "" {
		stage += " " + pr.StageName
	}

	p95 := notAvailable
	if pr.Requests > 0 {
		p95 = formatMillis(&pr.P95)
	}

	return fmt.Sprintf("%s %s %s/%s %s vus=%s/%d iters=%s reqs=%s failed=%s p(95)=%s",
		p.colors.Pass.Sprint(renderBar(pr.Percent/100, barWidth)),
		p.colors.Section.Sprintf("%3.0f%%", pr.Percent),
		formatDuration(pr.Elapsed),
		formatDuration(pr.TotalDuration),
		p.colors.Dim.Sprint(stage),
		p.colors.Value.Sprint(pr.ActiveVUs), pr.TargetVUs,
		formatNumber(int64(pr.Iterations)),
		formatNumber(int64(pr.Requests)),
		formatPercent(pr.ErrorRate),
		p95)
}

// renderBar renders a progress bar.
func renderBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	return "[" + strings.Repeat(barFilled, filled) + strings.Repeat(barUnfilled, width-filled) + "]"
}
