package report

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ColorsFor returns the color scheme to use on w: colored on a terminal
// unless NO_COLOR is set or noColor is requested.
func ColorsFor(w io.Writer, noColor bool) *ColorScheme {
	if noColor || os.Getenv("NO_COLOR") != "" || !IsTerminal(w) {
		return NoColorScheme()
	}
	scheme := DefaultColorScheme()
	for _, c := range []interface{ EnableColor() }{
		scheme.Title, scheme.Section, scheme.MetricName, scheme.Value,
		scheme.Dim, scheme.Pass, scheme.Fail, scheme.Inconclusive,
	} {
		c.EnableColor()
	}
	return scheme
}
