package report

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for the different parts of a report.
type ColorScheme struct {
	Title        *color.Color
	Section      *color.Color
	MetricName   *color.Color
	Value        *color.Color
	Dim          *color.Color
	Pass         *color.Color
	Fail         *color.Color
	Inconclusive *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:        color.New(color.FgCyan, color.Bold),
		Section:      color.New(color.Bold),
		MetricName:   color.New(color.FgWhite),
		Value:        color.New(color.FgCyan),
		Dim:          color.New(color.Faint),
		Pass:         color.New(color.FgGreen),
		Fail:         color.New(color.FgRed),
		Inconclusive: color.New(color.FgYellow),
	}
}

// NoColorScheme returns a color scheme with all colors disabled.
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range []*color.Color{
		scheme.Title, scheme.Section, scheme.MetricName, scheme.Value,
		scheme.Dim, scheme.Pass, scheme.Fail, scheme.Inconclusive,
	} {
		c.DisableColor()
	}
	return scheme
}

// PassIcon returns a checkmark in the scheme's pass color.
func (s *ColorScheme) PassIcon() string {
	return s.Pass.Sprint("✓")
}

// FailIcon returns a cross in the scheme's fail color.
func (s *ColorScheme) FailIcon() string {
	return s.Fail.Sprint("✗")
}

// InconclusiveIcon marks a threshold that could not be evaluated.
func (s *ColorScheme) InconclusiveIcon() string {
	return s.Inconclusive.Sprint("?")
}
