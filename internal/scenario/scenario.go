// Package scenario defines weighted units of work executed by virtual users,
// the sampler that picks among them and the recorder that turns their
// outcomes into metrics.
package scenario

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/bookload/internal/metrics"
)

// Check is one named boolean assertion made by a scenario.
type Check struct {
	Label  string `json:"label"`
	Passed bool   `json:"passed"`
}

// Outcome is the result of one scenario iteration.
type Outcome struct {
	Checks []Check

	// RequestDuration is the duration of the scenario's main request.
	RequestDuration time.Duration
	StatusCode      int

	// Err is set when a request could not be completed at all.
	Err error

	// Skipped marks an iteration that had nothing to do, e.g. no token
	// was available yet. Only the iteration itself is recorded.
	Skipped bool
}

// Check appends a named check and returns its result.
func (o *Outcome) Check(label string, passed bool) bool {
	o.Checks = append(o.Checks, Check{Label: label, Passed: passed})
	return passed
}

// Success is the logical AND of every check, and false on a transport error.
func (o Outcome) Success() bool {
	if o.Err != nil {
		return false
	}
	for _, c := range o.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Context is what a scenario action sees of the VU running it.
type Context struct {
	// VUID is the 1-based id of the virtual user.
	VUID int
	// Iteration is the 0-based iteration number of this VU.
	Iteration int64
	// Rand is owned by the VU and must not be shared.
	Rand *rand.Rand

	Logger  *zap.Logger
	Metrics *metrics.Registry
}

// Action performs one iteration of a scenario.
type Action func(ctx context.Context, sc *Context) Outcome

// Policy describes how a scenario's outcomes are recorded.
type Policy struct {
	// Trend receives the outcome's request duration in milliseconds.
	Trend string

	// Expected reports outcomes that must not count as errors even though
	// a check failed, such as a 409 on a full date.
	Expected func(Outcome) bool

	// Counter is incremented whenever CountIf holds.
	Counter string
	CountIf func(Outcome) bool
}

// ExpectStatus returns an Expected predicate matching the given status codes.
func ExpectStatus(codes ...int) func(Outcome) bool {
	return func(o Outcome) bool {
		if o.Err != nil {
			return false
		}
		for _, code := range codes {
			if o.StatusCode == code {
				return true
			}
		}
		return false
	}
}

// Scenario is a named, weighted action.
type Scenario struct {
	Name   string
	Weight float64
	Action Action
	Policy Policy
}
