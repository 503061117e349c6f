// Package ramp drives the number of active virtual users through a
// sequence of timed stages.
package ramp

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrEmptyProfile is returned for a profile without stages.
	ErrEmptyProfile = errors.New("ramp profile has no stages")
	// ErrZeroDuration is returned when the stages add up to no time at all.
	ErrZeroDuration = errors.New("ramp profile has zero total duration")
)

// Stage defines one segment of a ramp profile.
//
//	stages:
//	  - duration: 30s
//	    target: 10     # ramp from 0 to 10 VUs over 30s
//	  - duration: 2m
//	    target: 10     # stay at 10 VUs for 2 minutes
//	  - duration: 30s
//	    target: 0      # ramp down to 0 VUs over 30s
type Stage struct {
	Duration time.Duration `json:"duration" yaml:"duration"`
	Target   int           `json:"target" yaml:"target"`

	// Name is an optional label shown in progress output.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Profile is an ordered, validated list of stages.
type Profile struct {
	stages []Stage
	total  time.Duration
}

// NewProfile validates stages and builds a profile.
func NewProfile(stages []Stage) (Profile, error) {
	if len(stages) == 0 {
		return Profile{}, ErrEmptyProfile
	}

	var total time.Duration
	for i, s := range stages {
		if s.Duration < 0 {
			return Profile{}, fmt.Errorf("stage %d: duration must be >= 0, got %s", i, s.Duration)
		}
		if s.Target < 0 {
			return Profile{}, fmt.Errorf("stage %d: target must be >= 0, got %d", i, s.Target)
		}
		total += s.Duration
	}
	if total == 0 {
		return Profile{}, ErrZeroDuration
	}

	p := Profile{stages: make([]Stage, len(stages)), total: total}
	copy(p.stages, stages)
	return p, nil
}

// Constant returns a profile holding vus for d.
func Constant(vus int, d time.Duration) (Profile, error) {
	return NewProfile([]Stage{
		{Duration: 0, Target: vus},
		{Duration: d, Target: vus},
	})
}

// Stages returns a copy of the profile's stages.
func (p Profile) Stages() []Stage {
	out := make([]Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

// TotalDuration returns the sum of all stage durations.
func (p Profile) TotalDuration() time.Duration {
	return p.total
}

// MaxTarget returns the highest target of any stage.
func (p Profile) MaxTarget() int {
	highest := 0
	for _, s := range p.stages {
		if s.Target > highest {
			highest = s.Target
		}
	}
	return highest
}

// TargetAt returns the desired VU count at elapsed time t. Within a stage
// the count is linearly interpolated from the previous stage's target (0
// before the first stage) and rounded to the nearest integer. Zero-length
// stages are instant jumps. done is true once t reaches the total duration.
func (p Profile) TargetAt(t time.Duration) (target int, done bool) {
	if len(p.stages) == 0 {
		return 0, true
	}
	if t < 0 {
		t = 0
	}

	var stageStart time.Duration
	prev := 0
	for _, s := range p.stages {
		stageEnd := stageStart + s.Duration
		if t < stageEnd {
			progress := float64(t-stageStart) / float64(s.Duration)
			v := float64(prev) + float64(s.Target-prev)*progress
			return int(math.Round(v)), false
		}
		prev = s.Target
		stageStart = stageEnd
	}
	return prev, true
}

// StageAt returns the index of the stage active at t. Past the end it
// returns the last stage.
func (p Profile) StageAt(t time.Duration) int {
	var stageStart time.Duration
	for i, s := range p.stages {
		stageStart += s.Duration
		if t < stageStart {
			return i
		}
	}
	return len(p.stages) - 1
}
