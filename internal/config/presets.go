package config

import (
	"fmt"
	"sort"

	"github.com/wesleyorama2/bookload/internal/booking"
)

// Built-in preset names.
const (
	PresetLoad  = "load"
	PresetSmoke = "smoke"
	PresetSpike = "spike"
)

var presets = map[string]func() *TestConfig{
	PresetLoad:  loadPreset,
	PresetSmoke: smokePreset,
	PresetSpike: spikePreset,
}

// Preset returns a fresh copy of the named built-in configuration.
func Preset(name string) (*TestConfig, error) {
	build, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q (available: %v)", name, PresetNames())
	}
	cfg := build()
	cfg.Preset = name
	return cfg, nil
}

// PresetNames returns the built-in preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func specs(exprs ...string) []ThresholdSpec {
	out := make([]ThresholdSpec, len(exprs))
	for i, e := range exprs {
		out[i] = ThresholdSpec{Expression: e}
	}
	return out
}

func loadPreset() *TestConfig {
	return &TestConfig{
		Name:        "Booking load test",
		Description: "Ramp to 20 then 50 VUs against the booking API",
		Stages: []StageConfig{
			{Duration: "30s", Target: 20, Name: "ramp-up"},
			{Duration: "1m", Target: 20, Name: "steady"},
			{Duration: "30s", Target: 50, Name: "surge"},
			{Duration: "1m", Target: 50, Name: "peak"},
			{Duration: "30s", Target: 0, Name: "ramp-down"},
		},
		Sleep: &SleepConfig{Min: "1s", Max: "3s"},
		Scenarios: []ScenarioWeight{
			{Name: booking.ScenarioCreateBooking, Weight: 40},
			{Name: booking.ScenarioListBookings, Weight: 30},
			{Name: booking.ScenarioLookupBooking, Weight: 20},
			{Name: booking.ScenarioStaffOperation, Weight: 10},
		},
		Thresholds: map[string][]ThresholdSpec{
			"http_req_duration": specs("p(95)<500", "p(99)<1000"),
			"http_req_failed":   specs("rate<0.1"),
			"errors":            specs("rate<0.1"),
		},
	}
}

func smokePreset() *TestConfig {
	return &TestConfig{
		Name:        "Booking smoke test",
		Description: "5 VUs running the create, retrieve and assign journey",
		VUs:         5,
		Duration:    "1m",
		Sleep:       &SleepConfig{Min: "2s", Max: "2s"},
		Scenarios: []ScenarioWeight{
			{Name: booking.ScenarioSmokeJourney, Weight: 1},
		},
		Thresholds: map[string][]ThresholdSpec{
			"http_req_duration": specs("p(95)<500"),
			"http_req_failed":   specs("rate<0.05"),
			"errors":            specs("rate<0.05"),
		},
	}
}

func spikePreset() *TestConfig {
	return &TestConfig{
		Name:        "Booking spike test",
		Description: "Sudden jump from 10 to 100 VUs",
		Stages: []StageConfig{
			{Duration: "10s", Target: 10, Name: "warm-up"},
			{Duration: "10s", Target: 100, Name: "spike"},
			{Duration: "30s", Target: 100, Name: "hold"},
			{Duration: "10s", Target: 10, Name: "scale-down"},
			{Duration: "10s", Target: 0, Name: "ramp-down"},
		},
		Sleep: &SleepConfig{Min: "500ms", Max: "500ms"},
		Scenarios: []ScenarioWeight{
			{Name: booking.ScenarioSpikeCreateBooking, Weight: 50},
			{Name: booking.ScenarioSpikeListBookings, Weight: 30},
			{Name: booking.ScenarioSpikeDashboard, Weight: 20},
		},
		Thresholds: map[string][]ThresholdSpec{
			"http_req_duration": specs("p(95)<1000", "p(99)<2000"),
			"http_req_failed":   specs("rate<0.2"),
			"errors":            specs("rate<0.2"),
		},
	}
}
