// Package config provides configuration parsing and validation for
// bookload runs.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TestConfig is the root configuration for a load test.
//
// Example YAML:
//
//	name: "Booking load test"
//	settings:
//	  baseUrl: "http://localhost:8080/api"
//	  timeout: 30s
//	stages:
//	  - duration: 30s
//	    target: 20
//	  - duration: 1m
//	    target: 20
//	sleep:
//	  min: 1s
//	  max: 3s
//	scenarios:
//	  - name: create_booking
//	    weight: 40
//	  - name: list_bookings
//	    weight: 30
//	thresholds:
//	  http_req_duration: ["p(95)<500", "p(99)<1000"]
//	  errors: ["rate<0.1"]
type TestConfig struct {
	// Name of the test (for reporting)
	Name string `json:"name" yaml:"name"`

	// Description of the test (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Preset fills every unset section from a built-in profile
	// ("load", "smoke" or "spike").
	Preset string `json:"preset,omitempty" yaml:"preset,omitempty"`

	Settings Settings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Stages defines the ramp profile. VUs and Duration are a shorthand
	// for a constant profile and are ignored when Stages is set.
	Stages   []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`
	VUs      int           `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration string        `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Sleep is the think time between iterations.
	Sleep *SleepConfig `json:"sleep,omitempty" yaml:"sleep,omitempty"`

	// Scenarios is the weight table, in registration order.
	Scenarios []ScenarioWeight `json:"scenarios,omitempty" yaml:"scenarios,omitempty"`

	// Thresholds maps a metric name to its pass/fail predicates.
	Thresholds map[string][]ThresholdSpec `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	Output OutputConfig `json:"output,omitempty" yaml:"output,omitempty"`
}

// Settings contains HTTP and execution settings.
type Settings struct {
	// BaseURL is the API root every endpoint is relative to.
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Timeout is the HTTP request timeout.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	MaxIdleConnsPerHost int  `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`
	InsecureSkipVerify  bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	UserAgent string            `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Seed makes scenario selection reproducible. Unset means random.
	Seed *int64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// DefaultToken is looked up before any booking has been created.
	DefaultToken string `json:"defaultToken,omitempty" yaml:"defaultToken,omitempty"`
	// NoDefaultToken disables the DefaultToken fallback.
	NoDefaultToken bool `json:"noDefaultToken,omitempty" yaml:"noDefaultToken,omitempty"`
	TokenPoolSize  int  `json:"tokenPoolSize,omitempty" yaml:"tokenPoolSize,omitempty"`

	// GracefulStop bounds how long the run waits for in-flight iterations.
	GracefulStop Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// Tick is the ramp scheduler interval.
	Tick Duration `json:"tick,omitempty" yaml:"tick,omitempty"`
}

// StageConfig defines a single stage of the ramp profile.
type StageConfig struct {
	// Duration of this stage (e.g., "30s", "2m")
	Duration string `json:"duration" yaml:"duration"`

	// Target VU count at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Name is an optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// SleepConfig is a uniform think-time range.
type SleepConfig struct {
	Min string `json:"min" yaml:"min"`
	Max string `json:"max" yaml:"max"`
}

// ScenarioWeight assigns a selection weight to a named scenario.
type ScenarioWeight struct {
	Name   string  `json:"name" yaml:"name"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// OutputConfig lists the artifacts written after a run.
type OutputConfig struct {
	// JSON is the path of the machine-readable summary.
	JSON string `json:"json,omitempty" yaml:"json,omitempty"`

	// HTML is the path of the HTML report.
	HTML string `json:"html,omitempty" yaml:"html,omitempty"`

	// History is the bbolt database the run summary is archived into.
	History string `json:"history,omitempty" yaml:"history,omitempty"`

	// MetricsAddr serves live Prometheus metrics when set, e.g. ":9090".
	MetricsAddr string `json:"metricsAddr,omitempty" yaml:"metricsAddr,omitempty"`
}

// ThresholdSpec is a threshold predicate. It decodes from either a plain
// expression string or an object:
//
//	http_req_duration:
//	  - "p(95)<500"
//	  - threshold: "p(99)<1000"
//	    abortOnFail: true
//	    delayAbortEval: 10s
type ThresholdSpec struct {
	Expression     string `json:"threshold" yaml:"threshold"`
	AbortOnFail    bool   `json:"abortOnFail,omitempty" yaml:"abortOnFail,omitempty"`
	DelayAbortEval string `json:"delayAbortEval,omitempty" yaml:"delayAbortEval,omitempty"`
}

type thresholdSpecFields ThresholdSpec

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *ThresholdSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*t = ThresholdSpec{Expression: strings.TrimSpace(value.Value)}
		return nil
	}

	var fields thresholdSpecFields
	if err := value.Decode(&fields); err != nil {
		return fmt.Errorf("threshold must be a string or an object: %w", err)
	}
	*t = ThresholdSpec(fields)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *ThresholdSpec) UnmarshalJSON(b []byte) error {
	var expr string
	if err := json.Unmarshal(b, &expr); err == nil {
		*t = ThresholdSpec{Expression: strings.TrimSpace(expr)}
		return nil
	}

	var fields thresholdSpecFields
	if err := json.Unmarshal(b, &fields); err != nil {
		return fmt.Errorf("threshold must be a string or an object: %w", err)
	}
	*t = ThresholdSpec(fields)
	return nil
}

// MarshalYAML writes plain expressions back as strings.
func (t ThresholdSpec) MarshalYAML() (interface{}, error) {
	if !t.AbortOnFail && t.DelayAbortEval == "" {
		return t.Expression, nil
	}
	return thresholdSpecFields(t), nil
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
