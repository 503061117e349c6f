package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/bookload/internal/booking"
	"github.com/wesleyorama2/bookload/internal/ramp"
	"github.com/wesleyorama2/bookload/internal/threshold"
	"github.com/wesleyorama2/bookload/internal/vu"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultBaseURL       = "http://localhost:8080/api"
	DefaultTimeout       = 30 * time.Second
	DefaultIdlePerHost   = 100
	DefaultUserAgent     = "bookload/1.0"
	DefaultTokenPoolSize = 100
	DefaultGracefulStop  = 30 * time.Second
)

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	var config TestConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var seconds int
	var rest string
	if n, _ := fmt.Sscanf(s, "%d%s", &seconds, &rest); n == 1 {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ApplyDefaults fills unset fields: first from the named preset, then from
// the package defaults.
func ApplyDefaults(config *TestConfig) error {
	if config.Preset != "" {
		preset, err := Preset(config.Preset)
		if err != nil {
			return err
		}
		mergePreset(config, preset)
	}

	s := &config.Settings
	if s.BaseURL == "" {
		s.BaseURL = DefaultBaseURL
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	if s.Timeout == 0 {
		s.Timeout = Duration(DefaultTimeout)
	}
	if s.MaxIdleConnsPerHost == 0 {
		s.MaxIdleConnsPerHost = DefaultIdlePerHost
	}
	if s.UserAgent == "" {
		s.UserAgent = DefaultUserAgent
	}
	if s.DefaultToken == "" && !s.NoDefaultToken {
		s.DefaultToken = booking.DefaultPlaceholderToken
	}
	if s.TokenPoolSize == 0 {
		s.TokenPoolSize = DefaultTokenPoolSize
	}
	if s.GracefulStop == 0 {
		s.GracefulStop = Duration(DefaultGracefulStop)
	}
	if s.Tick == 0 {
		s.Tick = Duration(ramp.DefaultTick)
	}

	if config.Name == "" {
		config.Name = "Booking load test"
	}
	if config.Sleep == nil {
		config.Sleep = &SleepConfig{Min: "1s", Max: "3s"}
	}
	return nil
}

// mergePreset copies preset values into every section config leaves unset.
func mergePreset(config, preset *TestConfig) {
	if config.Name == "" {
		config.Name = preset.Name
	}
	if config.Description == "" {
		config.Description = preset.Description
	}
	if len(config.Stages) == 0 && config.VUs == 0 {
		config.Stages = preset.Stages
		config.VUs = preset.VUs
		config.Duration = preset.Duration
	}
	if config.Sleep == nil {
		config.Sleep = preset.Sleep
	}
	if len(config.Scenarios) == 0 {
		config.Scenarios = preset.Scenarios
	}
	if config.Thresholds == nil {
		config.Thresholds = preset.Thresholds
	}
}

// RampStages converts the stage list, or the vus/duration shorthand, into
// ramp stages.
func (c *TestConfig) RampStages() ([]ramp.Stage, error) {
	if len(c.Stages) > 0 {
		stages := make([]ramp.Stage, 0, len(c.Stages))
		for i, s := range c.Stages {
			d, err := ParseDurationString(s.Duration)
			if err != nil {
				return nil, fmt.Errorf("stage %d: invalid duration: %w", i+1, err)
			}
			stages = append(stages, ramp.Stage{Duration: d, Target: s.Target, Name: s.Name})
		}
		return stages, nil
	}

	if c.VUs > 0 {
		d, err := ParseDurationString(c.Duration)
		if err != nil {
			return nil, fmt.Errorf("invalid duration: %w", err)
		}
		return []ramp.Stage{
			{Duration: 0, Target: c.VUs},
			{Duration: d, Target: c.VUs},
		}, nil
	}

	return nil, ramp.ErrEmptyProfile
}

// Profile builds the validated ramp profile.
func (c *TestConfig) Profile() (ramp.Profile, error) {
	stages, err := c.RampStages()
	if err != nil {
		return ramp.Profile{}, err
	}
	return ramp.NewProfile(stages)
}

// SleepRange converts the sleep section.
func (c *TestConfig) SleepRange() (vu.SleepRange, error) {
	if c.Sleep == nil {
		return vu.SleepRange{}, nil
	}
	lo, err := ParseDurationString(c.Sleep.Min)
	if err != nil {
		return vu.SleepRange{}, fmt.Errorf("sleep.min: %w", err)
	}
	hi, err := ParseDurationString(c.Sleep.Max)
	if err != nil {
		return vu.SleepRange{}, fmt.Errorf("sleep.max: %w", err)
	}
	if hi == 0 {
		hi = lo
	}
	if lo > hi {
		return vu.SleepRange{}, fmt.Errorf("sleep.min %s exceeds sleep.max %s", lo, hi)
	}
	return vu.SleepRange{Min: lo, Max: hi}, nil
}

// Weights returns the scenario weight table in registration order.
func (c *TestConfig) Weights() []booking.Weight {
	weights := make([]booking.Weight, len(c.Scenarios))
	for i, s := range c.Scenarios {
		weights[i] = booking.Weight{Name: s.Name, Weight: s.Weight}
	}
	return weights
}

// BuildThresholds parses every threshold, ordered by metric name.
func (c *TestConfig) BuildThresholds() ([]*threshold.Threshold, error) {
	metrics := make([]string, 0, len(c.Thresholds))
	for name := range c.Thresholds {
		metrics = append(metrics, name)
	}
	sort.Strings(metrics)

	var out []*threshold.Threshold
	for _, metric := range metrics {
		for i, spec := range c.Thresholds[metric] {
			th, err := threshold.Parse(metric, spec.Expression)
			if err != nil {
				return nil, fmt.Errorf("thresholds.%s[%d]: %w", metric, i, err)
			}
			th.AbortOnFail = spec.AbortOnFail
			if spec.DelayAbortEval != "" {
				d, err := ParseDurationString(spec.DelayAbortEval)
				if err != nil {
					return nil, fmt.Errorf("thresholds.%s[%d].delayAbortEval: %w", metric, i, err)
				}
				th.DelayAbortEval = d
			}
			out = append(out, th)
		}
	}
	return out, nil
}

// Seed returns the configured seed, or one derived from the clock.
func (c *TestConfig) Seed() int64 {
	if c.Settings.Seed != nil {
		return *c.Settings.Seed
	}
	return time.Now().UnixNano()
}
