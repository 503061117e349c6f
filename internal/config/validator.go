package config

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/wesleyorama2/bookload/internal/booking"
	"github.com/wesleyorama2/bookload/internal/threshold"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Fields returns the field path of every error.
func (e *ValidationErrors) Fields() []string {
	fields := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		fields[i] = err.Field
	}
	return fields
}

// Validate validates the entire test configuration. Call it after
// ApplyDefaults so preset sections are taken into account.
//
// Returns nil if valid, or a *ValidationErrors containing all validation errors.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	if c.Preset != "" {
		if _, ok := presets[c.Preset]; !ok {
			errs.Add("preset", fmt.Sprintf("unknown preset: %s", c.Preset))
		}
	}

	validateProfile(c, errs)
	validateSleep(c.Sleep, errs)
	validateScenarios(c.Scenarios, errs)
	validateThresholds(c.Thresholds, errs)
	validateSettings(&c.Settings, errs)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateProfile(c *TestConfig, errs *ValidationErrors) {
	if c.VUs < 0 {
		errs.Add("vus", "vus cannot be negative")
	}

	if len(c.Stages) == 0 {
		if c.VUs <= 0 {
			errs.Add("stages", "at least one stage (or vus with duration) is required")
			return
		}
		if c.Duration == "" {
			errs.Add("duration", "duration is required with vus")
		} else if d, err := ParseDurationString(c.Duration); err != nil {
			errs.Add("duration", fmt.Sprintf("invalid duration: %v", err))
		} else if d <= 0 {
			errs.Add("duration", "duration must be greater than 0")
		}
		return
	}

	var total int64
	invalid := false
	for i, stage := range c.Stages {
		prefix := fmt.Sprintf("stages[%d]", i)
		if stage.Duration == "" {
			errs.Add(prefix+".duration", "duration is required")
			invalid = true
		} else if d, err := ParseDurationString(stage.Duration); err != nil {
			errs.Add(prefix+".duration", fmt.Sprintf("invalid duration: %v", err))
			invalid = true
		} else if d < 0 {
			errs.Add(prefix+".duration", "duration cannot be negative")
			invalid = true
		} else {
			total += int64(d)
		}

		if stage.Target < 0 {
			errs.Add(prefix+".target", "target cannot be negative")
		}
	}
	if total == 0 && !invalid {
		errs.Add("stages", "total stage duration must be greater than 0")
	}
}

func validateSleep(s *SleepConfig, errs *ValidationErrors) {
	if s == nil {
		return
	}

	lo, minErr := ParseDurationString(s.Min)
	if minErr != nil {
		errs.Add("sleep.min", fmt.Sprintf("invalid min: %v", minErr))
	} else if lo < 0 {
		errs.Add("sleep.min", "min cannot be negative")
	}

	hi, maxErr := ParseDurationString(s.Max)
	if maxErr != nil {
		errs.Add("sleep.max", fmt.Sprintf("invalid max: %v", maxErr))
	}

	if minErr == nil && maxErr == nil && hi != 0 && lo > hi {
		errs.Add("sleep", "min must be less than or equal to max")
	}
}

func validateScenarios(scenarios []ScenarioWeight, errs *ValidationErrors) {
	if len(scenarios) == 0 {
		errs.Add("scenarios", "at least one scenario is required")
		return
	}

	seen := make(map[string]bool, len(scenarios))
	for i, s := range scenarios {
		prefix := fmt.Sprintf("scenarios[%d]", i)

		switch {
		case s.Name == "":
			errs.Add(prefix+".name", "name is required")
		case !booking.IsKnownScenario(s.Name):
			errs.Add(prefix+".name", fmt.Sprintf("unknown scenario: %s (available: %s)",
				s.Name, strings.Join(booking.ScenarioNames(), ", ")))
		case seen[s.Name]:
			errs.Add(prefix+".name", fmt.Sprintf("duplicate scenario: %s", s.Name))
		}
		seen[s.Name] = true

		if s.Weight <= 0 || math.IsNaN(s.Weight) || math.IsInf(s.Weight, 0) {
			errs.Add(prefix+".weight", "weight must be a positive number")
		}
	}
}

func validateThresholds(thresholds map[string][]ThresholdSpec, errs *ValidationErrors) {
	for metric, list := range thresholds {
		for i, spec := range list {
			field := fmt.Sprintf("thresholds.%s[%d]", metric, i)
			if _, err := threshold.Parse(metric, spec.Expression); err != nil {
				errs.Add(field, err.Error())
			}
			if spec.DelayAbortEval != "" {
				if _, err := ParseDurationString(spec.DelayAbortEval); err != nil {
					errs.Add(field+".delayAbortEval", fmt.Sprintf("invalid duration: %v", err))
				}
			}
		}
	}
}

func validateSettings(s *Settings, errs *ValidationErrors) {
	if s.BaseURL != "" {
		u, err := url.Parse(s.BaseURL)
		if err != nil {
			errs.Add("settings.baseUrl", fmt.Sprintf("invalid URL: %v", err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs.Add("settings.baseUrl", "URL scheme must be http or https")
		} else if u.Host == "" {
			errs.Add("settings.baseUrl", "URL must include a host")
		}
	}

	if s.Timeout < 0 {
		errs.Add("settings.timeout", "cannot be negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "cannot be negative")
	}
	if s.TokenPoolSize < 0 {
		errs.Add("settings.tokenPoolSize", "cannot be negative")
	}
	if s.GracefulStop < 0 {
		errs.Add("settings.gracefulStop", "cannot be negative")
	}
	if s.Tick < 0 {
		errs.Add("settings.tick", "cannot be negative")
	}
}
