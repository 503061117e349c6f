package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseStages parses stages from CLI format "30s:10,2m:10,30s:0".
func ParseStages(stagesStr string) ([]StageConfig, error) {
	var stages []StageConfig

	parts := strings.Split(stagesStr, ",")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		colonIdx := strings.LastIndex(part, ":")
		if colonIdx == -1 {
			return nil, fmt.Errorf("stage %d: expected 'duration:target' format, got '%s'", i+1, part)
		}

		durationStr := part[:colonIdx]
		targetStr := part[colonIdx+1:]

		if _, err := time.ParseDuration(durationStr); err != nil {
			return nil, fmt.Errorf("stage %d: invalid duration '%s': %w", i+1, durationStr, err)
		}

		target, err := strconv.Atoi(targetStr)
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid target '%s': %w", i+1, targetStr, err)
		}

		stages = append(stages, StageConfig{
			Duration: durationStr,
			Target:   target,
			Name:     fmt.Sprintf("stage-%d", i+1),
		})
	}

	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}

	return stages, nil
}

// ParseSleep parses a think-time range such as "1s-3s" or a fixed "500ms".
func ParseSleep(s string) (*SleepConfig, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("sleep range cannot be empty")
	}

	lo, hi := s, s
	if idx := strings.Index(s, "-"); idx > 0 {
		lo, hi = strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+1:])
	}

	minDur, err := ParseDurationString(lo)
	if err != nil {
		return nil, fmt.Errorf("invalid sleep min '%s': %w", lo, err)
	}
	maxDur, err := ParseDurationString(hi)
	if err != nil {
		return nil, fmt.Errorf("invalid sleep max '%s': %w", hi, err)
	}
	if minDur > maxDur {
		return nil, fmt.Errorf("sleep min %s exceeds max %s", minDur, maxDur)
	}
	return &SleepConfig{Min: lo, Max: hi}, nil
}

// ParseWeights parses a weight table such as "create_booking=40,list_bookings=30".
func ParseWeights(s string) ([]ScenarioWeight, error) {
	var weights []ScenarioWeight
	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("weight %d: expected 'scenario=weight', got '%s'", i+1, part)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("weight %d: invalid weight '%s': %w", i+1, value, err)
		}
		weights = append(weights, ScenarioWeight{Name: strings.TrimSpace(name), Weight: w})
	}

	if len(weights) == 0 {
		return nil, fmt.Errorf("at least one scenario weight is required")
	}
	return weights, nil
}

// ParseThresholdFlag parses "metric=expression", e.g.
// "http_req_duration=p(95)<500". The metric name may carry a tag such as
// "http_req_duration{name:CreateBooking}".
func ParseThresholdFlag(s string) (string, ThresholdSpec, error) {
	metric, expr, ok := strings.Cut(s, "=")
	metric = strings.TrimSpace(metric)
	expr = strings.TrimSpace(expr)
	if !ok || metric == "" || expr == "" {
		return "", ThresholdSpec{}, fmt.Errorf("expected 'metric=expression', got '%s'", s)
	}
	return metric, ThresholdSpec{Expression: expr}, nil
}
