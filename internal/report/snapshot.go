// Package report renders run results: the console summary, the JSON
// snapshot, the HTML report and the live progress line.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/wesleyorama2/bookload/internal/engine"
	"github.com/wesleyorama2/bookload/internal/metrics"
	"github.com/wesleyorama2/bookload/internal/threshold"
)

// SnapshotVersion is bumped when the snapshot layout changes.
const SnapshotVersion = 1

// Snapshot is the machine-readable summary of a run. Undefined trend
// percentiles are encoded as null.
type Snapshot struct {
	Version     int       `json:"version"`
	RunID       string    `json:"runId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	DurationMs  float64   `json:"durationMs"`
	Seed        int64     `json:"seed"`

	Stages []StageSnapshot `json:"stages"`

	VUs    int `json:"vus"`
	VUsMax int `json:"vusMax"`

	Passed      bool   `json:"passed"`
	StopReason  string `json:"stopReason"`
	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abortReason,omitempty"`
	Interrupted bool   `json:"interrupted"`

	Metrics    map[string]metrics.Snapshot `json:"metrics"`
	Thresholds threshold.Summary           `json:"thresholds"`
}

// StageSnapshot is one stage of the ramp profile.
type StageSnapshot struct {
	Duration string `json:"duration"`
	Target   int    `json:"target"`
	Name     string `json:"name,omitempty"`
}

// Duration returns the run duration.
func (s *Snapshot) Duration() time.Duration {
	return time.Duration(s.DurationMs * float64(time.Millisecond))
}

// FromResult builds a snapshot from an engine result.
func FromResult(res *engine.Result) *Snapshot {
	snap := &Snapshot{
		Version:     SnapshotVersion,
		RunID:       res.RunID,
		Name:        res.Name,
		Description: res.Description,
		StartTime:   res.StartTime,
		EndTime:     res.EndTime,
		DurationMs:  float64(res.Duration) / float64(time.Millisecond),
		Seed:        res.Seed,
		VUs:         res.VUs,
		VUsMax:      res.MaxVUs,
		Passed:      res.Passed,
		StopReason:  res.StopReason,
		Aborted:     res.Aborted,
		AbortReason: res.AbortReason,
		Interrupted: res.Interrupted,
		Metrics:     res.Metrics,
		Thresholds:  res.Thresholds,
	}
	for _, st := range res.Stages {
		snap.Stages = append(snap.Stages, StageSnapshot{
			Duration: st.Duration.String(),
			Target:   st.Target,
			Name:     st.Name,
		})
	}
	if snap.Metrics == nil {
		snap.Metrics = map[string]metrics.Snapshot{}
	}
	return snap
}

// WriteJSON writes the snapshot as indented JSON.
func WriteJSON(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// SaveJSON writes the snapshot to path, creating parent directories.
func SaveJSON(path string, snap *Snapshot) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := WriteJSON(f, snap); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadJSON decodes a snapshot.
func ReadJSON(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}
