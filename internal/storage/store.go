// Package storage archives run snapshots in a local bbolt database so runs
// can be listed and compared later.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/wesleyorama2/bookload/internal/report"
)

const (
	bucketRuns = "runs"
	bucketIDs  = "run_ids"

	openTimeout = time.Second
)

var (
	// ErrNotFound is returned when no run matches an ID.
	ErrNotFound = errors.New("run not found")
	// ErrAmbiguous is returned when an ID prefix matches more than one run.
	ErrAmbiguous = errors.New("run id prefix is ambiguous")
)

// Entry is the listing view of an archived run.
type Entry struct {
	RunID      string        `json:"runId"`
	Name       string        `json:"name"`
	StartTime  time.Time     `json:"startTime"`
	Duration   time.Duration `json:"duration"`
	VUsMax     int           `json:"vusMax"`
	Passed     bool          `json:"passed"`
	StopReason string        `json:"stopReason"`
}

// Store is a run history archive. Runs are keyed by start time so that
// iteration is chronological.
type Store struct {
	db   *bbolt.DB
	path string
}

// DefaultPath returns ~/.bookload/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".bookload", "history.db"), nil
}

// Open opens or creates the archive at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketRuns, bucketIDs} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise history: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save archives a snapshot. Saving the same run twice replaces it.
func (s *Store) Save(snap *report.Snapshot) error {
	if snap == nil || snap.RunID == "" {
		return fmt.Errorf("snapshot has no run id")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(bucketRuns))
		ids := tx.Bucket([]byte(bucketIDs))

		if old := ids.Get([]byte(snap.RunID)); old != nil {
			if err := runs.Delete(old); err != nil {
				return err
			}
		}

		key := runKey(snap)
		if err := runs.Put(key, data); err != nil {
			return err
		}
		return ids.Put([]byte(snap.RunID), key)
	})
}

// List returns archived runs, newest first. limit <= 0 returns all runs.
func (s *Store) List(limit int) ([]Entry, error) {
	var entries []Entry

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var snap report.Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("corrupt history entry %q: %w", k, err)
			}
			entries = append(entries, entryOf(&snap))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Get returns the run with the given ID. A unique ID prefix is accepted.
func (s *Store) Get(id string) (*report.Snapshot, error) {
	var snap report.Snapshot

	err := s.db.View(func(tx *bbolt.Tx) error {
		key, err := resolve(tx, id)
		if err != nil {
			return err
		}
		v := tx.Bucket([]byte(bucketRuns)).Get(key)
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(v, &snap)
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Latest returns the most recent run.
func (s *Store) Latest() (*report.Snapshot, error) {
	var snap *report.Snapshot

	err := s.db.View(func(tx *bbolt.Tx) error {
		_, v := tx.Bucket([]byte(bucketRuns)).Cursor().Last()
		if v == nil {
			return ErrNotFound
		}
		snap = &report.Snapshot{}
		return json.Unmarshal(v, snap)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Delete removes a run. A unique ID prefix is accepted.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		key, err := resolve(tx, id)
		if err != nil {
			return err
		}
		runs := tx.Bucket([]byte(bucketRuns))

		var snap report.Snapshot
		if v := runs.Get(key); v != nil {
			if err := json.Unmarshal(v, &snap); err == nil {
				if err := tx.Bucket([]byte(bucketIDs)).Delete([]byte(snap.RunID)); err != nil {
					return err
				}
			}
		}
		return runs.Delete(key)
	})
}

// resolve maps a run ID or unique ID prefix to its runs bucket key.
func resolve(tx *bbolt.Tx, id string) ([]byte, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	ids := tx.Bucket([]byte(bucketIDs))
	if key := ids.Get([]byte(id)); key != nil {
		return key, nil
	}

	var match []byte
	prefix := []byte(id)
	c := ids.Cursor()
	for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), id); k, v = c.Next() {
		if match != nil {
			return nil, fmt.Errorf("%w: %s", ErrAmbiguous, id)
		}
		match = append([]byte(nil), v...)
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return match, nil
}

// runKey orders runs by start time, with the run ID as a tie breaker.
func runKey(snap *report.Snapshot) []byte {
	return []byte(snap.StartTime.UTC().Format("20060102T150405.000000000Z") + "/" + snap.RunID)
}

func entryOf(snap *report.Snapshot) Entry {
	return Entry{
		RunID:      snap.RunID,
		Name:       snap.Name,
		StartTime:  snap.StartTime,
		Duration:   snap.Duration(),
		VUsMax:     snap.VUsMax,
		Passed:     snap.Passed,
		StopReason: snap.StopReason,
	}
}
