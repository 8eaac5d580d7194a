// Package freshness implements C7: staleness detection against the
// on-disk watermark, and the project-scoped exclusive write lock
// (spec.md §3 "Freshness / Watermark", §4.7). The lock itself reuses
// the teacher's gofrs/flock pattern from internal/daemon/singleton.go,
// generalized from a process-singleton socket+lock pair to a plain
// blocking advisory file lock over index.lock.
package freshness

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// SchemaVersion must match the corpus/vector-index schema version for
// the watermark to be considered current (spec.md §3 "schema_drift").
const SchemaVersion = 1

// Reason names a staleness cause (spec.md §3).
type Reason string

const (
	ReasonFilesystemChanged Reason = "filesystem_changed"
	ReasonWatermarkMissing  Reason = "watermark_missing"
	ReasonSchemaDrift       Reason = "schema_drift"
)

// TrackedFile is one input the watermark summarizes.
type TrackedFile struct {
	Path  string `json:"path"`
	MTime int64  `json:"mtime_unix"`
	Hash  string `json:"hash,omitempty"`
}

// Watermark is the persisted freshness marker (spec.md §3, §6.2).
type Watermark struct {
	SchemaVersion int           `json:"schema_version"`
	IndexedAtUnix int64         `json:"indexed_at_unix"`
	Files         []TrackedFile `json:"files"`
}

// LoadWatermark reads path, returning (nil, false, nil) if absent.
func LoadWatermark(path string) (*Watermark, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var w Watermark
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, false, nil // corrupt watermark behaves like missing
	}
	return &w, true, nil
}

// SaveWatermark persists w atomically, as the Indexer's final step
// (spec.md §4.6 step 6).
func SaveWatermark(path string, w *Watermark) error {
	w.SchemaVersion = SchemaVersion
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".watermark-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// State is the structured freshness signal returned in response meta
// (spec.md §4.7 "{exists, stale, stale_reasons[]}").
type State struct {
	Exists        bool     `json:"exists"`
	Stale         bool     `json:"stale"`
	StaleReasons  []Reason `json:"stale_reasons,omitempty"`
	IndexedAtUnix int64    `json:"indexed_at_unix,omitempty"`
}

// Check compares the watermark at watermarkPath against the live mtimes
// of currentFiles (rel-path -> absolute path) and returns the freshness
// state.
func Check(watermarkPath string, currentFiles map[string]string) (State, error) {
	wm, exists, err := LoadWatermark(watermarkPath)
	if err != nil {
		return State{}, err
	}
	if !exists {
		return State{Exists: false, Stale: true, StaleReasons: []Reason{ReasonWatermarkMissing}}, nil
	}
	state := State{Exists: true, IndexedAtUnix: wm.IndexedAtUnix}

	if wm.SchemaVersion != SchemaVersion {
		state.Stale = true
		state.StaleReasons = append(state.StaleReasons, ReasonSchemaDrift)
	}

	tracked := make(map[string]TrackedFile, len(wm.Files))
	for _, f := range wm.Files {
		tracked[f.Path] = f
	}

	changed := false
	if len(tracked) != len(currentFiles) {
		changed = true
	}
	for rel, abs := range currentFiles {
		tf, ok := tracked[rel]
		if !ok {
			changed = true
			break
		}
		info, err := os.Stat(abs)
		if err != nil {
			changed = true
			break
		}
		if info.ModTime().Unix() != tf.MTime {
			changed = true
			break
		}
	}
	if !changed {
		for rel := range tracked {
			if _, ok := currentFiles[rel]; !ok {
				changed = true
				break
			}
		}
	}
	if changed {
		state.Stale = true
		state.StaleReasons = append(state.StaleReasons, ReasonFilesystemChanged)
	}
	return state, nil
}

// Policy is a request's staleness handling directive (spec.md §4.7).
type Policy string

const (
	PolicyWarn Policy = "warn"
	PolicyAuto Policy = "auto"
	PolicyOff  Policy = "off"
)

// ReindexResult records what the auto policy actually did, surfaced as
// response meta "index_state.reindex" (spec.md testable property #1).
type ReindexResult struct {
	Attempted bool `json:"attempted"`
	Performed bool `json:"performed"`
}

// Lock is the project-scoped exclusive advisory write lock (spec.md
// §4.7 "index.lock"), plus bounded wait-time observability (spec.md
// §4.6 "Lock wait metrics").
type Lock struct {
	fl           *flock.Flock
	path         string
	lastWait     time.Duration
	maxWait      time.Duration
}

// NewLock returns a Lock over path (typically Root.LockPath()).
func NewLock(path string) *Lock {
	return &Lock{fl: flock.New(path), path: path}
}

// Acquire blocks until the exclusive lock is held, recording the wait
// duration for observability. ctx is not consulted while waiting; if it
// is already done once the lock is obtained, the lock is released and
// ctx.Err() is returned.
func (l *Lock) Acquire(ctx context.Context) error {
	start := time.Now()
	if err := l.fl.Lock(); err != nil {
		return err
	}
	// flock.Flock.Lock is a blocking syscall with no native context support;
	// the wait is still recorded for the bounded last/max counters below.
	select {
	case <-ctx.Done():
		_ = l.fl.Unlock()
		return ctx.Err()
	default:
	}
	wait := time.Since(start)
	l.lastWait = wait
	if wait > l.maxWait {
		l.maxWait = wait
	}
	return nil
}

// TryAcquire attempts the lock without blocking.
func (l *Lock) TryAcquire() (bool, error) {
	start := time.Now()
	ok, err := l.fl.TryLock()
	if err != nil {
		return false, err
	}
	if ok {
		wait := time.Since(start)
		l.lastWait = wait
		if wait > l.maxWait {
			l.maxWait = wait
		}
	}
	return ok, nil
}

// Release drops the lock.
func (l *Lock) Release() error { return l.fl.Unlock() }

// LastWait returns the most recent lock-acquisition wait time.
func (l *Lock) LastWait() time.Duration { return l.lastWait }

// MaxWait returns the maximum lock-acquisition wait time observed.
func (l *Lock) MaxWait() time.Duration { return l.maxWait }
