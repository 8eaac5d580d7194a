// Package project resolves a request's project root, its on-disk state
// directory, and the root fingerprint used to bind cursors (C13) to a
// specific project (spec.md §3 "Cursor record", §6.2).
package project

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
)

// StateDirName is the preferred state directory name under a project root.
const StateDirName = ".context"

// LegacyStateDirName is honored on the read path for older projects.
const LegacyStateDirName = ".context-finder"

// Root describes a resolved project root and its state directory.
type Root struct {
	Path        string // absolute project root
	StateDir    string // absolute state directory (preferred or legacy)
	Legacy      bool   // true if StateDir resolved to the legacy name
	Fingerprint string // stable hash binding cursors/locks to this root
}

// Resolve determines the project root for a request. Precedence:
//  1. explicit path argument
//  2. CONTEXT_ROOT / CONTEXT_PROJECT_ROOT (legacy CONTEXT_FINDER_ROOT / CONTEXT_FINDER_PROJECT_ROOT)
//  3. current working directory
func Resolve(explicitPath string) (*Root, error) {
	path := explicitPath
	if path == "" {
		for _, env := range []string{"CONTEXT_ROOT", "CONTEXT_PROJECT_ROOT", "CONTEXT_FINDER_ROOT", "CONTEXT_FINDER_PROJECT_ROOT"} {
			if v := os.Getenv(env); v != "" {
				path = v
				break
			}
		}
	}
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		path = cwd
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	abs = filepath.Clean(abs)

	stateDir := filepath.Join(abs, StateDirName)
	legacy := false
	if !dirExists(stateDir) && dirExists(filepath.Join(abs, LegacyStateDirName)) {
		stateDir = filepath.Join(abs, LegacyStateDirName)
		legacy = true
	}

	return &Root{
		Path:        abs,
		StateDir:    stateDir,
		Legacy:      legacy,
		Fingerprint: Fingerprint(abs),
	}, nil
}

// Fingerprint derives a stable opaque fingerprint for a project root path.
// It never changes for a given absolute path, unlike the teacher's git-remote
// based cache key (git is an external collaborator per spec.md §1), so it is
// purely a function of the resolved filesystem path.
func Fingerprint(absRoot string) string {
	h := sha256.Sum256([]byte(absRoot))
	return hex.EncodeToString(h[:])[:16]
}

func dirExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// CorpusPath returns the chunk corpus file path under the state dir.
func (r *Root) CorpusPath() string { return filepath.Join(r.StateDir, "corpus.json") }

// WatermarkPath returns the freshness watermark path under the state dir.
func (r *Root) WatermarkPath() string { return filepath.Join(r.StateDir, "watermark.json") }

// LockPath returns the advisory exclusive write-lock path.
func (r *Root) LockPath() string { return filepath.Join(r.StateDir, "index.lock") }

// IndexDir returns the per-model vector index directory for modelID.
func (r *Root) IndexDir(modelID string) string {
	return filepath.Join(r.StateDir, "indexes", modelID)
}

// GraphDir returns the cached graph artifact directory.
func (r *Root) GraphDir() string { return filepath.Join(r.StateDir, "graph") }

// CacheDir returns the best-effort cache directory (cursor store, etc.).
func (r *Root) CacheDir() string { return filepath.Join(r.StateDir, "cache") }

// ProfilesDir returns the directory holding named configuration profiles.
func (r *Root) ProfilesDir() string { return filepath.Join(r.StateDir, "profiles") }

// UserGlobalCursorStorePath is the fallback cursor store location when a
// project-scoped one can't be written (spec.md §6.2).
func UserGlobalCursorStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", StateDirName, "cache", "cursor_store_v1.json")
	}
	return filepath.Join(home, StateDirName, "cache", "cursor_store_v1.json")
}

// CursorStorePath resolves this project's cursor store location:
// CONTEXT_MCP_CURSOR_STORE_PATH overrides (spec.md §6.4), otherwise the
// project-scoped cache dir under the state directory is used
// (spec.md §6.2 "cache/ — cursor store and similar best-effort caches").
func (r *Root) CursorStorePath() string {
	if p := os.Getenv("CONTEXT_MCP_CURSOR_STORE_PATH"); p != "" {
		return p
	}
	return filepath.Join(r.CacheDir(), "cursor_store_v1.json")
}
