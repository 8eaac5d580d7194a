// Package cursorstore implements C13: a bounded, TTL-evicting, persisted
// store for read-pack continuation state (spec.md §4.13). Opaque cursor
// tokens are base64 JSON envelopes binding a stored payload to a tool,
// mode and project root, so a continuation can be rejected outright if
// it's replayed against the wrong project or the wrong tool/mode.
package cursorstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// SchemaVersion guards the persisted envelope's shape (spec.md §6.2).
const SchemaVersion = 1

// DefaultTTL is how long a cursor remains valid after Put, absent an
// explicit override.
const DefaultTTL = 30 * time.Minute

// DefaultCapacity bounds how many live entries the store keeps before
// evicting the least recently used (spec.md §4.13 "over-capacity entries are evicted").
const DefaultCapacity = 2048

// InlineThresholdBytes: payloads at or below this size are embedded
// directly in the token instead of being stored (spec.md §4.13 "inline
// cursors below a size threshold may embed payload directly").
const InlineThresholdBytes = 256

// Token is the opaque structure serialized to base64 and handed to callers.
type Token struct {
	V       int    `json:"v"`
	Tool    string `json:"tool"`
	Mode    string `json:"mode"`
	Root    string `json:"root,omitempty"`
	RootHash string `json:"root_hash,omitempty"`
	StoreID string `json:"store_id,omitempty"`
	Inline  []byte `json:"inline,omitempty"`
}

type entry struct {
	Tool      string          `json:"tool"`
	Mode      string          `json:"mode"`
	RootHash  string          `json:"root_hash"`
	ExpiresAtUnixMS int64     `json:"expires_at_unix_ms"`
	Payload   json.RawMessage `json:"payload"`
}

type persistedFile struct {
	SchemaVersion int              `json:"v"`
	Entries       map[string]entry `json:"entries"`
}

// Store is a process-wide, optionally disk-backed cursor store.
type Store struct {
	mu       sync.Mutex
	path     string
	ttl      time.Duration
	cache    *lru.Cache[string, entry]
}

// Open loads path (if present), dropping expired entries, and returns a
// Store capped at capacity live entries.
func Open(path string, capacity int, ttl time.Duration) (*Store, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cache, err := lru.New[string, entry](capacity)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, ttl: ttl, cache: cache}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	var pf persistedFile
	if err := json.Unmarshal(data, &pf); err != nil || pf.SchemaVersion != SchemaVersion {
		return s, nil // corrupt or stale schema: behaves like empty
	}
	now := nowMS()
	ids := make([]string, 0, len(pf.Entries))
	for id := range pf.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e := pf.Entries[id]
		if e.ExpiresAtUnixMS <= now {
			continue
		}
		s.cache.Add(id, e)
	}
	return s, nil
}

// Put stores payload under a fresh random id, returning a base64 Token
// scoped to tool/mode/rootHash. Small payloads are embedded inline and
// never touch the LRU or disk at all.
func (s *Store) Put(tool, mode, root, rootHash string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	tok := Token{V: 1, Tool: tool, Mode: mode, Root: root, RootHash: rootHash}
	if len(data) <= InlineThresholdBytes {
		tok.Inline = data
		return encodeToken(tok)
	}

	id, err := randomID()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.cache.Add(id, entry{
		Tool: tool, Mode: mode, RootHash: rootHash,
		ExpiresAtUnixMS: nowMS() + s.ttl.Milliseconds(),
		Payload:         json.RawMessage(data),
	})
	s.mu.Unlock()
	tok.StoreID = id
	return encodeToken(tok)
}

// Get resolves a base64 token back to its payload, verifying tool/mode
// and (if present) rootHash all match. ok is false on any mismatch,
// expiry, or eviction — callers surface that uniformly as invalid_cursor.
func (s *Store) Get(token, tool, mode, rootHash string, out any) (ok bool, err error) {
	tok, err := decodeToken(token)
	if err != nil {
		return false, nil // malformed token: invalid_cursor, not an internal error
	}
	if tok.Tool != tool || tok.Mode != mode {
		return false, nil
	}
	if tok.RootHash != "" && rootHash != "" && tok.RootHash != rootHash {
		return false, nil
	}

	var payload json.RawMessage
	if tok.Inline != nil {
		payload = tok.Inline
	} else if tok.StoreID != "" {
		s.mu.Lock()
		e, found := s.cache.Get(tok.StoreID)
		s.mu.Unlock()
		if !found {
			return false, nil
		}
		if e.ExpiresAtUnixMS <= nowMS() {
			return false, nil
		}
		if e.Tool != tool || e.Mode != mode || (rootHash != "" && e.RootHash != "" && e.RootHash != rootHash) {
			return false, nil
		}
		payload = e.Payload
	} else {
		return false, nil
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return false, nil
	}
	return true, nil
}

// Save persists the store's live, unexpired entries atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	pf := persistedFile{SchemaVersion: SchemaVersion, Entries: make(map[string]entry)}
	now := nowMS()
	for _, id := range s.cache.Keys() {
		e, ok := s.cache.Peek(id)
		if !ok || e.ExpiresAtUnixMS <= now {
			continue
		}
		pf.Entries[id] = e
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".cursors-*.tmp")
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
	return os.Rename(tmpPath, s.path)
}

// Len reports how many entries are currently live in memory.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

func encodeToken(tok Token) (string, error) {
	data, err := json.Marshal(tok)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeToken(s string) (Token, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Token{}, err
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return Token{}, err
	}
	if tok.V != 1 {
		return Token{}, fmt.Errorf("cursorstore: unsupported token version %d", tok.V)
	}
	return tok, nil
}

func randomID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// nowMS is the store's only timing hook, a var so tests can stub it.
var nowMS = func() int64 { return time.Now().UnixMilli() }
