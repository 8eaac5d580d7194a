package cursorstore

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type payload struct {
	Offset int    `json:"offset"`
	File   string `json:"file"`
}

func TestPutGetRoundTrip(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "cursors.json"), 0, 0)
	require.NoError(t, err)

	big := payload{Offset: 4096, File: strings.Repeat("long/relative/path/", 14) + "purposes.go"} // JSON exceeds InlineThresholdBytes
	tok, err := s.Put("file_slice", "full", "/repo", "abc123", big)
	require.NoError(t, err)

	var got payload
	ok, err := s.Get(tok, "file_slice", "full", "abc123", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, big, got)
}

func TestInlinePayloadNeedsNoStoreEntry(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "cursors.json"), 0, 0)
	require.NoError(t, err)

	small := payload{Offset: 1, File: "a.go"}
	tok, err := s.Put("grep_context", "full", "/repo", "abc123", small)
	require.NoError(t, err)
	require.Equal(t, 0, s.Len(), "small payloads must not consume LRU capacity")

	var got payload
	ok, err := s.Get(tok, "grep_context", "full", "abc123", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, small, got)
}

func TestGetRejectsToolModeMismatch(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "cursors.json"), 0, 0)
	require.NoError(t, err)
	tok, err := s.Put("read_pack", "full", "/repo", "abc123", payload{Offset: 1})
	require.NoError(t, err)

	var got payload
	ok, err := s.Get(tok, "read_pack", "facts", "abc123", &got)
	require.NoError(t, err)
	require.False(t, ok, "mode mismatch must invalidate the cursor")

	ok, err = s.Get(tok, "search", "full", "abc123", &got)
	require.NoError(t, err)
	require.False(t, ok, "tool mismatch must invalidate the cursor")
}

func TestGetRejectsRootMismatch(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "cursors.json"), 0, 0)
	require.NoError(t, err)
	tok, err := s.Put("read_pack", "full", "/repo", "abc123", payload{Offset: 1})
	require.NoError(t, err)

	var got payload
	ok, err := s.Get(tok, "read_pack", "full", "different-root-hash", &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExpiredEntryIsRejected(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "cursors.json"), 1, time.Millisecond)
	require.NoError(t, err)
	big := payload{Offset: 4096, File: strings.Repeat("long/relative/path/", 14) + "testing.go"} // JSON exceeds InlineThresholdBytes
	tok, err := s.Put("read_pack", "full", "/repo", "abc123", big)
	require.NoError(t, err)

	nowMS = func() int64 { return time.Now().Add(time.Hour).UnixMilli() }
	defer func() { nowMS = func() int64 { return time.Now().UnixMilli() } }()

	var got payload
	ok, err := s.Get(tok, "read_pack", "full", "abc123", &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaveAndReopenPersistsLiveEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursors.json")
	s, err := Open(path, 0, 0)
	require.NoError(t, err)

	big := payload{Offset: 4096, File: strings.Repeat("long/relative/path/", 14) + "round/trip.go"} // JSON exceeds InlineThresholdBytes
	tok, err := s.Put("read_pack", "full", "/repo", "abc123", big)
	require.NoError(t, err)
	require.NoError(t, s.Save())

	reopened, err := Open(path, 0, 0)
	require.NoError(t, err)
	var got payload
	ok, err := reopened.Get(tok, "read_pack", "full", "abc123", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, big, got)
}

func TestMalformedTokenIsInvalidNotError(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "cursors.json"), 0, 0)
	require.NoError(t, err)
	var got payload
	ok, err := s.Get("not-a-valid-token", "read_pack", "full", "abc123", &got)
	require.NoError(t, err)
	require.False(t, ok)
}
