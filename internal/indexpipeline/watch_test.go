package indexpipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexlens/contextd/internal/chunk"
	"github.com/cortexlens/contextd/internal/vectorindex"
)

func TestNewWatcherOverMissingRootFails(t *testing.T) {
	root := writeRoot(t, map[string]string{"a.go": "package a\n"})
	p, err := Open(root, testRegistry(), vectorindex.BackendChromem, chunk.DefaultOptions())
	require.NoError(t, err)
	p.Root.Path = filepath.Join(p.Root.Path, "nonexistent")

	w, err := NewWatcher(p)
	require.Error(t, err)
	require.Nil(t, w)
}

func TestWatcherPrewarmsAfterFileChange(t *testing.T) {
	root := writeRoot(t, map[string]string{"a.go": "package a\n\nfunc A() {}\n"})
	p, err := Open(root, testRegistry(), vectorindex.BackendChromem, chunk.DefaultOptions())
	require.NoError(t, err)
	_, err = p.IndexFull(context.Background())
	require.NoError(t, err)

	w, err := NewWatcher(p)
	require.NoError(t, err)
	defer w.Stop()

	indexed := make(chan Stats, 1)
	w.Start(context.Background(), func(s Stats) {
		select {
		case indexed <- s:
		default:
		}
	})

	require.NoError(t, os.WriteFile(filepath.Join(root.Path, "b.go"),
		[]byte("package a\n\nfunc B() {}\n"), 0o644))

	select {
	case s := <-indexed:
		require.Equal(t, 1, s.FilesAdded)
		require.Contains(t, p.Corpus.Files(), "b.go")
	case <-time.After(10 * time.Second):
		t.Fatal("watcher did not trigger a prewarm pass")
	}
}

func TestWatcherStopIsCleanWithoutStart(t *testing.T) {
	root := writeRoot(t, map[string]string{"a.go": "package a\n"})
	p, err := Open(root, testRegistry(), vectorindex.BackendChromem, chunk.DefaultOptions())
	require.NoError(t, err)

	w, err := NewWatcher(p)
	require.NoError(t, err)
	require.NoError(t, w.Stop())
}
