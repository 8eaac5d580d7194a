package indexpipeline

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// skipDirs are never watched; they mirror the scanner's ignore set for
// the directories that dominate event volume.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "target": true,
	"dist": true, "build": true, "__pycache__": true,
	".context": true, ".context-finder": true,
}

// Watcher drives opportunistic prewarm: it observes the project tree
// with fsnotify and, after a quiet period, runs one incremental Index
// pass so the next read finds a fresh corpus. It is not a scheduler —
// no pass runs unless the filesystem actually changed.
type Watcher struct {
	pipeline *Pipeline
	fw       *fsnotify.Watcher
	debounce time.Duration

	timerMu sync.Mutex
	timer   *time.Timer

	cancel context.CancelFunc
	done   chan struct{}

	maxDirs  int
	dirCount int
}

// NewWatcher sets up a recursive watch over the pipeline's project root.
func NewWatcher(p *Pipeline) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		pipeline: p,
		fw:       fw,
		debounce: 500 * time.Millisecond,
		done:     make(chan struct{}),
		maxDirs:  1000,
	}
	if err := w.addRecursive(p.Root.Path); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Start begins watching; onIndexed (optional) is invoked after each
// completed prewarm pass so callers can pick up the rebuilt graph.
func (w *Watcher) Start(ctx context.Context, onIndexed func(Stats)) {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.loop(ctx, onIndexed)
}

// Stop shuts the watcher down and waits for its loop to exit.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	} else {
		close(w.done)
	}
	return w.fw.Close()
}

func (w *Watcher) loop(ctx context.Context, onIndexed func(Stats)) {
	defer close(w.done)

	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return

		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						log.Printf("watch: failed to add %s: %v", event.Name, err)
					}
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.resetTimer(fire)

		case <-fire:
			stats, err := w.pipeline.Index(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("watch: prewarm index failed: %v", err)
				}
				continue
			}
			if onIndexed != nil {
				onIndexed(stats)
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Printf("watch: %v", err)
		}
	}
}

func (w *Watcher) resetTimer(fire chan struct{}) {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		if !w.timer.Stop() {
			select {
			case <-w.timer.C:
			default:
			}
		}
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case fire <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) stopTimer() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) addRecursive(dir string) error {
	if skipDirs[filepath.Base(dir)] {
		return nil
	}
	if w.dirCount >= w.maxDirs {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	if err := w.fw.Add(dir); err != nil {
		return err
	}
	w.dirCount++
	for _, entry := range entries {
		if !entry.IsDir() || skipDirs[entry.Name()] {
			continue
		}
		if err := w.addRecursive(filepath.Join(dir, entry.Name())); err != nil {
			log.Printf("watch: %v", err)
		}
	}
	return nil
}
