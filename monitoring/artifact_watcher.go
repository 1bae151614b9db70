package monitoring

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ArtifactWatcher reports when the model artifact on disk is replaced or
// removed after the service loaded it. It never reloads anything; the
// running predictor keeps serving the model it started with.
type ArtifactWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	onStale func(fsnotify.Event)

	mu    sync.Mutex
	stale bool
	wg    sync.WaitGroup
}

// NewArtifactWatcher watches the directory holding path, since the trainer
// replaces the file by rename. onStale runs once per relevant event.
func NewArtifactWatcher(path string, metrics *Metrics, onStale func(fsnotify.Event)) (*ArtifactWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	aw := &ArtifactWatcher{path: abs, watcher: w}
	aw.onStale = func(ev fsnotify.Event) {
		if metrics != nil {
			metrics.ArtifactStale.Set(1)
		}
		zap.S().Warnw("model artifact changed on disk, restart to serve it",
			"path", abs, "op", ev.Op.String())
		if onStale != nil {
			onStale(ev)
		}
	}
	return aw, nil
}

// Start consumes watcher events in the background until ctx is done or
// Close is called.
func (aw *ArtifactWatcher) Start(ctx context.Context) {
	aw.wg.Add(1)
	go aw.run(ctx)
}

func (aw *ArtifactWatcher) run(ctx context.Context) {
	defer aw.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-aw.watcher.Events:
			if !ok {
				return
			}
			if !aw.relevant(ev) {
				continue
			}
			aw.mu.Lock()
			aw.stale = true
			aw.mu.Unlock()
			aw.onStale(ev)
		case err, ok := <-aw.watcher.Errors:
			if !ok {
				return
			}
			zap.S().Errorw("artifact watcher error", "error", err)
		}
	}
}

func (aw *ArtifactWatcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != aw.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) ||
		ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

// Stale reports whether the artifact changed since start-up.
func (aw *ArtifactWatcher) Stale() bool {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	return aw.stale
}

func (aw *ArtifactWatcher) Close() error {
	err := aw.watcher.Close()
	aw.wg.Wait()
	return err
}
