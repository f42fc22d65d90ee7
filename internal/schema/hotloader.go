// CRC: crc-SchemaRegistry.md
// Sequence: seq-schema-hotload.md
package schema

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zot/actionq/internal/config"
)

// HotLoader watches a schema file and reloads the registry when it changes.
// The parent directory is watched so editors that replace the file by rename
// are still seen.
type HotLoader struct {
	config   *config.Config
	path     string
	registry *Registry
	watcher  *fsnotify.Watcher

	// Debouncing
	pendingSince  time.Time
	debounceMu    sync.Mutex
	debounceDelay time.Duration

	onReload func(*Registry)
	done     chan struct{}
	stopOnce sync.Once
}

// NewHotLoader creates a hot loader for path that updates registry in place.
func NewHotLoader(cfg *config.Config, path string, registry *Registry) (*HotLoader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	return &HotLoader{
		config:        cfg,
		path:          abs,
		registry:      registry,
		watcher:       watcher,
		debounceDelay: 100 * time.Millisecond,
		done:          make(chan struct{}),
	}, nil
}

// OnReload sets a callback run after each successful reload.
func (h *HotLoader) OnReload(fn func(*Registry)) {
	h.onReload = fn
}

// Start begins watching for file changes.
func (h *HotLoader) Start() error {
	if err := h.watcher.Add(filepath.Dir(h.path)); err != nil {
		return err
	}

	go h.eventLoop()
	go h.debounceLoop()

	h.config.Log(1, "SchemaHotLoader: watching %s", h.path)
	return nil
}

// Stop stops the hot loader.
func (h *HotLoader) Stop() error {
	var err error
	h.stopOnce.Do(func() {
		close(h.done)
		err = h.watcher.Close()
	})
	return err
}

// eventLoop processes file system events.
func (h *HotLoader) eventLoop() {
	for {
		select {
		case <-h.done:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != h.path {
				continue
			}
			h.config.Log(3, "SchemaHotLoader: event %s on %s", event.Op, event.Name)
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				h.debounceMu.Lock()
				h.pendingSince = time.Now()
				h.debounceMu.Unlock()
			}
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.config.Warn("SchemaHotLoader: watcher error: %v", err)
		}
	}
}

// debounceLoop reloads once events have been quiet for debounceDelay.
func (h *HotLoader) debounceLoop() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.debounceMu.Lock()
			ready := !h.pendingSince.IsZero() && time.Since(h.pendingSince) >= h.debounceDelay
			if ready {
				h.pendingSince = time.Time{}
			}
			h.debounceMu.Unlock()
			if ready {
				h.reload()
			}
		}
	}
}

// reload re-reads the file. A broken file keeps the previous registry.
func (h *HotLoader) reload() {
	next, err := LoadFile(h.path)
	if err != nil {
		h.config.Warn("SchemaHotLoader: keeping previous schema: %v", err)
		return
	}
	h.registry.Replace(next)
	h.config.Log(1, "SchemaHotLoader: reloaded %d action types", len(next.Types()))
	if h.onReload != nil {
		h.onReload(h.registry)
	}
}
