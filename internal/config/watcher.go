package config

import (
	"context"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mcpcoordinator/internal/mcpserver"
	"mcpcoordinator/pkg/logging"
)

// Watcher reloads the external-server configuration document whenever
// its file changes on disk, reconciling the Supervisor's backend set
// against the reloaded Document.Servers.
type Watcher struct {
	path             string
	supervisor       *mcpserver.Supervisor
	debounceInterval time.Duration

	mu      sync.Mutex
	current map[string]ServerSpec
}

// NewWatcher creates a Watcher for path, starting from the backend set
// already present in doc (typically the Document returned by the
// initial Load).
func NewWatcher(path string, doc Document, supervisor *mcpserver.Supervisor) *Watcher {
	current := make(map[string]ServerSpec, len(doc.Servers))
	for name, spec := range doc.Servers {
		current[name] = spec
	}

	return &Watcher{
		path:             path,
		supervisor:       supervisor,
		debounceInterval: 500 * time.Millisecond,
		current:          current,
	}
}

// Start watches the configuration file until ctx is cancelled,
// reconciling the Supervisor on every debounced change. It returns
// once the watcher is closed or setup fails.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return err
	}

	var debounce *time.Timer
	reload := func() {
		if err := w.reconcile(); err != nil {
			logging.Error("config", err, "reload server configuration")
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.debounceInterval, reload)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.Warn("config", "watcher error: %v", err)
		}
	}
}

// reconcile reloads the configuration document and adds/removes
// Supervisor backends to match it.
func (w *Watcher) reconcile() error {
	doc, err := Load(w.path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for name := range w.current {
		if _, stillPresent := doc.Servers[name]; !stillPresent {
			logging.Info("config", "server %s removed from configuration, stopping backend", name)
			if err := w.supervisor.RemoveBackend(name); err != nil {
				logging.Warn("config", "remove backend %s: %v", name, err)
			}
			delete(w.current, name)
		}
	}

	for name, spec := range doc.Servers {
		prev, existed := w.current[name]
		if existed && reflect.DeepEqual(prev, spec) {
			continue
		}
		if existed {
			logging.Info("config", "server %s changed, restarting backend", name)
			if err := w.supervisor.RemoveBackend(name); err != nil {
				logging.Warn("config", "remove backend %s for restart: %v", name, err)
			}
		} else {
			logging.Info("config", "server %s added to configuration, starting backend", name)
		}

		if err := w.supervisor.AddBackend(ToBackendSpec(name, spec, doc.Config)); err != nil {
			logging.Warn("config", "add backend %s: %v", name, err)
			continue
		}
		w.current[name] = spec
	}

	return nil
}
