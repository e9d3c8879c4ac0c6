package registry

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// watch holds the fsnotify plumbing for Registry.Watch/Unwatch, grounded
// on the same directory-watch-not-file-watch pattern config.Holder uses:
// editors that save atomically replace the inode, so watching the file
// directly misses the event.
type watch struct {
	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	mu     sync.Mutex
}

// Watch starts an fsnotify watch over roots. Create/Write on a
// *.module.yaml manifest triggers rediscovery and re-registration of
// that module; Remove/Rename unregisters it. Idempotent: calling Watch
// again replaces the previous watch.
func (r *Registry) Watch(roots []string) error {
	r.Unwatch()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	for _, root := range roots {
		if err := addDirsRecursive(fsw, root); err != nil {
			fsw.Close()
			return err
		}
	}

	w := &watch{fsw: fsw, stopCh: make(chan struct{})}
	r.mu.Lock()
	r.watcher = w
	r.mu.Unlock()

	go r.watchLoop(w)
	return nil
}

func addDirsRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			return nil
		}
		name := filepath.Base(path)
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || skipDirNames[name] {
			if path != root {
				return filepath.SkipDir
			}
		}
		return fsw.Add(path)
	})
}

// Unwatch stops the active watch, if any.
func (r *Registry) Unwatch() {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()

	if w == nil {
		return
	}
	close(w.stopCh)
	w.fsw.Close()
}

func (r *Registry) watchLoop(w *watch) {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			r.handleWatchEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			r.logger.Error().Err(err).Msg("registry watch error")
		case <-w.stopCh:
			return
		}
	}
}

func (r *Registry) handleWatchEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, manifestExt) {
		return
	}

	switch {
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		r.reloadManifest(event.Name)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if id, ok := r.moduleIDForPath(event.Name); ok {
			r.Unregister(id)
		}
	}
}

func (r *Registry) reloadManifest(path string) {
	r.mu.RLock()
	disc := r.discoverer
	r.mu.RUnlock()

	fd, ok := disc.(*FilesystemDiscoverer)
	if !ok {
		return
	}

	dir := filepath.Dir(path)
	found, err := fd.discoverRoot(dir, "", newIDCollisionTracker())
	if err != nil {
		r.logger.Error().Err(err).Str("path", path).Msg("rediscovery failed")
		return
	}

	for _, d := range found {
		if d.Path != path {
			continue
		}
		if r.Has(d.ModuleID) {
			r.Unregister(d.ModuleID)
		}
		if err := r.registerDiscovered(d); err != nil {
			r.logger.Error().Err(err).Str("module_id", d.ModuleID).Msg("hot-reload register failed")
		}
		return
	}
}
