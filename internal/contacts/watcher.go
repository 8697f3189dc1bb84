package contacts

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Lookup when its vCard directory changes. Contacts
// have no invalidation protocol; watching the sync directory is the
// "refresh on demand" the cache promises.
type Watcher struct {
	watcher *fsnotify.Watcher
	lookup  *Lookup
	logger  *slog.Logger
	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewWatcher creates a watcher for the lookup's directory.
func NewWatcher(lookup *Lookup, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher: fw,
		lookup:  lookup,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching. The directory may not exist yet (daemon has
// not synced contacts); in that case watching starts lazily on the
// first reload that finds it.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.lookup.Dir()); err != nil {
		w.logger.Debug("vcard directory not watchable yet", "dir", w.lookup.Dir(), "error", err)
	}

	go w.watch()
	return nil
}

func (w *Watcher) watch() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".vcf") {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				w.logger.Debug("vcard changed, reloading contacts", "file", event.Name)
				if err := w.lookup.Reload(); err != nil {
					w.logger.Warn("failed to reload contacts", "error", err)
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("contacts watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// Stop stops watching.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	close(w.done)
	return w.watcher.Close()
}
