// Package trigger raises cleaning requests when a watched file is written.
// Touching the file from a shell, a foot-pedal daemon or a PLC bridge asks
// the running weave to clean before its next fiber.
package trigger

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"leaflet-weaver/pkg/log"
)

// DefaultDebounce collapses bursts of writes into one request.
const DefaultDebounce = 100 * time.Millisecond

// Requester receives cleaning requests. *scheduler.Scheduler satisfies it.
type Requester interface {
	RequestCleaning() bool
}

// Watcher monitors one file.
type Watcher struct {
	path     string
	target   Requester
	debounce time.Duration
	log      *log.Logger

	watcher   *fsnotify.Watcher
	done      chan struct{}
	started   atomic.Bool
	closeOnce sync.Once
	fired     atomic.Int64
}

// New creates a watcher for path. debounce <= 0 uses DefaultDebounce.
func New(path string, target Requester, debounce time.Duration, logger *log.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = log.GetLogger("trigger")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     abs,
		target:   target,
		debounce: debounce,
		log:      logger,
		watcher:  fw,
		done:     make(chan struct{}),
	}, nil
}

// Start watches the file's directory, so the file may be created later or
// replaced by an editor.
// A failed Start releases the watcher.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.close()
		return err
	}
	if !w.started.CompareAndSwap(false, true) {
		return nil
	}
	w.log.WithField("path", w.path).Info("watching for cleaning requests")
	go w.loop()
	return nil
}

// Stop closes the watcher and waits for the loop to exit. It may be called
// more than once, and before Start.
func (w *Watcher) Stop() {
	w.close()
	if w.started.Load() {
		<-w.done
	}
}

func (w *Watcher) close() {
	w.closeOnce.Do(func() { w.watcher.Close() })
}

// Fired returns how many requests the watcher has raised.
func (w *Watcher) Fired() int { return int(w.fired.Load()) }

func (w *Watcher) loop() {
	defer close(w.done)

	var pending time.Time
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				pending = time.Now()
			}

		case <-ticker.C:
			if !pending.IsZero() && time.Since(pending) >= w.debounce {
				pending = time.Time{}
				w.fire()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watch error")
		}
	}
}

func (w *Watcher) fire() {
	w.fired.Add(1)
	accepted := w.target.RequestCleaning()
	w.log.WithFields(log.Fields{"path": w.path, "accepted": accepted}).Info("cleaning requested by trigger file")
}
