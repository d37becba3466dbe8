// Package watcher reloads the playground's example program when its file
// changes on disk.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/tstlplay/internal/logging"
)

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

func eventTypeOf(op fsnotify.Op) EventType {
	switch {
	case op.Has(fsnotify.Create):
		return EventTypeCreated
	case op.Has(fsnotify.Write):
		return EventTypeModified
	case op.Has(fsnotify.Remove):
		return EventTypeDeleted
	case op.Has(fsnotify.Rename):
		return EventTypeRenamed
	default:
		return EventTypeModified
	}
}

// ReloadFunc receives the new contents of the watched file.
type ReloadFunc func(content string)

// ExampleWatcher watches a single file and calls a ReloadFunc with its
// contents once at start and again after each burst of changes settles.
//
// The parent directory is watched rather than the file: editors commonly
// save by writing a temporary file and renaming it over the original, which
// drops a watch placed on the file itself.
type ExampleWatcher struct {
	path      string
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	reload    ReloadFunc
	logger    logging.Logger
	maxBytes  int64
}

// New creates a watcher for path. maxBytes bounds the file size that will be
// loaded; zero means no limit.
func New(path string, maxBytes int64, reload ReloadFunc, logger logging.Logger) (*ExampleWatcher, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	return &ExampleWatcher{
		path:      abs,
		watcher:   fsw,
		debouncer: NewDebouncer(100 * time.Millisecond),
		reload:    reload,
		logger:    logger.WithComponent("watcher"),
		maxBytes:  maxBytes,
	}, nil
}

// Load reads the file and hands it to the ReloadFunc.
func (w *ExampleWatcher) Load(ctx context.Context) error {
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	if w.maxBytes > 0 && info.Size() > w.maxBytes {
		return fmt.Errorf("%s is %d bytes, limit is %d", w.path, info.Size(), w.maxBytes)
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}

	w.reload(string(data))
	w.logger.Info(ctx, "example loaded", "path", w.path, "bytes", len(data))

	return nil
}

// Start loads the file and then watches it until ctx is done. A failing
// initial load is returned; later failures are logged and the previous
// example stays in place.
func (w *ExampleWatcher) Start(ctx context.Context) error {
	if err := w.Load(ctx); err != nil {
		return err
	}

	go w.debouncer.Run(ctx, func(events []ChangeEvent) {
		for _, e := range events {
			w.logger.Debug(ctx, "example changed", "event", e.Type.String())
		}
		if err := w.Load(ctx); err != nil {
			w.logger.Warn(ctx, err, "keeping previous example")
		}
	})
	go w.watchLoop(ctx)

	return nil
}

// Stop releases the underlying watcher.
func (w *ExampleWatcher) Stop() error {
	w.debouncer.Stop()
	return w.watcher.Close()
}

func (w *ExampleWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			w.debouncer.Add(ChangeEvent{Type: eventTypeOf(event.Op), Path: event.Name})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, err, "file watcher error")
		}
	}
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type EventType
	Path string
}

// Debouncer groups rapid file changes together
type Debouncer struct {
	delay   time.Duration
	output  chan []ChangeEvent
	timer   *time.Timer
	pending []ChangeEvent
	mutex   sync.Mutex
}

// NewDebouncer creates a debouncer that waits delay after the last event.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:  delay,
		output: make(chan []ChangeEvent, 10),
	}
}

// Add records an event and restarts the quiet period.
func (d *Debouncer) Add(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

// Run delivers batches to fn until ctx is done.
func (d *Debouncer) Run(ctx context.Context, fn func([]ChangeEvent)) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-d.output:
			fn(events)
		}
	}
}

// Stop cancels a pending flush.
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.pending) == 0 {
		return
	}

	events := make([]ChangeEvent, len(d.pending))
	copy(events, d.pending)

	select {
	case d.output <- events:
	default:
		// Channel full, a reload is already queued.
	}

	d.pending = d.pending[:0]
}
