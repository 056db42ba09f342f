// Package watcher turns fsnotify events into debounced batches of changed
// source files.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/toolkit/internal/logging"
)

// FileWatcher watches directory trees for file changes with debouncing.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	filters   []FileFilter
	handlers  []ChangeHandler
	logger    logging.Logger
	mutex     sync.RWMutex
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

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

// FileFilter determines if a file should be watched
type FileFilter func(path string) bool

// ChangeHandler handles a debounced batch of change events.
type ChangeHandler func(ctx context.Context, events []ChangeEvent) error

// Debouncer groups rapid file changes together
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	timer   *time.Timer
	pending []ChangeEvent
	mutex   sync.Mutex
}

// NewDebouncer creates a debouncer that emits a batch once no event has
// arrived for delay.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		events:  make(chan ChangeEvent, 256),
		output:  make(chan []ChangeEvent, 16),
		pending: make([]ChangeEvent, 0),
	}
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(debounceDelay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &FileWatcher{
		watcher:   watcher,
		debouncer: NewDebouncer(debounceDelay),
		filters:   make([]FileFilter, 0),
		handlers:  make([]ChangeHandler, 0),
		logger:    logger.WithComponent("watcher"),
	}, nil
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddRecursive adds a directory and all subdirectories to watch. Hidden
// directories and node_modules are skipped.
func (fw *FileWatcher) AddRecursive(root string) error {
	cleanRoot := filepath.Clean(root)
	if strings.Contains(root, "..") {
		return fmt.Errorf("path contains directory traversal: %s", root)
	}

	return filepath.WalkDir(cleanRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != cleanRoot && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return fw.watcher.Add(path)
	})
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}

// Start starts the file watcher
func (fw *FileWatcher) Start(ctx context.Context) error {
	go fw.debouncer.start(ctx)
	go fw.processEvents(ctx)
	go fw.watchLoop(ctx)
	return nil
}

// Stop stops the file watcher and cleans up resources
func (fw *FileWatcher) Stop() error {
	fw.debouncer.stop()
	return fw.watcher.Close()
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	info, statErr := os.Stat(event.Name)

	// New directories are watched as they appear.
	if statErr == nil && info.IsDir() {
		if event.Op&fsnotify.Create == fsnotify.Create && !skipDir(info.Name()) {
			if err := fw.AddRecursive(event.Name); err != nil {
				fw.logger.Warn(ctx, err, "Failed to watch new directory", "path", event.Name)
			}
		}
		return
	}

	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(event.Name) {
			return
		}
	}

	var modTime time.Time
	var size int64
	if statErr == nil {
		modTime = info.ModTime()
		size = info.Size()
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventTypeCreated
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventTypeModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventTypeDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventTypeRenamed
	default:
		// Chmod alone does not change content.
		return
	}

	fw.debouncer.Add(ChangeEvent{
		Type:    eventType,
		Path:    event.Name,
		ModTime: modTime,
		Size:    size,
	})
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-fw.debouncer.output:
			fw.mutex.RLock()
			handlers := fw.handlers
			fw.mutex.RUnlock()

			for _, handler := range handlers {
				if err := handler(ctx, events); err != nil {
					fw.logger.Error(ctx, err, "File watcher handler error", "events", len(events))
				}
			}
		}
	}
}

// Add queues an event. Events are dropped when the queue is full.
func (d *Debouncer) Add(event ChangeEvent) {
	select {
	case d.events <- event:
	default:
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []ChangeEvent {
	return d.output
}

func (d *Debouncer) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.stop()
			return
		case event := <-d.events:
			d.addEvent(event)
		}
	}
}

func (d *Debouncer) stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

func (d *Debouncer) addEvent(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.pending) == 0 {
		return
	}

	select {
	case d.output <- Coalesce(d.pending):
	default:
	}

	d.pending = d.pending[:0]
}

// Coalesce keeps the last event per path and sorts the result by path.
func Coalesce(events []ChangeEvent) []ChangeEvent {
	latest := make(map[string]ChangeEvent, len(events))
	for _, event := range events {
		latest[event.Path] = event
	}

	out := make([]ChangeEvent, 0, len(latest))
	for _, event := range latest {
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Paths returns the paths of events in order.
func Paths(events []ChangeEvent) []string {
	paths := make([]string, len(events))
	for i, event := range events {
		paths[i] = event.Path
	}
	return paths
}

// SourceFilter accepts files that can affect a build.
func SourceFilter(path string) bool {
	switch filepath.Ext(path) {
	case ".scss", ".css", ".js", ".mjs", ".yaml", ".json", ".html",
		".png", ".jpg", ".gif", ".svg", ".ico", ".woff", ".woff2":
		return true
	}
	return false
}

// NoEditorFilter rejects editor swap and backup files.
func NoEditorFilter(path string) bool {
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".#") &&
		!strings.HasSuffix(base, "~") &&
		!strings.HasSuffix(base, ".swp") &&
		!strings.HasSuffix(base, ".tmp")
}

// NoTestFilter rejects script test files.
func NoTestFilter(path string) bool {
	return !strings.Contains(filepath.Base(path), ".test.")
}

// NoNodeModulesFilter rejects anything under node_modules.
func NoNodeModulesFilter(path string) bool {
	return !strings.Contains(filepath.ToSlash(path), "/node_modules/")
}
