package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/geostreamdb/geostream/model"
)

// Watch tails a directory of feed files via fsnotify. Lines appended to
// .ndjson files are decoded as single GeoJSON features; .geojson files are
// decoded as FeatureCollections once per file. Decoded features are queued
// on a bounded buffer; when a bursty producer outruns the consumer, excess
// features are dropped and counted rather than wedging the watcher.
type Watch struct {
	dir    string
	buffer int
	log    *slog.Logger

	watcher *fsnotify.Watcher
	out     chan *model.Feature
	stopCh  chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	dropped   atomic.Int64

	// per-file read offsets for ndjson tailing; only the run goroutine
	// touches these.
	offsets     map[string]int64
	collections map[string]bool
}

// WatchOption configures a Watch source.
type WatchOption func(*Watch)

// WithBuffer sets the queued-feature buffer size (default 1024).
func WithBuffer(n int) WatchOption {
	return func(w *Watch) {
		if n > 0 {
			w.buffer = n
		}
	}
}

// WithWatchLogger sets the logger used for per-file warnings.
func WithWatchLogger(log *slog.Logger) WatchOption {
	return func(w *Watch) {
		if log != nil {
			w.log = log
		}
	}
}

// NewWatch creates a directory-tailing source.
func NewWatch(dir string, opts ...WatchOption) *Watch {
	w := &Watch{
		dir:         dir,
		buffer:      1024,
		log:         slog.Default(),
		offsets:     make(map[string]int64),
		collections: make(map[string]bool),
	}
	for _, fn := range opts {
		fn(w)
	}
	return w
}

// Init implements Source. It ingests files already present in the
// directory, then starts watching for creations and appends.
func (w *Watch) Init(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch: watch %s: %w", w.dir, err)
	}

	w.watcher = watcher
	w.out = make(chan *model.Feature, w.buffer)
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})

	// Catch up on pre-existing files before live events arrive.
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("watch: scan %s: %w", w.dir, err)
	}

	go w.run(entries)

	return nil
}

// Next implements Source.
func (w *Watch) Next(ctx context.Context) (*model.Feature, error) {
	select {
	case f := <-w.out:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dropped reports how many decoded features were discarded because the
// buffer was full.
func (w *Watch) Dropped() int64 {
	return w.dropped.Load()
}

// Close stops the watcher. Safe to call more than once.
func (w *Watch) Close() error {
	var err error
	w.closeOnce.Do(func() {
		if w.watcher == nil {
			return
		}
		close(w.stopCh)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *Watch) run(initial []os.DirEntry) {
	defer close(w.done)

	for _, entry := range initial {
		if !entry.IsDir() {
			w.readFile(filepath.Join(w.dir, entry.Name()))
		}
	}

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.readFile(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("feed watcher error", "dir", w.dir, "error", err)
		}
	}
}

func (w *Watch) readFile(path string) {
	switch {
	case strings.HasSuffix(path, ".ndjson"):
		w.tailNDJSON(path)
	case strings.HasSuffix(path, ".geojson"):
		w.readCollection(path)
	}
}

// tailNDJSON reads complete lines appended since the last offset.
func (w *Watch) tailNDJSON(path string) {
	f, err := os.Open(path)
	if err != nil {
		w.log.Warn("feed file open failed", "path", path, "error", err)
		return
	}
	defer f.Close()

	offset := w.offsets[path]
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		w.log.Warn("feed file seek failed", "path", path, "error", err)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		w.log.Warn("feed file read failed", "path", path, "error", err)
		return
	}

	consumed := int64(0)
	for {
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			// Partial trailing line; wait for the rest.
			break
		}
		line := strings.TrimSpace(string(data[:nl]))
		data = data[nl+1:]
		consumed += int64(nl + 1)

		if line == "" {
			continue
		}
		feature, err := decodeFeature([]byte(line))
		if err != nil {
			w.log.Warn("feed record rejected", "path", path, "error", err)
			continue
		}
		w.emit(feature)
	}
	w.offsets[path] = offset + consumed
}

// readCollection ingests a FeatureCollection file once. Rewrites of the
// same path are ignored to avoid duplicate delivery.
func (w *Watch) readCollection(path string) {
	if w.collections[path] {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		w.log.Warn("feed file read failed", "path", path, "error", err)
		return
	}
	features, err := decodeCollection(data)
	if err != nil {
		// Likely a partially written file; a later Write event retries.
		w.log.Debug("feed collection not ready", "path", path, "error", err)
		return
	}
	w.collections[path] = true
	for _, f := range features {
		w.emit(f)
	}
}

func (w *Watch) emit(f *model.Feature) {
	select {
	case w.out <- f:
	default:
		n := w.dropped.Add(1)
		w.log.Warn("feed buffer full, dropping feature", "id", f.ID, "dropped_total", n)
	}
}
