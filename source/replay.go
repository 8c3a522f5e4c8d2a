package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/time/rate"

	"github.com/geostreamdb/geostream/model"
)

// maxLineBytes bounds a single NDJSON feature document.
const maxLineBytes = 4 << 20

// Replay reads a newline-delimited GeoJSON feed file, one feature per line.
// Files ending in .gz are decompressed transparently. Records can be paced
// with a rate limiter and the file can be replayed in a loop.
//
// Replay implements io.Closer; the store closes it on shutdown.
type Replay struct {
	path    string
	limiter *rate.Limiter
	loop    bool

	file    *os.File
	gz      *gzip.Reader
	scanner *bufio.Scanner
}

// ReplayOption configures a Replay source.
type ReplayOption func(*Replay)

// WithRate paces the feed at most n features per second.
func WithRate(n float64) ReplayOption {
	return func(r *Replay) {
		if n > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(n), 1)
		}
	}
}

// WithLoop restarts the file from the beginning when it is exhausted
// instead of idling.
func WithLoop() ReplayOption {
	return func(r *Replay) {
		r.loop = true
	}
}

// NewReplay creates a replay source over path.
func NewReplay(path string, opts ...ReplayOption) *Replay {
	r := &Replay{path: path}
	for _, fn := range opts {
		fn(r)
	}
	return r
}

// Init implements Source.
func (r *Replay) Init(ctx context.Context) error {
	return r.open()
}

// Next implements Source. Decode errors for a single line are returned to
// the caller; the ingestion loop logs them and keeps going.
func (r *Replay) Next(ctx context.Context) (*model.Feature, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return nil, fmt.Errorf("replay: read feed: %w", err)
			}
			if r.loop {
				r.Close()
				if err := r.open(); err != nil {
					return nil, err
				}
				continue
			}
			// Exhausted; park until shutdown.
			<-ctx.Done()
			return nil, ctx.Err()
		}

		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		return decodeFeature([]byte(line))
	}
}

func (r *Replay) open() error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("replay: open feed: %w", err)
	}

	var in io.Reader = f
	var gz *gzip.Reader
	if strings.HasSuffix(r.path, ".gz") {
		gz, err = gzip.NewReader(f)
		if err != nil {
			f.Close()
			return fmt.Errorf("replay: open gzip feed: %w", err)
		}
		in = gz
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	r.file = f
	r.gz = gz
	r.scanner = sc
	return nil
}

// Close releases the underlying file.
func (r *Replay) Close() error {
	if r.gz != nil {
		r.gz.Close()
		r.gz = nil
	}
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}
