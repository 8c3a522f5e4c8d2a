package geostream

import (
	"errors"
	"fmt"
)

var (
	// ErrReadOnly is returned for write attempts against the query
	// surface. The store mutates only through its ingestion loop.
	ErrReadOnly = errors.New("store is read-only: features arrive via the feed")

	// ErrClosed is returned when using a store after Close.
	ErrClosed = errors.New("store is closed")

	// ErrNilSource is returned by Open when no feed source is given.
	ErrNilSource = errors.New("source must not be nil")
)

// ErrInvalidTTL indicates a non-positive cache TTL at open time.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidTTL struct {
	TTL   string
	cause error
}

func (e *ErrInvalidTTL) Error() string {
	return fmt.Sprintf("invalid cache ttl: %s", e.TTL)
}

func (e *ErrInvalidTTL) Unwrap() error { return e.cause }
