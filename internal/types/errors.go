package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by cache lookups for an unknown identity.
	ErrNotFound = errors.New("content not found")
	// ErrQueueEmpty is returned by a non-blocking pop on an empty queue.
	ErrQueueEmpty = errors.New("lesson queue empty")
	// ErrQueueCapacityExceeded is returned by a non-blocking push at the ceiling.
	ErrQueueCapacityExceeded = errors.New("lesson queue at capacity")
	// ErrEmptyLesson is returned when no slides could be assembled.
	ErrEmptyLesson = errors.New("no slides could be assembled")
)

// FetchReason classifies a fetch failure.
type FetchReason string

const (
	ReasonNetwork     FetchReason = "network"
	ReasonHTTPStatus  FetchReason = "http_status"
	ReasonParse       FetchReason = "parse"
	ReasonNoResults   FetchReason = "no_results"
	ReasonTooSmall    FetchReason = "too_small"
	ReasonRobots      FetchReason = "robots"
	ReasonUnsupported FetchReason = "unsupported"
)

// FetchError is a network, HTTP or parse failure from the content fetcher.
// All fetch errors are retryable with topic-scoped backoff.
type FetchError struct {
	Stage  string // search, fetch, image, pdf, render
	URL    string
	Reason FetchReason
	Err    error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Stage, e.URL, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError builds a FetchError.
func NewFetchError(stage, url string, reason FetchReason, err error) *FetchError {
	return &FetchError{Stage: stage, URL: url, Reason: reason, Err: err}
}

// CacheIOError is a storage read or write failure. It is never swallowed.
type CacheIOError struct {
	Op  string
	Err error
}

func (e *CacheIOError) Error() string { return fmt.Sprintf("cache %s: %v", e.Op, e.Err) }

func (e *CacheIOError) Unwrap() error { return e.Err }

// IsCacheIOError reports whether err is or wraps a CacheIOError.
func IsCacheIOError(err error) bool {
	var ce *CacheIOError
	return errors.As(err, &ce)
}
