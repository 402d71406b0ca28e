// Package collector fetches raw demand samples from external sources. Every
// source implements the Collector capability; Paced wraps one with pacing,
// retry, and circuit breaking, and Runner orchestrates a full per-IP pass.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a fetch failure.
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindRateLimit ErrorKind = "rate_limit"
	KindTimeout   ErrorKind = "timeout"
	KindEmpty     ErrorKind = "empty"
	KindNetwork   ErrorKind = "network"
	KindUnknown   ErrorKind = "unknown"
)

// Retryable reports whether a failure of this kind is worth another attempt.
// Auth failures are terminal until credentials change.
func (k ErrorKind) Retryable() bool {
	return k != KindAuth
}

// FetchError is a classified collection failure.
type FetchError struct {
	Kind     ErrorKind
	HTTPCode int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err with a kind and optional HTTP status.
func NewFetchError(kind ErrorKind, httpCode int, err error) *FetchError {
	return &FetchError{Kind: kind, HTTPCode: httpCode, Err: err}
}

// Classify extracts the error kind from err, mapping context expiry and
// cancellation to timeout and anything unclassified to unknown.
func Classify(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindUnknown
}

// HTTPCode extracts the HTTP status carried by err, if any.
func HTTPCode(err error) *int {
	var fe *FetchError
	if errors.As(err, &fe) && fe.HTTPCode != 0 {
		code := fe.HTTPCode
		return &code
	}
	return nil
}

// Point is one dated interest reading in [0,100].
type Point struct {
	Date  time.Time
	Value int
}

// FetchRequest identifies one keyword fetch.
type FetchRequest struct {
	Keyword   string
	Geo       string
	Timeframe string
}

// FetchResult is a successful fetch.
type FetchResult struct {
	Points   []Point
	HTTPCode int
}

// Collector is the capability every source implements. Fetch returns a
// *FetchError on failure.
type Collector interface {
	Key() string
	Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error)
}
