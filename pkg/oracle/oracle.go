// Package oracle asks a search endpoint whether a candidate path matches
// anything on the remote side.
//
// The endpoint never answers the question directly. A response body that
// contains the "not found" sentinel means no match; any other successful
// response means a match. Bodies are scanned as they stream in and never
// buffered whole.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// DefaultSentinel is the body text the endpoint sends when nothing matched
const DefaultSentinel = "No images found."

// Outcome is the answer to a single query
type Outcome int

const (
	// Failed means no answer could be obtained; it says nothing about existence
	Failed Outcome = iota
	Found
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case NotFound:
		return "not found"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Result carries an outcome and, for Failed, the reason
type Result struct {
	Outcome Outcome
	Err     error
}

func (r Result) Found() bool {
	return r.Outcome == Found
}

// Oracle answers existence queries for candidate strings
type Oracle interface {
	Query(ctx context.Context, candidate string) Result
}

// Func adapts a plain function to the Oracle interface
type Func func(ctx context.Context, candidate string) Result

func (f Func) Query(ctx context.Context, candidate string) Result {
	return f(ctx, candidate)
}

var ErrUnexpectedStatus = errors.New("unexpected response status")

// StatusError reports a response whose status means the body cannot be trusted
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrUnexpectedStatus, e.Code, http.StatusText(e.Code))
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// Temporary reports whether repeating the request might succeed
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}
