package main

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures crossing component boundaries
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuth
	KindUpstreamUnavailable
	KindRateLimited
	KindCacheUnavailable
	KindNoContent
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindRateLimited:
		return "rate_limited"
	case KindCacheUnavailable:
		return "cache_unavailable"
	case KindNoContent:
		return "no_content"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Reason is safe to show to users, Err is not.
type Error struct {
	Kind   ErrorKind
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, op, reason string, err error) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason, Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ReasonOf returns the user-facing reason carried by err, or "" if none
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}
