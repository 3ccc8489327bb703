package fetch

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies failures at the fetch boundary.
type Kind int

const (
	KindUnknown Kind = iota
	KindSessionUnavailable
	KindBadCredentials
	KindTimeout
	KindNetwork
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindSessionUnavailable:
		return "session unavailable"
	case KindBadCredentials:
		return "bad credentials"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Operation names used in Error.Op; each timeout message names its operation.
const (
	OpSessionAcquisition = "session acquisition"
	OpLogin              = "login"
	OpDiscovery          = "taxonomy discovery"
	OpNavigation         = "navigation"
	OpBatchFetch         = "batch fetch"
	OpCourseFetch        = "course fetch"
)

// Error is the typed failure returned across the fetch boundary.
type Error struct {
	Kind Kind
	Op   string
	URL  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Kind == KindTimeout {
		msg += " timed out"
	} else {
		msg += " failed (" + e.Kind.String() + ")"
	}
	if e.URL != "" {
		msg += " for " + e.URL
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error, promoting deadline overruns to KindTimeout.
func NewError(kind Kind, op, url string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Op: op, URL: url, Err: err}
}

// KindOf returns the Kind of err, KindUnknown when err is not a *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}
