package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
	// Kind is the sentinel classifying the failure (ErrAuthentication, ...), optional.
	Kind error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// Job failure codes. REPORT_WRITE_ERROR is kept apart from the data-collection codes so a
// caller can tell "collection worked, output failed" from "collection failed".
const (
	CodeAuthentication = "AUTHENTICATION_ERROR"
	CodeDiscovery      = "DISCOVERY_ERROR"
	CodeNoMatch        = "NO_MATCH_ERROR"
	CodeNoWorkItems    = "NO_WORK_ITEMS_ERROR"
	CodeNavigation     = "NAVIGATION_ERROR"
	CodeReportWrite    = "REPORT_WRITE_ERROR"
	CodeCancelled      = "CANCELLED"
	CodeInvalidInput   = "INVALID_INPUT"
	CodeConflict       = "CONFLICT"
	CodeNotFound       = "NOT_FOUND"
	CodeInternal       = "INTERNAL_ERROR"
)

// Common application errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrAuthentication = errors.New("authentication failed")
	ErrDiscovery      = errors.New("taxonomy discovery failed")
	ErrNoMatch        = errors.New("no requested language matched")
	ErrNoWorkItems    = errors.New("no work items after level filtering")
	ErrNavigation     = errors.New("course listing failed")
	ErrReportWrite    = errors.New("report write failed")
	ErrCancelled      = errors.New("job cancelled")
	ErrConflict       = errors.New("conflicting state")
)

var codeBySentinel = []struct {
	err  error
	code string
}{
	{ErrAuthentication, CodeAuthentication},
	{ErrDiscovery, CodeDiscovery},
	{ErrNoMatch, CodeNoMatch},
	{ErrNoWorkItems, CodeNoWorkItems},
	{ErrNavigation, CodeNavigation},
	{ErrReportWrite, CodeReportWrite},
	{ErrCancelled, CodeCancelled},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrConflict, CodeConflict},
	{ErrNotFound, CodeNotFound},
}

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// JobError builds an AppError whose cause chain includes the sentinel kind, so both
// errors.Is(err, ErrAuthentication) and ErrorCode(err) work on the result.
func JobError(kind error, message string, cause error) *AppError {
	code := CodeInternal
	for _, c := range codeBySentinel {
		if kind == c.err {
			code = c.code
			break
		}
	}
	e := NewAppError(code, message, cause)
	e.Kind = kind
	return e
}

// ErrorCode returns the stable code for err, INTERNAL_ERROR when none is attached.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var app *AppError
	if errors.As(err, &app) && app.Code != "" {
		return app.Code
	}
	for _, c := range codeBySentinel {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
