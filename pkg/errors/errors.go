// Package errors defines the application error type used across the
// reconciliation core, with categories and codes that map to CLI exit codes.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Category groups errors by the subsystem that produced them.
type Category string

const (
	CategoryInput          Category = "input"
	CategoryParse          Category = "parse"
	CategoryConfiguration  Category = "configuration"
	CategoryCapability     Category = "capability"
	CategoryReconciliation Category = "reconciliation"
	CategoryInternal       Category = "internal"
)

// Code identifies a specific failure within a category.
type Code string

const (
	// Input contract violations
	CodeMissingField Code = "missing_field"
	CodeDuplicateID  Code = "duplicate_id"
	CodeInvalidDate  Code = "invalid_date"
	CodeEmptySet     Code = "empty_set"

	// Parse errors
	CodeInvalidFormat Code = "invalid_format"
	CodeInvalidAmount Code = "invalid_amount"
	CodeMissingColumn Code = "missing_column"

	// Configuration errors
	CodeInvalidConfig Code = "invalid_config"

	// Capability errors
	CodeUnavailable Code = "capability_unavailable"
	CodeTimeout     Code = "capability_timeout"
	CodeBadResponse Code = "capability_bad_response"

	// Reconciliation errors
	CodeInvariantViolation Code = "invariant_violation"
	CodeProcessingError    Code = "processing_error"

	// Internal errors
	CodeUnexpected Code = "unexpected_error"
)

// Error is the base error type. It carries a category, a code, an optional
// suggestion shown to operators, free-form context, and the wrapped cause.
type Error struct {
	Category   Category
	Code       Code
	Message    string
	Suggestion string
	Context    map[string]interface{}
	Cause      error
	stack      errors.StackTrace
}

func (e *Error) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// StackTrace returns the stack captured at construction.
func (e *Error) StackTrace() errors.StackTrace {
	return e.stack
}

// ExitCode maps the error category to a CLI exit code.
func (e *Error) ExitCode() int {
	switch e.Category {
	case CategoryInput, CategoryParse:
		return 2
	case CategoryConfiguration:
		return 3
	case CategoryCapability:
		return 4
	case CategoryReconciliation, CategoryInternal:
		return 5
	default:
		return 1
	}
}

// WithSuggestion attaches an operator-facing hint.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// WithContext attaches a key-value pair of diagnostic context.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func capture() errors.StackTrace {
	return errors.New("").(stackTracer).StackTrace()
}

// New creates an Error with a fresh stack trace.
func New(category Category, code Code, message string) *Error {
	return &Error{
		Category: category,
		Code:     code,
		Message:  message,
		stack:    capture(),
	}
}

// Newf creates an Error with a formatted message.
func Newf(category Category, code Code, format string, args ...interface{}) *Error {
	return New(category, code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error; returns nil when err is nil.
func Wrap(err error, category Category, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    err,
		stack:    capture(),
	}
}

// InputError reports a violated input contract on a transaction field.
// The core fails fast on these rather than substituting defaults, since a
// silently defaulted amount or date corrupts the gap arithmetic downstream.
func InputError(code Code, field string, txID string) *Error {
	var message, suggestion string
	switch code {
	case CodeMissingField:
		message = fmt.Sprintf("transaction %s: required field %q is missing or empty", txID, field)
		suggestion = "provide a value for this field before reconciling"
	case CodeDuplicateID:
		message = fmt.Sprintf("transaction id %s appears more than once in the input set", txID)
		suggestion = "deduplicate the input before reconciling"
	case CodeInvalidDate:
		message = fmt.Sprintf("transaction %s: field %q holds an invalid date", txID, field)
		suggestion = "normalize dates before reconciling"
	default:
		message = fmt.Sprintf("transaction %s: invalid field %q", txID, field)
		suggestion = "check the input transaction set"
	}
	return New(CategoryInput, code, message).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("transaction_id", txID)
}

// ParseError reports a malformed record in a source file.
func ParseError(code Code, file string, line int, detail string, err error) *Error {
	message := fmt.Sprintf("parse error in %s at line %d: %s", file, line, detail)
	var result *Error
	if err != nil {
		result = Wrap(err, CategoryParse, code, message)
	} else {
		result = New(CategoryParse, code, message)
	}
	return result.
		WithContext("file", file).
		WithContext("line", line)
}

// ConfigurationError reports an invalid setting value.
func ConfigurationError(setting string, value interface{}, err error) *Error {
	message := fmt.Sprintf("invalid configuration for %q: %v", setting, value)
	var result *Error
	if err != nil {
		result = Wrap(err, CategoryConfiguration, CodeInvalidConfig, message)
	} else {
		result = New(CategoryConfiguration, CodeInvalidConfig, message)
	}
	return result.
		WithSuggestion("check the configuration documentation for valid values").
		WithContext("setting", setting)
}

// CapabilityError reports a failed or unavailable external capability call.
// Callers recover from these with the deterministic fallback; they are never
// fatal to a reconciliation run.
func CapabilityError(code Code, operation string, err error) *Error {
	var message string
	switch code {
	case CodeUnavailable:
		message = fmt.Sprintf("capability unavailable for %s", operation)
	case CodeTimeout:
		message = fmt.Sprintf("capability call timed out during %s", operation)
	case CodeBadResponse:
		message = fmt.Sprintf("capability returned an unusable response during %s", operation)
	default:
		message = fmt.Sprintf("capability error during %s", operation)
	}
	var result *Error
	if err != nil {
		result = Wrap(err, CategoryCapability, code, message)
	} else {
		result = New(CategoryCapability, code, message)
	}
	return result.WithContext("operation", operation)
}

// ReconciliationError reports a failure inside the matching pipeline.
func ReconciliationError(code Code, operation string, err error) *Error {
	message := fmt.Sprintf("reconciliation error during %s", operation)
	var result *Error
	if err != nil {
		result = Wrap(err, CategoryReconciliation, code, message)
	} else {
		result = New(CategoryReconciliation, code, message)
	}
	return result.WithContext("operation", operation)
}

// Is checks whether err carries the given category and code.
func Is(err error, category Category, code Code) bool {
	e, ok := As(err)
	return ok && e.Category == category && e.Code == code
}

// As extracts an *Error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
