// Package errors defines the stable error vocabulary shared by every
// component of the runtime. Tool and transport errors carry one of the
// codes below so callers — including the LLM, via a structured tool
// result — can branch on failure kind without string matching.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a stable failure category.
type ErrorCode string

const (
	CodeInvalidInput   ErrorCode = "INVALID_INPUT"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeAlreadyExists  ErrorCode = "ALREADY_EXISTS"
	CodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	CodeForbidden      ErrorCode = "FORBIDDEN"
	CodeInternal       ErrorCode = "INTERNAL_ERROR"
	CodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"

	// Runtime error codes (spec §7).
	CodeArgs       ErrorCode = "E_ARGS"        // caller input violates a contract
	CodeTool       ErrorCode = "E_TOOL"        // unknown or disabled canonical tool
	CodePath       ErrorCode = "E_PATH"        // filesystem guard rejection
	CodeCmd        ErrorCode = "E_CMD"         // command whitelist/strict rejection
	CodeBusy       ErrorCode = "E_BUSY"        // concurrency gate
	CodeTimeout    ErrorCode = "E_TIMEOUT"     // bounded wait exceeded
	CodePatch      ErrorCode = "E_PATCH"       // patch apply failed
	CodeLease      ErrorCode = "E_LEASE"       // write without a valid lease
	CodeNoProvider ErrorCode = "E_NO_PROVIDER" // capability unresolved
	CodeHookBlock  ErrorCode = "E_HOOK_BLOCK"  // hook refused
)

// retryable is the default retry classification per code. Callers may
// override per call site (e.g. a specific E_TIMEOUT might not be retryable
// if it already consumed the retry budget).
var retryable = map[ErrorCode]bool{
	CodeBusy:          true,
	CodeTimeout:       true,
	CodeServiceUnavail: true,
}

// AppError is the application's canonical error type: a stable code, a
// human message, an optional wrapped cause, and — for tool-facing errors —
// a repair hint the LLM can act on.
type AppError struct {
	Code       ErrorCode
	Message    string
	Err        error
	Retryable  bool
	RepairHint string
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError for the given code, defaulting Retryable from
// the code's classification.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Retryable: retryable[code]}
}

// Wrap creates an AppError with a cause.
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Err: cause, Retryable: retryable[code]}
}

// WithHint attaches a repair hint and returns the same error for chaining.
func (e *AppError) WithHint(hint string) *AppError {
	e.RepairHint = hint
	return e
}

func NewInvalidInputError(message string) *AppError {
	return &AppError{Code: CodeInvalidInput, Message: message}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

func NewAlreadyExistsError(message string) *AppError {
	return &AppError{Code: CodeAlreadyExists, Message: message}
}

func NewInternalError(message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message}
}

func NewInternalErrorWithCause(message string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Err: cause}
}

func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeNotFound
	}
	return false
}

func IsInvalidInput(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeInvalidInput
	}
	return false
}

// Code extracts the ErrorCode from err, or "" if err is not an *AppError.
func Code(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsRetryable reports whether err should feed the retry circuit.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}
