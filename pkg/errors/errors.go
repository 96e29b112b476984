// Package errors implements the DynamoDB-compatible exception taxonomy
// (spec §7) that every manager and the façade map internal failures onto.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// Code is one of the DynamoDB exception names the façade is allowed to surface.
type Code string

const (
	CodeValidation             Code = "ValidationException"
	CodeResourceInUse          Code = "ResourceInUseException"
	CodeResourceNotFound       Code = "ResourceNotFoundException"
	CodeConditionalCheckFailed Code = "ConditionalCheckFailedException"
	CodeTransactionCanceled    Code = "TransactionCanceledException"
	CodeExpiredIterator        Code = "ExpiredIteratorException"
	CodeTrimmedDataAccess      Code = "TrimmedDataAccessException"
	CodeProvisionedThroughput  Code = "ProvisionedThroughputExceededException"
	CodeInternal               Code = "InternalServerError"
	CodeRequestTimeout         Code = "RequestTimeoutException"
)

// DynamoError is the single error type every manager returns across its
// boundary. It carries the client-visible Code plus an optional cause chain
// for logs.
type DynamoError struct {
	Code       Code
	Message    string
	Details    map[string]interface{}
	Cause      error
	StackTrace string
}

func (e *DynamoError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DynamoError) Unwrap() error { return e.Cause }

// WithCause attaches an underlying error for logging/debugging.
func (e *DynamoError) WithCause(err error) *DynamoError {
	e.Cause = err
	return e
}

// WithDetails attaches structured context (e.g. per-leg transaction reasons).
func (e *DynamoError) WithDetails(details map[string]interface{}) *DynamoError {
	e.Details = details
	return e
}

func captureStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	stack := ""
	for {
		frame, more := frames.Next()
		stack += fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return stack
}

func newError(code Code, message string) *DynamoError {
	return &DynamoError{Code: code, Message: message, StackTrace: captureStackTrace()}
}

// NewValidationError reports malformed expressions, missing key attributes,
// illegal attribute types, or oversized items.
func NewValidationError(format string, args ...interface{}) *DynamoError {
	return newError(CodeValidation, fmt.Sprintf(format, args...))
}

// NewResourceInUseError reports CreateTable racing an existing table.
func NewResourceInUseError(tableName string) *DynamoError {
	return newError(CodeResourceInUse, fmt.Sprintf("table %q already exists", tableName))
}

// NewResourceNotFoundError reports an operation against an unknown table or stream.
func NewResourceNotFoundError(format string, args ...interface{}) *DynamoError {
	return newError(CodeResourceNotFound, fmt.Sprintf(format, args...))
}

// NewConditionalCheckFailedError reports a ConditionExpression rejecting a mutation.
func NewConditionalCheckFailedError() *DynamoError {
	return newError(CodeConditionalCheckFailed, "the conditional request failed")
}

// NewTransactionCanceledError reports one or more legs of a transaction failing.
// reasons is positional, one entry per leg ("None" for legs that did not fail).
func NewTransactionCanceledError(reasons []string) *DynamoError {
	return newError(CodeTransactionCanceled, "transaction cancelled, please refer cancellation reasons for specific reasons").
		WithDetails(map[string]interface{}{"CancellationReasons": reasons})
}

// NewExpiredIteratorError reports a shard iterator pointing before the trim horizon.
func NewExpiredIteratorError() *DynamoError {
	return newError(CodeExpiredIterator, "iterator expired or was trimmed")
}

// NewTrimmedDataAccessError reports GetRecords reaching past the trim horizon.
func NewTrimmedDataAccessError() *DynamoError {
	return newError(CodeTrimmedDataAccess, "requested data has been trimmed")
}

// NewInternalError folds unclassified failures, including cryptographic
// failures, which must never be surfaced as a recoverable condition.
func NewInternalError(format string, args ...interface{}) *DynamoError {
	return newError(CodeInternal, fmt.Sprintf(format, args...))
}

// NewRequestTimeoutError reports a deadline elapsing mid-request.
func NewRequestTimeoutError() *DynamoError {
	return newError(CodeRequestTimeout, "request timed out")
}

// Is reports whether err is a DynamoError with the given code.
func Is(err error, code Code) bool {
	var de *DynamoError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// As extracts a *DynamoError from the error chain.
func As(err error) (*DynamoError, bool) {
	var de *DynamoError
	ok := errors.As(err, &de)
	return de, ok
}

// Wrap folds a plain error into an InternalServerError. A DynamoError
// already in the chain keeps its Code and has message prefixed onto its
// Message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if de, ok := As(err); ok {
		de.Message = fmt.Sprintf("%s: %s", message, de.Message)
		return de
	}
	return NewInternalError(message).WithCause(err)
}
