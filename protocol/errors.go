package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a bridge error so clients can distinguish bad input
// from tool failures from internal timeouts and decide whether to retry.
type ErrorKind string

const (
	KindDuplicateName ErrorKind = "duplicate_name"
	KindNotFound      ErrorKind = "not_found"
	KindCompile       ErrorKind = "compile_error"
	KindValidation    ErrorKind = "validation_error"
	KindExecution     ErrorKind = "execution_failure"
	KindTimeout       ErrorKind = "timeout"
	KindCancelled     ErrorKind = "cancelled"
	KindUnauthorized  ErrorKind = "unauthorized"
	KindInternal      ErrorKind = "internal"
)

// BridgeError is the structured error surfaced to clients. Every error
// response carries at minimum a kind and a human-readable message.
type BridgeError struct {
	Kind    ErrorKind   `json:"kind"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface for BridgeError.
func (e *BridgeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError creates a BridgeError with the given kind and message.
func NewError(kind ErrorKind, format string, args ...interface{}) *BridgeError {
	return &BridgeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithData attaches structured detail (e.g. the list of missing fields) to the error.
func (e *BridgeError) WithData(data interface{}) *BridgeError {
	e.Data = data
	return e
}

// KindOf extracts the ErrorKind from err, unwrapping as needed.
// Errors that are not BridgeErrors report KindInternal.
func KindOf(err error) ErrorKind {
	var be *BridgeError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// AsBridgeError coerces err into a BridgeError, wrapping foreign errors as internal.
func AsBridgeError(err error) *BridgeError {
	var be *BridgeError
	if errors.As(err, &be) {
		return be
	}
	return &BridgeError{Kind: KindInternal, Message: err.Error()}
}
