// Package domain defines the error taxonomy shared by the retrieval and answer pipeline.
package domain

import (
	"errors"
	"fmt"
)

// ErrorType classifies a DomainError.
type ErrorType string

const (
	// ErrorTypeConfiguration marks a provider that is missing or uncredentialed.
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeUpstream marks a failed or malformed provider/data store call.
	ErrorTypeUpstream ErrorType = "upstream"
	// ErrorTypeValidation marks bad input or a malformed intermediate value.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeStream marks a generation failure after partial output was emitted.
	ErrorTypeStream ErrorType = "stream"
)

// DomainError carries a type, a message and an optional cause.
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a DomainError.
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{Type: errType, Message: message, Err: err}
}

func ConfigurationError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfiguration, message, err)
}

func UpstreamError(message string, err error) *DomainError {
	return NewError(ErrorTypeUpstream, message, err)
}

func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func StreamError(message string, err error) *DomainError {
	return NewError(ErrorTypeStream, message, err)
}

// IsType reports whether any error in err's chain is a DomainError of type t.
func IsType(err error, t ErrorType) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type == t
	}
	return false
}

// TypeOf returns the type of the first DomainError in err's chain, or "" if there is none.
func TypeOf(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}
