// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Mend.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies Mend errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeLLMError indicates a model provider call failed.
	CodeLLMError ErrorCode = "LLM_ERROR"

	// CodeParseError indicates model output could not be parsed.
	CodeParseError ErrorCode = "PARSE_ERROR"

	// CodeMemoryError indicates an experience memory error.
	CodeMemoryError ErrorCode = "MEMORY_ERROR"

	// CodeToolFailure indicates an MCP tool execution failed.
	CodeToolFailure ErrorCode = "TOOL_FAILURE"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeRateLimit indicates rate limiting was triggered.
	CodeRateLimit ErrorCode = "RATE_LIMITED"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"
)

// MendError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type MendError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
	StatusCode  int // For HTTP responses
}

// Error implements the error interface.
func (e *MendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *MendError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *MendError) MarshalJSON() ([]byte, error) {
	type Alias MendError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new MendError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *MendError {
	return &MendError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		StatusCode: codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *MendError) WithContext(key string, value interface{}) *MendError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *MendError) WithRecoverable(recoverable bool) *MendError {
	e.Recoverable = recoverable
	return e
}

// AsMendError attempts to convert an error to a MendError.
// Returns the error as MendError if it is one, or wraps it otherwise.
func AsMendError(err error) *MendError {
	if err == nil {
		return nil
	}
	if me, ok := err.(*MendError); ok {
		return me
	}
	// Wrap unknown error as internal
	return New(CodeInternal, "wrapped error", err)
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *MendError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return 404
	case CodeInvalidInput:
		return 400
	case CodeTimeout:
		return 408
	case CodeRateLimit:
		return 429
	default:
		return 500
	}
}
