// Package orchestrator implements C9, the conversation orchestrator: the
// append/generate/execute-tools/append loop that drives one session's turn
// to completion.
package orchestrator

import "fmt"

// Code classifies an orchestrator failure the way it is surfaced to
// callers, matching the error codes spec.md §6 requires at the boundary.
type Code string

const (
	CodeSessionNotFound       Code = "SESSION_NOT_FOUND"
	CodeProviderNotConfigured Code = "PROVIDER_NOT_CONFIGURED"
	CodeModelNotFound         Code = "MODEL_NOT_FOUND"
	CodeNetwork               Code = "NETWORK_ERROR"
	CodeTimeout               Code = "TIMEOUT"
	CodeCancelled             Code = "CANCELLED"
	CodeIterationLimit        Code = "ITERATION_LIMIT"
	CodeToolExecution         Code = "TOOL_EXECUTION_ERROR"
	CodeInvalidInput          Code = "INVALID_INPUT"
)

// Error is an orchestrator failure tagged with the code callers switch on,
// wrapping the underlying cause when one exists.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("orchestrator: %s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("orchestrator: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }
