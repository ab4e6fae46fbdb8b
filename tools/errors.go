package tools

import "fmt"

// ErrorCode distinguishes tool failure classes for downstream monitoring.
type ErrorCode string

const (
	CodeUnknownTool   ErrorCode = "unknown_tool"
	CodeValidation    ErrorCode = "validation_error"
	CodeOutputInvalid ErrorCode = "output_validation_error"
	CodeExecution     ErrorCode = "tool_execution_error"
	CodeTimeout       ErrorCode = "tool_timeout"
)

// ToolError wraps a tool failure with its class and the tool's name.
type ToolError struct {
	Code ErrorCode
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool '%s': %s: %v", e.Tool, e.Code, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// IsRetryableValidation reports whether the error is one the reasoning step
// can fix by correcting arguments.
func IsRetryableValidation(err error) bool {
	te, ok := err.(*ToolError)
	return ok && te.Code == CodeValidation
}
