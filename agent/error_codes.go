package agent

import (
	"fmt"
)

// Error codes for programmatic error handling, grouped by the five
// categories this runtime distinguishes: validation, transient I/O,
// plan-validation, tool-execution, and fatal.
const (
	// Validation errors - malformed input to a public operation.
	ErrCodeValidation        = "VALIDATION_FAILED"
	ErrCodeTaskNotFound      = "TASK_NOT_FOUND"
	ErrCodeInvalidTransition = "INVALID_STATUS_TRANSITION"
	ErrCodeInvalidConfig     = "INVALID_CONFIGURATION"

	// Transient I/O errors - retryable failures talking to storage,
	// the notification channel, or the LLM provider.
	ErrCodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	ErrCodeNotifyUnavailable  = "NOTIFY_UNAVAILABLE"
	ErrCodeLLMRateLimited     = "LLM_RATE_LIMITED"
	ErrCodeLLMTimeout         = "LLM_TIMEOUT"
	ErrCodeMaxRetriesExceeded = "MAX_RETRIES_EXCEEDED"

	// Plan-validation errors - the planner produced a plan that
	// fails validation against the tool registry or its own schema.
	ErrCodePlanEmpty           = "PLAN_EMPTY"
	ErrCodePlanMalformed       = "PLAN_MALFORMED"
	ErrCodePlanUnknownTool     = "PLAN_UNKNOWN_TOOL"
	ErrCodePlanCyclicDependency = "PLAN_CYCLIC_DEPENDENCY"

	// Tool-execution errors - a registered tool failed or misbehaved.
	ErrCodeToolNotFound        = "TOOL_NOT_FOUND"
	ErrCodeMethodNotFound      = "METHOD_NOT_FOUND"
	ErrCodeToolExecutionFailed = "TOOL_EXECUTION_FAILED"
	ErrCodeToolPanicked        = "TOOL_PANICKED"
	ErrCodeToolTimeout         = "TOOL_TIMEOUT"

	// Fatal errors - unrecoverable within the current operation.
	ErrCodeFatal             = "FATAL"
	ErrCodeNoResponseChoices = "NO_RESPONSE_CHOICES"
)

// CodedError provides error codes for programmatic handling
// Simple, lightweight struct - no over-engineering
type CodedError struct {
	Code    string // Error code (e.g., "LLM_RATE_LIMITED")
	Message string // Human-readable error message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface
func (e *CodedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *CodedError) Unwrap() error {
	return e.Err
}

// NewCodedError creates a new error with code and message
func NewCodedError(code, message string, err error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewValidationError creates a validation error (malformed request input).
func NewValidationError(message string, err error) *CodedError {
	return NewCodedError(ErrCodeValidation, message, err)
}

// NewTaskNotFoundError creates a task-not-found error.
func NewTaskNotFoundError(taskID string) *CodedError {
	return NewCodedError(ErrCodeTaskNotFound, fmt.Sprintf("task %q not found", taskID), nil)
}

// NewStorageError creates a transient storage error.
func NewStorageError(operation string, err error) *CodedError {
	return NewCodedError(ErrCodeStorageUnavailable, fmt.Sprintf("storage operation %q failed", operation), err)
}

// NewLLMTimeoutError creates a transient LLM timeout error.
func NewLLMTimeoutError(err error) *CodedError {
	return NewCodedError(ErrCodeLLMTimeout, "LLM request timed out", err)
}

// NewLLMRateLimitError creates a transient LLM rate-limit error.
func NewLLMRateLimitError(err error) *CodedError {
	return NewCodedError(ErrCodeLLMRateLimited, "LLM rate limit exceeded", err)
}

// NewPlanEmptyError creates a plan-validation error for an empty decomposition.
func NewPlanEmptyError() *CodedError {
	return NewCodedError(ErrCodePlanEmpty, "No subtasks generated.", nil)
}

// NewPlanMalformedError creates a plan-validation error for a response that
// failed JSON-schema validation.
func NewPlanMalformedError(err error) *CodedError {
	return NewCodedError(ErrCodePlanMalformed, "plan response failed schema validation", err)
}

// NewToolNotFoundError creates a tool-execution error for an unknown tool id.
func NewToolNotFoundError(toolID string) *CodedError {
	return NewCodedError(ErrCodeToolNotFound, fmt.Sprintf("Tool with ID '%s' not found", toolID), nil)
}

// NewMethodNotFoundError creates a tool-execution error for an unknown method.
func NewMethodNotFoundError(toolID, method string) *CodedError {
	return NewCodedError(ErrCodeMethodNotFound, fmt.Sprintf("Method '%s' not found on tool '%s'", method, toolID), nil)
}

// NewToolError creates a tool execution error
func NewToolError(toolName string, err error) *CodedError {
	return NewCodedError(
		ErrCodeToolExecutionFailed,
		fmt.Sprintf("Tool '%s' execution failed", toolName),
		err,
	)
}

// NewToolPanicError creates a tool panic error
func NewToolPanicError(toolName string, panicValue interface{}) *CodedError {
	return NewCodedError(
		ErrCodeToolPanicked,
		fmt.Sprintf("Tool '%s' panicked: %v", toolName, panicValue),
		nil,
	)
}

// Error checking helpers - check if error has specific code

// IsCodedError checks if error is a CodedError
func IsCodedError(err error) bool {
	_, ok := err.(*CodedError)
	return ok
}

// HasErrorCode checks if error has specific error code
func HasErrorCode(err error, code string) bool {
	if codedErr, ok := err.(*CodedError); ok {
		return codedErr.Code == code
	}
	return false
}

// GetErrorCode extracts error code from error, returns empty string if not a CodedError
func GetErrorCode(err error) string {
	if codedErr, ok := err.(*CodedError); ok {
		return codedErr.Code
	}
	return ""
}

// IsRetryable checks if error is retryable based on error code. Only the
// transient I/O category is retryable; validation, plan-validation,
// tool-execution, and fatal errors are not.
func IsRetryable(err error) bool {
	switch GetErrorCode(err) {
	case ErrCodeStorageUnavailable,
		ErrCodeNotifyUnavailable,
		ErrCodeLLMRateLimited,
		ErrCodeLLMTimeout:
		return true
	default:
		return false
	}
}

// LogFields converts CodedError to structured log fields.
// This enables seamless integration with structured logging libraries.
//
// Example:
//
//	if codedErr, ok := err.(*agent.CodedError); ok {
//	    logger.Error(ctx, "Request failed", codedErr.LogFields()...)
//	}
func (e *CodedError) LogFields() []Field {
	fields := []Field{
		{Key: "error_code", Value: e.Code},
		{Key: "error_message", Value: e.Message},
		{Key: "retryable", Value: IsRetryable(e)},
	}

	// Add underlying error if present
	if e.Err != nil {
		fields = append(fields, Field{Key: "underlying_error", Value: e.Err.Error()})
	}

	return fields
}
