package schemas

import "fmt"

// ErrorCode is a string type used for structured error reporting. Using a
// custom type ensures that only predefined constants can be used where an
// ErrorCode is expected.
type ErrorCode string

const (
	// -- Agent lifecycle errors --
	ErrCodeAlreadyInitialized ErrorCode = "ALREADY_INITIALIZED"
	ErrCodeNotInitialized     ErrorCode = "NOT_INITIALIZED"
	ErrCodeInvalidStatus      ErrorCode = "INVALID_STATUS_TRANSITION"
	ErrCodeExecutionFailed    ErrorCode = "EXECUTION_FAILED"

	// -- Operator errors --
	ErrCodeUnsupportedAction  ErrorCode = "UNSUPPORTED_ACTION"
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	ErrCodeCommandFailed      ErrorCode = "COMMAND_FAILED"
	ErrCodeCaptureUnsupported ErrorCode = "CAPTURE_UNSUPPORTED"
	ErrCodeElementNotFound    ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeNavigationError    ErrorCode = "NAVIGATION_ERROR"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"

	// -- Model errors --
	ErrCodeMissingCredential   ErrorCode = "MISSING_CREDENTIAL"
	ErrCodeMalformedImage      ErrorCode = "MALFORMED_IMAGE"
	ErrCodeInvalidInstruction  ErrorCode = "INVALID_INSTRUCTION"
	ErrCodeUnparseableResponse ErrorCode = "UNPARSEABLE_RESPONSE"
	ErrCodeHTTPStatus          ErrorCode = "HTTP_STATUS"
	ErrCodeNetwork             ErrorCode = "NETWORK"

	// -- Shared --
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
)

// AgentError reports a lifecycle or precondition violation in the agent
// itself. When an execute call aborts mid-run the already collected results
// are attached so the caller never loses partial progress.
type AgentError struct {
	Code           ErrorCode
	Message        string
	PartialResults []ActionResult
	Err            error
}

func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("agent: %s: %s", e.Code, e.Message)
}

func (e *AgentError) Unwrap() error { return e.Err }

// NewAgentError builds an AgentError without partial results.
func NewAgentError(code ErrorCode, message string, err error) *AgentError {
	return &AgentError{Code: code, Message: message, Err: err}
}

// OperatorError reports a failure at the operator boundary: an unsupported
// capability, an unavailable backend, or an underlying command that failed.
type OperatorError struct {
	Code     ErrorCode
	Operator string
	Action   ActionType
	Message  string
	Err      error
}

func (e *OperatorError) Error() string {
	prefix := fmt.Sprintf("operator %s: %s", e.Operator, e.Code)
	if e.Action != "" {
		prefix += fmt.Sprintf(" (%s)", e.Action)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *OperatorError) Unwrap() error { return e.Err }

// NewOperatorError builds an OperatorError.
func NewOperatorError(code ErrorCode, operator string, action ActionType, message string, err error) *OperatorError {
	return &OperatorError{Code: code, Operator: operator, Action: action, Message: message, Err: err}
}

// ModelError reports a failure in the vision-model layer. StatusCode is zero
// for network-level failures, distinguishing them from HTTP status failures.
type ModelError struct {
	Code       ErrorCode
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ModelError) Error() string {
	prefix := fmt.Sprintf("model %s: %s", e.Provider, e.Code)
	if e.StatusCode != 0 {
		prefix += fmt.Sprintf(" [status %d]", e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *ModelError) Unwrap() error { return e.Err }

// NewModelError builds a ModelError without an HTTP status.
func NewModelError(code ErrorCode, provider, message string, err error) *ModelError {
	return &ModelError{Code: code, Provider: provider, Message: message, Err: err}
}

// NewModelHTTPError builds a ModelError for a non-2xx provider response.
func NewModelHTTPError(provider string, statusCode int, message string) *ModelError {
	return &ModelError{Code: ErrCodeHTTPStatus, Provider: provider, StatusCode: statusCode, Message: message}
}
