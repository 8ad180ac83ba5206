package a2a

import (
	"errors"
	"fmt"
)

// JSON-RPC and A2A error codes.
const (
	CodeJSONParseError               = -32700
	CodeInvalidRequest               = -32600
	CodeMethodNotFound               = -32601
	CodeInvalidParams                = -32602
	CodeInternalError                = -32603
	CodeTaskNotFound                 = -32001
	CodeTaskNotCancelable            = -32002
	CodePushNotificationNotSupported = -32003
	CodeUnsupportedOperation         = -32004
	CodeContentTypeNotSupported      = -32005
	CodeInvalidAgentResponse         = -32006
)

// JSONRPCError represents a standard JSON-RPC error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface for JSONRPCError
func (e *JSONRPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("JSON-RPC error %d: %s: %v", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// Is matches another *JSONRPCError with the same code.
func (e *JSONRPCError) Is(target error) bool {
	var t *JSONRPCError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// AsJSONRPCError returns err as a *JSONRPCError, wrapping anything else as an
// internal error.
func AsJSONRPCError(err error) *JSONRPCError {
	var rpcErr *JSONRPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return NewInternalError(err.Error())
}

// NewJSONParseError reports a payload that is not JSON.
func NewJSONParseError(data any) *JSONRPCError {
	return &JSONRPCError{Code: CodeJSONParseError, Message: "Invalid JSON payload", Data: data}
}

// NewInvalidRequestError reports a payload that is not a valid JSON-RPC request.
func NewInvalidRequestError(data any) *JSONRPCError {
	return &JSONRPCError{Code: CodeInvalidRequest, Message: "Request payload validation error", Data: data}
}

// NewMethodNotFoundError reports an unknown method.
func NewMethodNotFoundError(method string) *JSONRPCError {
	return &JSONRPCError{Code: CodeMethodNotFound, Message: "Method not found", Data: method}
}

// NewInvalidParamsError reports params that do not fit the method.
func NewInvalidParamsError(data any) *JSONRPCError {
	return &JSONRPCError{Code: CodeInvalidParams, Message: "Invalid parameters", Data: data}
}

// NewInternalError reports a server-side failure.
func NewInternalError(data any) *JSONRPCError {
	return &JSONRPCError{Code: CodeInternalError, Message: "Internal error", Data: data}
}

// NewTaskNotFoundError reports an unknown task id.
func NewTaskNotFoundError(taskID string) *JSONRPCError {
	return &JSONRPCError{Code: CodeTaskNotFound, Message: "Task not found", Data: taskID}
}

// NewTaskNotCancelableError reports a task that already finished.
func NewTaskNotCancelableError(taskID string) *JSONRPCError {
	return &JSONRPCError{Code: CodeTaskNotCancelable, Message: "Task cannot be canceled", Data: taskID}
}

// NewPushNotificationNotSupportedError reports a push notification request.
func NewPushNotificationNotSupportedError() *JSONRPCError {
	return &JSONRPCError{Code: CodePushNotificationNotSupported, Message: "Push Notification is not supported"}
}

// NewUnsupportedOperationError reports an operation the agent does not offer.
func NewUnsupportedOperationError() *JSONRPCError {
	return &JSONRPCError{Code: CodeUnsupportedOperation, Message: "This operation is not supported"}
}

// NewContentTypeNotSupportedError reports incompatible input or output modes.
func NewContentTypeNotSupportedError() *JSONRPCError {
	return &JSONRPCError{Code: CodeContentTypeNotSupported, Message: "Incompatible content types"}
}

// NewInvalidAgentResponseError reports an agent that produced something unusable.
func NewInvalidAgentResponseError(data any) *JSONRPCError {
	return &JSONRPCError{Code: CodeInvalidAgentResponse, Message: "Invalid agent response", Data: data}
}

// ClientError is a transport-level failure talking to a remote agent.
type ClientError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("a2a client error: %v", e.Err)
	}
	return fmt.Sprintf("a2a client error: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// AgentCardResolutionError means an agent card could not be fetched or decoded.
type AgentCardResolutionError struct {
	URL string
	Err error
}

func (e *AgentCardResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve agent card from %s: %v", e.URL, e.Err)
}

func (e *AgentCardResolutionError) Unwrap() error {
	return e.Err
}
