package ipc

import (
	"encoding/json"
	"fmt"
)

// ResponseStatus is the outcome of a command.
type ResponseStatus string

const (
	StatusOK    ResponseStatus = "ok"
	StatusError ResponseStatus = "error"
)

// ErrorCode classifies command and playback failures on the wire.
type ErrorCode string

const (
	CodeProtocolError     ErrorCode = "protocol_error"
	CodeQueueFull         ErrorCode = "queue_full"
	CodeInvalidPosition   ErrorCode = "invalid_position"
	CodeNotFound          ErrorCode = "not_found"
	CodeFormatUnavailable ErrorCode = "format_unavailable"
	CodeResolverTimeout   ErrorCode = "resolver_timeout"
	CodeConnectionError   ErrorCode = "connection_error"
	CodeInternal          ErrorCode = "internal"
)

// ErrorDetail carries a structured command failure.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Response is the reply sent on the command channel. The correlation ID
// matches the command that produced it so concurrent callers can multiplex
// one connection.
type Response struct {
	Status        ResponseStatus  `json:"status"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Error         *ErrorDetail    `json:"error,omitempty"`
}

// OK builds a success response. payload may be nil.
func OK(payload any) Response {
	data, err := marshalPayload(payload)
	if err != nil {
		return Errorf(CodeInternal, "encode response: %v", err)
	}
	return Response{Status: StatusOK, Data: data}
}

// Errorf builds an error response with the given code.
func Errorf(code ErrorCode, format string, args ...any) Response {
	return Response{
		Status: StatusError,
		Error:  &ErrorDetail{Code: code, Message: fmt.Sprintf(format, args...)},
	}
}

// Err reports whether the response is an error, as a Go error. A success
// response yields nil.
func (r Response) Err() error {
	if r.Status == StatusOK {
		return nil
	}
	if r.Error == nil {
		return fmt.Errorf("command failed with no error detail")
	}
	return fmt.Errorf("%s: %s", r.Error.Code, r.Error.Message)
}

// DecodeData unmarshals the response data into v.
func (r Response) DecodeData(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("response carries no data")
	}
	return json.Unmarshal(r.Data, v)
}
