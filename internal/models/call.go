package models

import "encoding/json"

type Method string

const (
	MethodIsStepCountingAvailable       Method = "isStepCountingAvailable"
	MethodIsDistanceAvailable           Method = "isDistanceAvailable"
	MethodIsFloorCountingAvailable      Method = "isFloorCountingAvailable"
	MethodStartPedometerUpdates         Method = "startPedometerUpdates"
	MethodStartPedometerUpdatesFromDate Method = "startPedometerUpdatesFromDate"
	MethodStopPedometerUpdates          Method = "stopPedometerUpdates"
	MethodQueryData                     Method = "queryData"
)

// Call is one exec() from the script context.
type Call struct {
	CallID string          `json:"callId"`
	Method Method          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
	// StatusDone closes a stream without an error.
	StatusDone Status = "done"
)

type ErrorCode string

const (
	CodeUnavailable      ErrorCode = "unavailable"
	CodePermissionDenied ErrorCode = "permission_denied"
	CodeAlreadyActive    ErrorCode = "already_active"
	CodeRange            ErrorCode = "range"
	CodePlatform         ErrorCode = "platform"
)

type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Response travels back to the script side. KeepCallback marks stream
// events; a response without it is the last one for CallID.
type Response struct {
	CallID       string        `json:"callId"`
	Status       Status        `json:"status"`
	KeepCallback bool          `json:"keepCallback,omitempty"`
	Data         any           `json:"data,omitempty"`
	Error        *ErrorPayload `json:"error,omitempty"`
}

func (r Response) Terminal() bool {
	return !r.KeepCallback
}
