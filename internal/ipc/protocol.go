// Package ipc implements the control-socket wire protocol described in
// spec.md §6: one JSON value per line over a Unix domain stream socket,
// UTF-8, newline-terminated, capped at 1 MiB per frame.
package ipc

import (
	"github.com/sysgio/sysg/internal/metrics"
	"github.com/sysgio/sysg/internal/status"
)

// MaxFrameBytes is the 1 MiB per-line cap from spec.md §6.
const MaxFrameBytes = 1 << 20

type RequestTag string

const (
	ReqStart    RequestTag = "Start"
	ReqStop     RequestTag = "Stop"
	ReqRestart  RequestTag = "Restart"
	ReqShutdown RequestTag = "Shutdown"
	ReqStatus   RequestTag = "Status"
	ReqInspect  RequestTag = "Inspect"
)

// Request is the envelope for every control-socket command. Only the
// fields relevant to Tag are populated; unused fields are omitted by the
// `omitempty` json tags.
type Request struct {
	Tag     RequestTag `json:"tag"`
	Service string     `json:"service,omitempty"`
	Config  string     `json:"config,omitempty"`
	Unit    string      `json:"unit,omitempty"`
	Samples int         `json:"samples,omitempty"`
}

type ResponseTag string

const (
	RespOk      ResponseTag = "Ok"
	RespMessage ResponseTag = "Message"
	RespStatus  ResponseTag = "Status"
	RespInspect ResponseTag = "Inspect"
	RespError   ResponseTag = "Error"
)

// InspectPayload answers an Inspect{unit, samples} request: the unit's
// current status plus its most recent metric samples, newest last.
type InspectPayload struct {
	Unit    status.UnitStatus `json:"unit"`
	Samples []metrics.Sample  `json:"samples,omitempty"`
}

// Response is the envelope for every control-socket reply.
type Response struct {
	Tag     ResponseTag             `json:"tag"`
	Message string                  `json:"message,omitempty"`
	Status  *status.StatusSnapshot  `json:"status,omitempty"`
	Inspect *InspectPayload         `json:"inspect,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

func OkResponse() Response                    { return Response{Tag: RespOk} }
func MessageResponse(msg string) Response     { return Response{Tag: RespMessage, Message: msg} }
func ErrorResponse(err error) Response        { return Response{Tag: RespError, Error: err.Error()} }
func StatusResponse(s *status.StatusSnapshot) Response {
	return Response{Tag: RespStatus, Status: s}
}
func InspectResponse(p InspectPayload) Response { return Response{Tag: RespInspect, Inspect: &p} }
