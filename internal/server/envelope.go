package server

import (
	"encoding/json"

	"github.com/fathima-sithara/realtime-service/pkg/apperrors"
)

// Envelope is the inbound frame: an event name plus its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Reply is the outbound frame for both request replies and server pushes.
type Reply struct {
	Event   string      `json:"event"`
	Success bool        `json:"success"`
	Data    any         `json:"data,omitempty"`
	Error   *ReplyError `json:"error,omitempty"`
}

type ReplyError struct {
	Code    apperrors.Code `json:"code"`
	Message string         `json:"message"`
}

func ok(event string, data any) Reply {
	return Reply{Event: event, Success: true, Data: data}
}

func fail(event string, err error) Reply {
	return Reply{
		Event:   event,
		Success: false,
		Error:   &ReplyError{Code: apperrors.CodeOf(err), Message: apperrors.MessageOf(err)},
	}
}
