// Package bridge implements the Executor Bridge (spec.md §4.9/§6): a
// duplex `/ws` channel authenticated by a shared token, speaking the
// request/success/failure/event frame schema over JSON, gating
// concurrent invocations and deduplicating retried ones.
//
// Grounded on the teacher's internal/interfaces/websocket (Hub/Client/
// Handler/readPump/writePump) — this package keeps that read/write-pump
// split and its ping/pong keepalive shape, but narrows the hub's
// broadcast-to-many-clients model down to the bridge's single
// request/response channel per connection, and replaces the teacher's
// free-form WSMessage with the frame schema spec.md §6 names.
package bridge

import "encoding/json"

// FrameType tags the request and event frames; success and failure
// response frames carry no type and are told apart by OK.
type FrameType string

const (
	FrameRequest FrameType = "invoke"
	FrameEvent   FrameType = "event"
)

// RequestFrame is the client→bridge invoke envelope.
type RequestFrame struct {
	Type            FrameType       `json:"type"`
	ID              string          `json:"id"`
	Tool            string          `json:"tool"`
	Args            json.RawMessage `json:"args"`
	SessionID       string          `json:"sessionId,omitempty"`
	ParentSessionID string          `json:"parentSessionId,omitempty"`
	AgentID         string          `json:"agentId,omitempty"`
	InvocationID    string          `json:"invocationId,omitempty"`
	Fingerprint     string          `json:"fingerprint,omitempty"`
}

// FrameError is the Failure frame's error payload.
type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseFrame is the bridge→client success/failure envelope. OK
// discriminates which of Data/Error is populated.
type ResponseFrame struct {
	ID        string      `json:"id"`
	OK        bool        `json:"ok"`
	Data      any         `json:"data,omitempty"`
	Error     *FrameError `json:"error,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
	AgentID   string      `json:"agentId,omitempty"`
}

// EventFrame is a streaming notification (`invoke.started`,
// `invoke.stdout`, `invoke.stderr`, `invoke.finished`, and the
// dedup-path's synthetic `invoke.deduped` event).
type EventFrame struct {
	Type            FrameType `json:"type"`
	Event           string    `json:"event"`
	TS              int64     `json:"ts"`
	ID              string    `json:"id,omitempty"`
	SessionID       string    `json:"sessionId,omitempty"`
	ParentSessionID string    `json:"parentSessionId,omitempty"`
	AgentID         string    `json:"agentId,omitempty"`
	Data            any       `json:"data,omitempty"`
}

const (
	EventInvokeStarted  = "invoke.started"
	EventInvokeStdout   = "invoke.stdout"
	EventInvokeStderr   = "invoke.stderr"
	EventInvokeFinished = "invoke.finished"
	EventInvokeDeduped  = "invoke.deduped"
)
