// Package ipc implements the client API over a unix-domain socket: one
// JSON request/response per line, plus a subscription mode that streams
// client events (join/leave group, tab activation) to the peer.
package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/pjbroadbent/layouts-service/internal/engine"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
)

// CommandType represents different IPC command types.
type CommandType string

const (
	CommandGetStatus      CommandType = "GET_STATUS"
	CommandReload         CommandType = "RELOAD"
	CommandUndock         CommandType = "UNDOCK"
	CommandExplodeGroup   CommandType = "EXPLODE_GROUP"
	CommandGetTabs        CommandType = "GET_TABS"
	CommandCreateTabGroup CommandType = "CREATE_TAB_GROUP"
	CommandAddTab         CommandType = "ADD_TAB"
	CommandRemoveTab      CommandType = "REMOVE_TAB"
	CommandSwitchTab      CommandType = "SWITCH_TAB"
	CommandSetActiveTab   CommandType = "SET_ACTIVE_TAB"
	CommandGetSaveInfo    CommandType = "GET_SAVE_INFO"
	CommandRestore        CommandType = "RESTORE"
	CommandUndo           CommandType = "UNDO"
	CommandSubscribe      CommandType = "SUBSCRIBE"
)

// Request represents an IPC request from client to server.
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client.
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Code   string          `json:"code,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Error codes mirroring the engine's error kinds.
const (
	CodeNotFound       = "NOT_FOUND"
	CodeInvalidScope   = "INVALID_SCOPE"
	CodeDisabled       = "DISABLED"
	CodeInvalidState   = "INVALID_STATE"
	CodeRuntimeFailure = "RUNTIME_FAILURE"
	CodeTimeout        = "TIMEOUT"
	CodeInternal       = "INTERNAL"
)

// StatusData is returned by GET_STATUS.
type StatusData struct {
	WindowCount    int   `json:"window_count"`
	SnapGroupCount int   `json:"snap_group_count"`
	TabGroupCount  int   `json:"tab_group_count"`
	UptimeSeconds  int64 `json:"uptime_seconds"`
}

// WindowPayload addresses one window.
type WindowPayload struct {
	Window runtime.ID `json:"window"`
}

// CreateTabGroupPayload lists the windows to tab together.
type CreateTabGroupPayload struct {
	Windows []runtime.ID `json:"windows"`
}

// AddTabPayload addresses a tab group and a window.
type AddTabPayload struct {
	Group  int        `json:"group"`
	Window runtime.ID `json:"window"`
}

// SwitchTabPayload addresses a tab group and the tab to activate.
type SwitchTabPayload struct {
	Group  int        `json:"group"`
	Window runtime.ID `json:"window"`
}

// RestorePayload carries a save blob.
type RestorePayload struct {
	Groups []engine.TabGroupSave `json:"groups"`
}

// RestoreData reports a restore outcome.
type RestoreData struct {
	Restored int `json:"restored"`
}

// NewOKResponse creates a successful response with optional data.
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}
	return &Response{Status: "OK", Data: dataBytes}, nil
}

// NewErrorResponse creates an error response with a code and message.
func NewErrorResponse(code, errMsg string) *Response {
	return &Response{Status: "ERROR", Code: code, Error: errMsg}
}

// ParseRequest parses a request from JSON bytes.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes.
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
