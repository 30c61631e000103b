package model

import (
	"github.com/pjbroadbent/layouts-service/internal/geometry"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
)

// MessageKind names an event pushed to client applications.
type MessageKind string

const (
	MsgJoinSnapGroup  MessageKind = "join-snap-group"
	MsgLeaveSnapGroup MessageKind = "leave-snap-group"
	MsgJoinTabGroup   MessageKind = "join-tab-group"
	MsgLeaveTabGroup  MessageKind = "leave-tab-group"
	MsgTabActivated   MessageKind = "tab-activated"
)

// ClientMessage is one event addressed to a window's client application.
// The IPC layer fans these out to connected subscribers.
type ClientMessage struct {
	Window runtime.ID  `json:"window"`
	Kind   MessageKind `json:"kind"`
	Group  int         `json:"group,omitempty"`
}

// TransformEvent describes one observed move/resize step of a managed
// window. Originated is false for motion the window received because its
// snap group translated as a whole; only originated transforms drive
// resolution.
type TransformEvent struct {
	Window     *Window
	Kind       runtime.TransformKind
	Originated bool
	// PrevRect is the cached rect before this step was applied.
	PrevRect geometry.Rect
}

// ModifiedEvent describes a change that alters group eligibility.
type ModifiedEvent struct {
	Window *Window
}
