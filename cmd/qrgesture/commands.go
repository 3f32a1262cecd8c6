package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon loop.
type Command interface {
	commandMarker()
	String() string
}

// CmdDispatch runs the handler for Action.
type CmdDispatch struct {
	Action Action
	Label  string
	At     time.Time
}

func (CmdDispatch) commandMarker() {}
func (c CmdDispatch) String() string {
	return fmt.Sprintf("CmdDispatch(kind=%s, label=%q)", kindOf(c.Action), c.Label)
}

// CmdRecordDispatch persists a dispatch outcome to the history store.
type CmdRecordDispatch struct {
	Record DispatchRecord
}

func (CmdRecordDispatch) commandMarker() {}
func (c CmdRecordDispatch) String() string {
	return fmt.Sprintf("CmdRecordDispatch(id=%s, ok=%v)", c.Record.ID, c.Record.OK)
}

// CmdPublishStateSnapshot delivers a reducer-produced View to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan<- View
	Snapshot View
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }

// CmdQuit stops the daemon.
type CmdQuit struct{}

func (CmdQuit) commandMarker() {}
func (CmdQuit) String() string { return "CmdQuit()" }

// ==============================
// Broadcasts (state change notifications)
// ==============================

// StateBroadcast is a reducer-emitted notification for websocket clients.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastViewChanged is emitted when the drawable view changed.
type BroadcastViewChanged struct {
	View View
	At   time.Time
}

func (BroadcastViewChanged) broadcastMarker() {}

// BroadcastPointerMoved is emitted when the pointer moved, appeared or vanished.
type BroadcastPointerMoved struct {
	Pointer *Point
	At      time.Time
}

func (BroadcastPointerMoved) broadcastMarker() {}

// BroadcastDispatched is emitted once per completed dispatch.
type BroadcastDispatched struct {
	ID    uuid.UUID
	Kind  ActionKind
	Label string
	Text  string
	OK    bool
	At    time.Time
}

func (BroadcastDispatched) broadcastMarker() {}
