package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Events
// ============================================================================
// Events are the reducer's inputs: frames from the capture loop, housekeeping
// ticks, dispatch results from the effects stage and requests from IPC / the
// state websocket. They are reduced one at a time by the daemon goroutine.
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// TimedEvent stamps an event with the time the daemon received it.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// FrameObserved carries one frame's decode and pointer sample.
type FrameObserved struct {
	Seq     uint64    `json:"seq,omitempty"`
	At      time.Time `json:"-"`
	Payload *string   `json:"payload,omitempty"`
	Pointer *Point    `json:"pointer,omitempty"`
}

func (FrameObserved) eventMarker() {}

// Tick is emitted by the daemon loop at a fixed cadence so that messages and
// detections expire even when no frames arrive.
type Tick struct {
	Now time.Time
}

func (Tick) eventMarker() {}

// DispatchCompleted reports the outcome of a CmdDispatch.
type DispatchCompleted struct {
	ID        uuid.UUID
	Kind      ActionKind
	Label     string
	Action    Action
	Status    StatusMessage
	StartedAt time.Time
}

func (DispatchCompleted) eventMarker() {}

// RequestStateSnapshot asks the daemon for the current View.
type RequestStateSnapshot struct {
	Reply chan<- View
}

func (RequestStateSnapshot) eventMarker() {}

// ResetDetection drops the active action and its button.
type ResetDetection struct{}

func (ResetDetection) eventMarker() {}

// Quit stops the daemon cleanly.
type Quit struct{}

func (Quit) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// Only externally injectable events have a wire form (IPC).
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "frame":
		var f FrameObserved
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &f); err != nil {
				return nil, fmt.Errorf("unmarshal FrameObserved: %w", err)
			}
		}
		return f, nil

	case "reset":
		return ResetDetection{}, nil

	case "quit":
		return Quit{}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}
