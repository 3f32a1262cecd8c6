package main

import "time"

// DetectionState holds the currently "live" action.
//
// QR decoding is noisy from frame to frame; the TTL bridges short decode
// dropouts so the button does not flicker. A successful decode replaces the
// state wholesale (never merges), and bumps Generation so that even a decode
// of the same variant recreates the derived button.
type DetectionState struct {
	Active     Action
	LastSeenAt time.Time
	TTL        time.Duration
	Generation uint64
}

// ChangeKind describes what OnDecodeResult did to the active action.
type ChangeKind int

const (
	ChangeUnchanged ChangeKind = iota
	ChangeReplaced
	ChangeCleared
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeReplaced:
		return "replaced"
	case ChangeCleared:
		return "cleared"
	default:
		return "unchanged"
	}
}

// ActiveActionChange is the result of feeding one frame's decode into the state.
// ClassifyErr is set when a payload was present but could not be classified.
type ActiveActionChange struct {
	Kind        ChangeKind
	Previous    Action
	ClassifyErr error
}

// OnDecodeResult applies one frame's decode outcome. raw is nil when nothing
// was decoded in the frame. A payload that fails to classify counts as a
// missed frame: LastSeenAt is not refreshed and the TTL still applies.
func (d DetectionState) OnDecodeResult(raw *string, now time.Time) (DetectionState, ActiveActionChange) {
	change := ActiveActionChange{Kind: ChangeUnchanged, Previous: d.Active}

	if raw != nil {
		action, err := Classify(*raw)
		if err == nil {
			d.Active = action
			d.LastSeenAt = now
			d.Generation++
			change.Kind = ChangeReplaced
			return d, change
		}
		change.ClassifyErr = err
	}

	if d.Active == nil {
		return d, change
	}
	if now.Sub(d.LastSeenAt) < d.TTL {
		return d, change
	}

	d.Active = nil
	change.Kind = ChangeCleared
	return d, change
}

// Clear drops the active action immediately.
func (d DetectionState) Clear() DetectionState {
	d.Active = nil
	return d
}
