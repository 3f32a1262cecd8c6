package main

import (
	"fmt"
	"time"
)

// PressMode selects how repeated presses are debounced.
type PressMode string

const (
	// PressModeCooldown re-fires every cooldown interval while the pointer stays on the button.
	PressModeCooldown PressMode = "cooldown"
	// PressModeEdge additionally requires the pointer to leave the button between fires.
	PressModeEdge PressMode = "edge"
)

// PressState is the hit-tester state carried from frame to frame.
// A zero LastFireAt means the button has never fired.
type PressState struct {
	IsPressed    bool
	PressedLabel string
	LastFireAt   time.Time
	Cooldown     time.Duration
	Mode         PressMode

	// disarmed is set by a fire in edge mode and cleared when the pointer leaves the rect.
	disarmed bool
}

// UpdatePress hit-tests one pointer sample against the current button and
// reports whether a press fires on this frame.
//
// Debounce is by wall-clock time: a pointer that stays on the button fires
// again once the cooldown has elapsed, without having to leave and re-enter.
func UpdatePress(pointer *Point, button *Button, now time.Time, press PressState) (PressState, bool) {
	if pointer == nil || button == nil {
		press.IsPressed = false
		press.disarmed = false
		return press, false
	}

	if !button.Rect.ContainsStrict(*pointer) {
		press.IsPressed = false
		press.disarmed = false
		return press, false
	}

	press.IsPressed = true

	if press.Mode == PressModeEdge && press.disarmed {
		return press, false
	}
	if !press.LastFireAt.IsZero() && now.Sub(press.LastFireAt) < press.Cooldown {
		return press, false
	}

	press.LastFireAt = now
	press.PressedLabel = button.Label
	if press.Mode == PressModeEdge {
		press.disarmed = true
	}
	return press, true
}

func parsePressMode(s string) (PressMode, error) {
	switch PressMode(s) {
	case "", PressModeCooldown:
		return PressModeCooldown, nil
	case PressModeEdge:
		return PressModeEdge, nil
	default:
		return "", fmt.Errorf("invalid press mode %q (must be %q or %q)", s, PressModeCooldown, PressModeEdge)
	}
}
