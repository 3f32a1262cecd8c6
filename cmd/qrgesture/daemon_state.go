package main

import "time"

// FrameLoopState is the daemon-owned state container.
//
// Only the daemon goroutine touches it: the reducer returns the next state
// and never shares the pointer with other goroutines. Clients get copies
// via View snapshots.
type FrameLoopState struct {
	Detection DetectionState
	Press     PressState

	// Button is derived from Detection and recreated whenever the active
	// action is replaced.
	Button *Button

	// Status is the live status message, if any.
	Status *StatusMessage

	// Pointer is the fingertip seen in the most recent frame.
	Pointer *Point

	// Dispatching marks a dispatch in flight; further fires are dropped until
	// its DispatchCompleted is reduced.
	Dispatching bool

	LastFrameSeq uint64
	LastFrameAt  time.Time

	Stats LoopStats
}

// LoopStats are monotonically increasing counters exposed in snapshots.
type LoopStats struct {
	Frames         uint64 `json:"frames"`
	Decodes        uint64 `json:"decodes"`
	ClassifyErrors uint64 `json:"classify_errors"`
	Dispatches     uint64 `json:"dispatches"`
	Failures       uint64 `json:"failures"`
}

// LoopConfig is the reducer configuration.
type LoopConfig struct {
	ButtonRect   Rect
	DetectionTTL time.Duration
	Cooldown     time.Duration
	PressMode    PressMode
	StatusTTL    time.Duration
}

// DefaultLoopConfig mirrors the defaults in constants.go.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		ButtonRect:   Rect{X1: defaultButtonX1, Y1: defaultButtonY1, X2: defaultButtonX2, Y2: defaultButtonY2},
		DetectionTTL: defaultDetectionTTL,
		Cooldown:     defaultCooldown,
		PressMode:    PressModeCooldown,
		StatusTTL:    defaultStatusTTL,
	}
}

// NewFrameLoopState returns an empty state using cfg's TTL and cooldown.
func NewFrameLoopState(cfg LoopConfig) *FrameLoopState {
	return &FrameLoopState{
		Detection: DetectionState{TTL: cfg.DetectionTTL},
		Press:     PressState{Cooldown: cfg.Cooldown, Mode: cfg.PressMode},
	}
}

// ButtonView is the drawable button.
type ButtonView struct {
	Label   string `json:"label"`
	Rect    Rect   `json:"rect"`
	Pressed bool   `json:"pressed"`
}

// View is what the rendering side draws for one frame.
type View struct {
	Button      *ButtonView    `json:"button,omitempty"`
	DisplayText string         `json:"display_text"`
	Kind        ActionKind     `json:"kind,omitempty"`
	Status      *StatusMessage `json:"status,omitempty"`
	Pointer     *Point         `json:"pointer,omitempty"`
	Stats       LoopStats      `json:"stats"`
}

// View builds a snapshot for now. Expired status messages are omitted.
func (s *FrameLoopState) View(now time.Time) View {
	v := s.rawView()
	if v.Status != nil && v.Status.Expired(now) {
		v.Status = nil
	}
	return v
}

func (s *FrameLoopState) rawView() View {
	v := View{
		DisplayText: displayText(s.Detection.Active),
		Kind:        kindOf(s.Detection.Active),
		Stats:       s.Stats,
	}
	if s.Button != nil {
		v.Button = &ButtonView{
			Label:   s.Button.Label,
			Rect:    s.Button.Rect,
			Pressed: s.Press.IsPressed && s.Press.PressedLabel == s.Button.Label,
		}
	}
	if s.Status != nil {
		st := *s.Status
		v.Status = &st
	}
	if s.Pointer != nil {
		p := *s.Pointer
		v.Pointer = &p
	}
	return v
}

// sameDrawable reports whether a and b render identically, ignoring the
// pointer and counters (those change on almost every frame).
func sameDrawable(a, b View) bool {
	if a.DisplayText != b.DisplayText || a.Kind != b.Kind {
		return false
	}
	if (a.Button == nil) != (b.Button == nil) {
		return false
	}
	if a.Button != nil && *a.Button != *b.Button {
		return false
	}
	if (a.Status == nil) != (b.Status == nil) {
		return false
	}
	if a.Status != nil && (a.Status.Text != b.Status.Text || !a.Status.CreatedAt.Equal(b.Status.CreatedAt)) {
		return false
	}
	return true
}

func samePoint(a, b *Point) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
