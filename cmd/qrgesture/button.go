package main

import "fmt"

// Point is a pointer position in frame pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle in frame coordinates; (X1,Y1) is the top-left corner.
type Rect struct {
	X1 int `json:"x1" yaml:"x1"`
	Y1 int `json:"y1" yaml:"y1"`
	X2 int `json:"x2" yaml:"x2"`
	Y2 int `json:"y2" yaml:"y2"`
}

// ContainsStrict reports whether p lies strictly inside r (edges excluded).
func (r Rect) ContainsStrict(p Point) bool {
	return float64(r.X1) < p.X && p.X < float64(r.X2) &&
		float64(r.Y1) < p.Y && p.Y < float64(r.Y2)
}

// Valid reports whether r has a positive area.
func (r Rect) Valid() bool {
	return r.X1 < r.X2 && r.Y1 < r.Y2
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.X1, r.Y1, r.X2, r.Y2)
}

// Button is the single on-screen target bound to the active action.
type Button struct {
	Label      string
	Rect       Rect
	Action     Action
	Generation uint64
}

// DeriveButton returns the button for the active action, or nil when there is none.
// Only one action is ever active, so a single fixed rectangle is enough.
func DeriveButton(d DetectionState, rect Rect) *Button {
	if d.Active == nil {
		return nil
	}
	return &Button{
		Label:      buttonLabel(d.Active),
		Rect:       rect,
		Action:     d.Active,
		Generation: d.Generation,
	}
}
