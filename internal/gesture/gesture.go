// Package gesture tells a click apart from a drag on the overlay surface.
package gesture

import "math"

// DragThreshold is the distance in pixels from the press point beyond which
// a press becomes a drag.
const DragThreshold = 5.0

// Button identifies a mouse button as reported by the page.
type Button int

const (
	ButtonPrimary   Button = 0
	ButtonAuxiliary Button = 1
	ButtonSecondary Button = 2
)

// Kind is what a pointer event amounted to.
type Kind int

const (
	None Kind = iota
	Click
	DragStart
	DragMove
	DragEnd
)

func (k Kind) String() string {
	switch k {
	case Click:
		return "click"
	case DragStart:
		return "drag-start"
	case DragMove:
		return "drag-move"
	case DragEnd:
		return "drag-end"
	default:
		return "none"
	}
}

// Result is the outcome of one pointer event. DX and DY are the offset from
// the press point and are set for DragStart and DragMove.
type Result struct {
	Kind   Kind
	DX, DY float64
}

type phase int

const (
	phaseIdle phase = iota
	phasePossibleDrag
	phaseDragging
)

// Recognizer is a small state machine over press, move and release.
// It is not safe for concurrent use.
type Recognizer struct {
	phase            phase
	originX, originY float64
}

// Down starts tracking a press at (x, y). Non-primary buttons are ignored.
func (r *Recognizer) Down(b Button, x, y float64) Result {
	if b != ButtonPrimary {
		return Result{}
	}
	r.phase = phasePossibleDrag
	r.originX, r.originY = x, y
	return Result{}
}

// Move reports pointer movement to (x, y).
func (r *Recognizer) Move(x, y float64) Result {
	dx, dy := x-r.originX, y-r.originY
	switch r.phase {
	case phasePossibleDrag:
		if math.Hypot(dx, dy) > DragThreshold {
			r.phase = phaseDragging
			return Result{Kind: DragStart, DX: dx, DY: dy}
		}
	case phaseDragging:
		return Result{Kind: DragMove, DX: dx, DY: dy}
	}
	return Result{}
}

// Up ends the press. It always returns the recognizer to idle.
func (r *Recognizer) Up() Result {
	p := r.phase
	r.Reset()
	switch p {
	case phasePossibleDrag:
		return Result{Kind: Click}
	case phaseDragging:
		return Result{Kind: DragEnd}
	}
	return Result{}
}

// Reset drops any press being tracked.
func (r *Recognizer) Reset() {
	r.phase = phaseIdle
	r.originX, r.originY = 0, 0
}

// Tracking reports whether a press is in progress.
func (r *Recognizer) Tracking() bool { return r.phase != phaseIdle }
