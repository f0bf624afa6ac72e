package overlay

import (
	"math"

	"go.aimuz.me/tambourine/internal/gesture"
	"go.aimuz.me/tambourine/internal/types"
)

// View is what the overlay page renders. It is a pure function of the
// connection state and device readiness: busy states and unready devices
// show a loading indicator.
type View struct {
	State        types.ConnectionState `json:"state"`
	Loading      bool                  `json:"loading"`
	Visualizer   bool                  `json:"visualizer"`
	DevicesReady bool                  `json:"devicesReady"`
}

// Render derives the view for state.
func Render(state types.ConnectionState, devicesReady bool) View {
	return View{
		State:        state,
		Loading:      state.Busy() || !devicesReady,
		Visualizer:   state == types.StateRecording,
		DevicesReady: devicesReady,
	}
}

// View returns the latest rendered view. Safe to call from any goroutine.
func (c *Controller) View() View {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.view
}

// publish re-renders the view and announces it when it changed.
func (c *Controller) publish() {
	v := Render(c.state, c.devicesReady)
	c.viewMu.Lock()
	changed := v != c.view
	c.view = v
	c.viewMu.Unlock()
	if changed {
		c.shell.EmitView(v)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Pointer
// ─────────────────────────────────────────────────────────────────────────────

// MouseDown reports a press at screen coordinates (x, y).
func (c *Controller) MouseDown(button int, x, y float64) {
	c.post(func() { c.pointer.Down(gesture.Button(button), x, y) })
}

// MouseMove reports pointer movement in screen coordinates.
func (c *Controller) MouseMove(x, y float64) {
	c.post(func() {
		r := c.pointer.Move(x, y)
		switch r.Kind {
		case gesture.DragStart:
			c.shell.StartDragging()
			c.shell.DragBy(r.DX, r.DY)
		case gesture.DragMove:
			c.shell.DragBy(r.DX, r.DY)
		}
	})
}

// MouseUp ends a press. A press that never moved past the drag threshold
// is a click.
func (c *Controller) MouseUp() {
	c.post(func() {
		switch c.pointer.Up().Kind {
		case gesture.Click:
			c.toggle()
		case gesture.DragEnd:
			c.shell.EndDragging()
		}
	})
}

// toggle starts or stops recording. Only idle and recording respond.
func (c *Controller) toggle() {
	switch c.state {
	case types.StateRecording:
		c.stopRecording()
	case types.StateIdle:
		c.startRecording()
	}
}

// ContentResized reports the page's content box. The window is resized to
// the rounded-up size; repeats are dropped.
func (c *Controller) ContentResized(width, height float64) {
	size := [2]int{int(math.Ceil(width)), int(math.Ceil(height))}
	c.post(func() {
		if size[0] <= 0 || size[1] <= 0 || size == c.lastSize {
			return
		}
		c.lastSize = size
		c.shell.ResizeOverlay(size[0], size[1])
	})
}
