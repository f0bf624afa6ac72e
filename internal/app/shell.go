package app

import (
	"log/slog"
	"math"
	"sync"

	"github.com/wailsapp/wails/v3/pkg/application"

	"go.aimuz.me/tambourine/hotkey"
	"go.aimuz.me/tambourine/internal/overlay"
	"go.aimuz.me/tambourine/internal/types"
)

// shell is the desktop side of the overlay controller: it owns the overlay
// window geometry, the global hotkeys and broadcasts to the frontend.
type shell struct {
	window  application.Window
	hotkeys *hotkey.Manager
	emit    func(name string, data any)
	save    func(x, y int) error

	drag dragState
}

func (s *shell) EmitConnectionState(state types.ConnectionState) {
	s.hotkeys.SetState(state)
	s.emit(EventConnectionState, state)
}

func (s *shell) EmitView(view overlay.View) {
	s.emit(EventOverlayView, view)
}

func (s *shell) OnStartRecording(fn func()) func() { return s.hotkeys.OnStart(fn) }

func (s *shell) OnStopRecording(fn func()) func() { return s.hotkeys.OnStop(fn) }

func (s *shell) StartDragging() {
	if s.window == nil {
		return
	}
	x, y := s.window.Position()
	s.drag.start(x, y)
}

func (s *shell) DragBy(dx, dy float64) {
	x, y, ok := s.drag.moveTo(dx, dy)
	if ok && s.window != nil {
		s.window.SetPosition(x, y)
	}
}

// EndDragging persists where the overlay was dropped.
func (s *shell) EndDragging() {
	x, y, ok := s.drag.end()
	if !ok || s.save == nil {
		return
	}
	if err := s.save(x, y); err != nil {
		slog.Warn("save overlay position", "error", err)
	}
}

func (s *shell) ResizeOverlay(width, height int) {
	if s.window != nil {
		s.window.SetSize(width, height)
	}
}

// dragState tracks a window drag as offsets from where the window was when
// the drag began.
type dragState struct {
	mu               sync.Mutex
	active           bool
	originX, originY int
	x, y             int
}

func (d *dragState) start(x, y int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = true
	d.originX, d.originY = x, y
	d.x, d.y = x, y
}

// moveTo returns the window position for a pointer offset of (dx, dy).
func (d *dragState) moveTo(dx, dy float64) (int, int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return 0, 0, false
	}
	d.x = d.originX + int(math.Round(dx))
	d.y = d.originY + int(math.Round(dy))
	return d.x, d.y, true
}

// end finishes the drag and returns the final position.
func (d *dragState) end() (int, int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return 0, 0, false
	}
	d.active = false
	return d.x, d.y, true
}
