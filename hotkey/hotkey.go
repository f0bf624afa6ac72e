// Package hotkey turns global keyboard shortcuts into recording requests.
package hotkey

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"go.aimuz.me/tambourine/internal/events"
	"go.aimuz.me/tambourine/internal/types"
)

// Request is what a shortcut asks for.
type Request string

const (
	RequestStart Request = "start"
	RequestStop  Request = "stop"
)

// ErrStarted is returned by Start when the hook is already running.
var ErrStarted = errors.New("hotkey: already started")

// Manager maps a toggle chord and an optional hold chord to start and stop
// requests. Handlers run on the hook goroutine.
type Manager struct {
	mu        sync.Mutex
	toggle    []string
	hold      []string
	recording bool
	holding   bool
	running   bool

	listeners events.Registry[Request, struct{}]
	backend   backend
}

// NewManager creates a manager for the given chords. Chord keys use gohook
// names such as "ctrl", "shift", "alt", "cmd" and "space".
func NewManager(cfg types.HotkeyConfig) *Manager {
	return &Manager{
		toggle:  normalize(cfg.Toggle),
		hold:    normalize(cfg.Hold),
		backend: gohookBackend{},
	}
}

func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// OnStart registers fn for start requests.
func (m *Manager) OnStart(fn func()) func() {
	return m.listeners.On(RequestStart, func(struct{}) { fn() })
}

// OnStop registers fn for stop requests.
func (m *Manager) OnStop(fn func()) func() {
	return m.listeners.On(RequestStop, func(struct{}) { fn() })
}

// SetRecording tells the toggle chord which request to send next.
func (m *Manager) SetRecording(recording bool) {
	m.mu.Lock()
	m.recording = recording
	m.mu.Unlock()
}

// SetState feeds a connection-state broadcast into the toggle logic.
func (m *Manager) SetState(state types.ConnectionState) {
	m.SetRecording(state == types.StateRecording)
}

// Start installs the global hook.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrStarted
	}
	m.running = true
	toggle, hold := m.toggle, m.hold
	m.mu.Unlock()

	if len(toggle) > 0 {
		m.backend.onChord(toggle, m.pressToggle)
		slog.Info("toggle hotkey registered", "keys", strings.Join(toggle, "+"))
	}
	if len(hold) > 0 {
		m.backend.onChord(hold, m.pressHold)
		m.backend.onRelease(hold, m.releaseHold)
		slog.Info("hold hotkey registered", "keys", strings.Join(hold, "+"))
	}

	return m.backend.start()
}

// Stop removes the global hook.
func (m *Manager) Stop() {
	m.mu.Lock()
	running := m.running
	m.running = false
	m.holding = false
	m.mu.Unlock()

	if running {
		m.backend.stop()
	}
}

func (m *Manager) pressToggle() {
	m.mu.Lock()
	req := RequestStart
	if m.recording {
		req = RequestStop
	}
	m.mu.Unlock()

	slog.Debug("toggle hotkey", "request", req)
	m.listeners.Emit(req, struct{}{})
}

func (m *Manager) pressHold() {
	m.mu.Lock()
	if m.holding {
		// key repeat
		m.mu.Unlock()
		return
	}
	m.holding = true
	m.mu.Unlock()

	slog.Debug("hold hotkey pressed")
	m.listeners.Emit(RequestStart, struct{}{})
}

func (m *Manager) releaseHold() {
	m.mu.Lock()
	if !m.holding {
		m.mu.Unlock()
		return
	}
	m.holding = false
	m.mu.Unlock()

	slog.Debug("hold hotkey released")
	m.listeners.Emit(RequestStop, struct{}{})
}
