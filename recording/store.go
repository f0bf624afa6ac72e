// Package recording owns the overlay's connection and recording state.
package recording

import (
	"context"
	"log/slog"
	"sync"

	"go.aimuz.me/tambourine/internal/events"
	"go.aimuz.me/tambourine/internal/types"
)

// Mic is the part of the real-time client the store drives.
type Mic interface {
	EnableMic(ctx context.Context, enabled bool) error
}

// Change is delivered to subscribers on every real state change.
type Change struct {
	Next, Prev types.ConnectionState
}

const changeKey = "change"

// Store is the single source of truth for ConnectionState.
// Transitions happen only through its methods.
type Store struct {
	mu    sync.Mutex
	state types.ConnectionState
	mic   Mic

	subs events.Registry[string, Change]
}

// NewStore returns a store in the connecting state.
func NewStore() *Store {
	return &Store{state: types.StateConnecting}
}

// SetMic attaches the microphone the store enables and disables.
func (s *Store) SetMic(m Mic) {
	s.mu.Lock()
	s.mic = m
	s.mu.Unlock()
}

// State returns the current state.
func (s *Store) State() types.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for state changes and returns an unsubscribe func.
// fn is called outside the store lock.
func (s *Store) Subscribe(fn func(next, prev types.ConnectionState)) func() {
	return s.subs.On(changeKey, func(c Change) { fn(c.Next, c.Prev) })
}

// StartRecording enables the microphone and moves idle to recording.
// It reports false when not idle or when the microphone could not be enabled.
func (s *Store) StartRecording(ctx context.Context) bool {
	s.mu.Lock()
	if s.state != types.StateIdle {
		s.mu.Unlock()
		return false
	}
	mic := s.mic
	s.mu.Unlock()

	if mic == nil {
		slog.Warn("start recording without client")
		return false
	}
	if err := mic.EnableMic(ctx, true); err != nil {
		slog.Error("enable mic", "error", err)
		return false
	}

	// the state may have moved while the mic was being enabled
	if s.transition(func(cur types.ConnectionState) (types.ConnectionState, bool) {
		return types.StateRecording, cur == types.StateIdle
	}) {
		return true
	}
	slog.Warn("state changed while enabling mic, disabling it", "state", s.State())
	if err := mic.EnableMic(ctx, false); err != nil {
		slog.Warn("disable mic", "error", err)
	}
	return false
}

// StopRecording disables the microphone and moves recording to processing.
func (s *Store) StopRecording() bool {
	ok := s.transition(func(cur types.ConnectionState) (types.ConnectionState, bool) {
		return types.StateProcessing, cur == types.StateRecording
	})
	if !ok {
		return false
	}

	s.mu.Lock()
	mic := s.mic
	s.mu.Unlock()
	if mic != nil {
		if err := mic.EnableMic(context.Background(), false); err != nil {
			slog.Warn("disable mic", "error", err)
		}
	}
	return true
}

// HandleResponse returns recording or processing to idle.
func (s *Store) HandleResponse() {
	s.transition(func(cur types.ConnectionState) (types.ConnectionState, bool) {
		return types.StateIdle, cur == types.StateRecording || cur == types.StateProcessing
	})
}

// HandleConnected marks the transport usable.
func (s *Store) HandleConnected() {
	s.transition(func(types.ConnectionState) (types.ConnectionState, bool) {
		return types.StateIdle, true
	})
}

// HandleDisconnected marks the transport lost.
func (s *Store) HandleDisconnected() {
	s.transition(func(types.ConnectionState) (types.ConnectionState, bool) {
		return types.StateDisconnected, true
	})
}

func (s *Store) transition(decide func(cur types.ConnectionState) (types.ConnectionState, bool)) bool {
	s.mu.Lock()
	prev := s.state
	next, ok := decide(prev)
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.state = next
	s.mu.Unlock()

	if next != prev {
		s.subs.Emit(changeKey, Change{Next: next, Prev: prev})
	}
	return true
}
