package recording

import (
	"context"
	"errors"
	"slices"
	"testing"

	"go.aimuz.me/tambourine/internal/types"
)

type mockMic struct {
	calls  []bool
	err    error
	during func(enabled bool)
}

func (m *mockMic) EnableMic(_ context.Context, enabled bool) error {
	m.calls = append(m.calls, enabled)
	if m.during != nil {
		m.during(enabled)
	}
	return m.err
}

func newIdleStore(t *testing.T, mic Mic) *Store {
	t.Helper()
	s := NewStore()
	s.SetMic(mic)
	s.HandleConnected()
	if got := s.State(); got != types.StateIdle {
		t.Fatalf("state after connect = %s, want idle", got)
	}
	return s
}

func TestStoreInitialState(t *testing.T) {
	if got := NewStore().State(); got != types.StateConnecting {
		t.Errorf("initial state = %s, want connecting", got)
	}
}

func TestStoreRecordingCycle(t *testing.T) {
	mic := &mockMic{}
	s := newIdleStore(t, mic)

	if !s.StartRecording(context.Background()) {
		t.Fatal("StartRecording from idle returned false")
	}
	if got := s.State(); got != types.StateRecording {
		t.Errorf("state = %s, want recording", got)
	}
	if !s.StopRecording() {
		t.Fatal("StopRecording from recording returned false")
	}
	if got := s.State(); got != types.StateProcessing {
		t.Errorf("state = %s, want processing", got)
	}
	s.HandleResponse()
	if got := s.State(); got != types.StateIdle {
		t.Errorf("state = %s, want idle", got)
	}

	if want := []bool{true, false}; !slices.Equal(mic.calls, want) {
		t.Errorf("mic calls = %v, want %v", mic.calls, want)
	}
}

func TestStoreGuards(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *Store)
		start bool
		stop  bool
	}{
		{"connecting", func(*Store) {}, false, false},
		{"disconnected", func(s *Store) { s.HandleDisconnected() }, false, false},
		{"idle", func(s *Store) { s.HandleConnected() }, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.SetMic(&mockMic{})
			tt.setup(s)

			if got := s.StopRecording(); got != tt.stop {
				t.Errorf("StopRecording = %v, want %v", got, tt.stop)
			}
			if got := s.StartRecording(context.Background()); got != tt.start {
				t.Errorf("StartRecording = %v, want %v", got, tt.start)
			}
		})
	}
}

func TestStoreStartMicFailure(t *testing.T) {
	s := newIdleStore(t, &mockMic{err: errors.New("permission denied")})

	if s.StartRecording(context.Background()) {
		t.Error("StartRecording succeeded with failing mic")
	}
	if got := s.State(); got != types.StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestStoreSubscribe(t *testing.T) {
	s := NewStore()
	s.SetMic(&mockMic{})

	var got []Change
	off := s.Subscribe(func(next, prev types.ConnectionState) {
		got = append(got, Change{Next: next, Prev: prev})
	})

	s.HandleConnected()
	s.HandleConnected() // no change, no notification
	s.HandleResponse()  // idle is not a response state
	s.StartRecording(context.Background())
	off()
	s.StopRecording()

	want := []Change{
		{Next: types.StateIdle, Prev: types.StateConnecting},
		{Next: types.StateRecording, Prev: types.StateIdle},
	}
	if !slices.Equal(got, want) {
		t.Errorf("changes = %v, want %v", got, want)
	}
}

func TestStoreStartRollsBackMic(t *testing.T) {
	mic := &mockMic{}
	s := newIdleStore(t, mic)
	mic.during = func(enabled bool) {
		if enabled {
			s.HandleDisconnected()
		}
	}

	if s.StartRecording(context.Background()) {
		t.Fatal("StartRecording succeeded after the state moved")
	}
	if got := s.State(); got != types.StateDisconnected {
		t.Errorf("state = %s, want disconnected", got)
	}
	if want := []bool{true, false}; !slices.Equal(mic.calls, want) {
		t.Errorf("mic calls = %v, want %v", mic.calls, want)
	}
}
