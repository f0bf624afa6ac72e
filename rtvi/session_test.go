package rtvi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

// offerLog records offers posted to a test signalling endpoint that always
// rejects them.
type offerLog struct {
	mu     sync.Mutex
	offers []Offer
}

func (l *offerLog) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var o Offer
	if err := json.NewDecoder(r.Body).Decode(&o); err == nil {
		l.mu.Lock()
		l.offers = append(l.offers, o)
		l.mu.Unlock()
	}
	http.Error(w, "peer connection not found", http.StatusNotFound)
}

func (l *offerLog) get() []Offer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.offers)
}

// newPeerSession returns a session over a local peer connection that has
// made its first offer, so renegotiation works without a remote side.
func newPeerSession(t *testing.T, endpoint string) *session {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("new peer connection: %v", err)
	}
	t.Cleanup(func() { pc.Close() })

	dc, err := pc.CreateDataChannel("chat", nil)
	if err != nil {
		t.Fatalf("create data channel: %v", err)
	}

	// an ICE restart needs the agent started by a first local description
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		t.Fatalf("set local description: %v", err)
	}
	<-webrtc.GatheringCompletePromise(pc)

	s := newSession(endpoint)
	s.pc = pc
	s.dc = dc
	return s
}

func (r *recorder) count(name EventName) int {
	var n int
	for _, got := range r.names() {
		if got == name {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPeerFailureRestartsThenDisconnects(t *testing.T) {
	rejecting := &offerLog{}
	srv := httptest.NewServer(rejecting)
	defer srv.Close()

	c := NewClient(Config{
		HTTPClient:        srv.Client(),
		ReconnectInterval: time.Millisecond,
	}, &fakeSource{})
	r := record(c)

	s := newPeerSession(t, srv.URL+"/api/offer")
	s.ready = true
	s.pcID = "pc-1"
	c.session = s
	c.state = TransportReady

	c.handlePeerState(s, webrtc.PeerConnectionStateFailed)
	waitFor(t, "disconnected", func() bool { return r.count(EventDisconnected) > 0 })

	offers := rejecting.get()
	if len(offers) != DefaultConfig().ReconnectAttempts {
		t.Fatalf("renegotiations = %d, want %d", len(offers), DefaultConfig().ReconnectAttempts)
	}
	for i, o := range offers {
		if !o.RestartPC || o.PCID != "pc-1" || o.Type != "offer" {
			t.Errorf("offer %d = restart_pc:%v pc_id:%q type:%q", i, o.RestartPC, o.PCID, o.Type)
		}
	}

	time.Sleep(20 * time.Millisecond)
	if n := r.count(EventDisconnected); n != 1 {
		t.Errorf("Disconnected emitted %d times, want 1", n)
	}
	if c.Connected() || c.State() != TransportDisconnected {
		t.Errorf("connected=%v state=%s after giving up", c.Connected(), c.State())
	}
}

func TestPeerRecoveryResetsAttempts(t *testing.T) {
	c := NewClient(Config{}, &fakeSource{})
	s := &session{ready: true, attempts: 2}
	c.session = s

	c.handlePeerState(s, webrtc.PeerConnectionStateConnected)

	if s.attempts != 0 {
		t.Errorf("attempts = %d after recovery, want 0", s.attempts)
	}
	if c.State() != TransportReady {
		t.Errorf("State = %s, want ready", c.State())
	}
}

func TestPeerFailureBeforeReady(t *testing.T) {
	c := NewClient(Config{}, &fakeSource{})
	r := record(c)
	s := newSession("http://dictation.test/api/offer")
	c.session = s

	c.handlePeerState(s, webrtc.PeerConnectionStateFailed)

	if got := r.count(EventError); got != 1 {
		t.Errorf("Error emitted %d times, want 1", got)
	}
	if got := r.count(EventDisconnected); got != 0 {
		t.Errorf("Disconnected emitted %d times before ready", got)
	}
	if c.State() != TransportError || c.current(s) {
		t.Errorf("state=%s current=%v, want error and torn down", c.State(), c.current(s))
	}

	// a Connect waiting on this session fails instead of returning nil
	if err := c.awaitOpen(context.Background(), s); !errors.Is(err, ErrPeerFailed) {
		t.Errorf("awaitOpen = %v, want ErrPeerFailed", err)
	}
}

func TestAwaitOpen(t *testing.T) {
	tests := []struct {
		name   string
		settle func(c *Client, s *session)
		want   error
	}{
		{
			name:   "opened",
			settle: func(_ *Client, s *session) { s.settle(nil) },
		},
		{
			name:   "disconnected while waiting",
			settle: func(c *Client, _ *session) { c.Disconnect(context.Background()) },
			want:   ErrNotConnected,
		},
		{
			name:   "never opens",
			settle: func(*Client, *session) {},
			want:   context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(Config{ConnectTimeout: 20 * time.Millisecond}, &fakeSource{})
			s := newSession("http://dictation.test/api/offer")
			c.session = s

			tt.settle(c, s)
			err := c.awaitOpen(context.Background(), s)
			if tt.want == nil && err != nil {
				t.Errorf("awaitOpen = %v, want nil", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("awaitOpen = %v, want %v", err, tt.want)
			}
		})
	}
}
