package rtvi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	opuscodec "github.com/jj11hh/opus"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"go.aimuz.me/tambourine/audiocapture"
)

const frameDuration = time.Second * audiocapture.FrameSamples / audiocapture.SampleRate

// session is one peer connection. Fields other than the hot path are
// guarded by Client.mu.
type session struct {
	// ─── Hot path (audio encoding) ───────────────────────────────────────────
	encMu        sync.Mutex
	enc          *opuscodec.Encoder
	track        *webrtc.TrackLocalStaticSample
	opusBuf      []byte
	trackStarted atomic.Bool

	// ─── Connection state ────────────────────────────────────────────────────
	endpoint string
	pc       *webrtc.PeerConnection
	dc       *webrtc.DataChannel
	pcID     string
	ready    bool
	attempts int

	// receives the outcome of the first open: nil or why it failed
	opened chan error
}

func newSession(endpoint string) *session {
	return &session{
		endpoint: endpoint,
		// Max Opus packet size
		opusBuf: make([]byte, 1275),
		opened:  make(chan error, 1),
	}
}

// settle records how the session's first open ended. Only the first
// outcome is kept.
func (s *session) settle(err error) {
	select {
	case s.opened <- err:
	default:
	}
}

// open builds the peer connection and runs the first offer/answer exchange.
func (c *Client) open(ctx context.Context, s *session) error {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return fmt.Errorf("register codecs: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: c.cfg.ICEServers}},
	})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: audiocapture.SampleRate,
			Channels:  2,
		},
		"audio",
		"tambourine-mic",
	)
	if err != nil {
		pc.Close()
		return fmt.Errorf("create audio track: %w", err)
	}

	sender, err := pc.AddTrack(track)
	if err != nil {
		pc.Close()
		return fmt.Errorf("add audio track: %w", err)
	}
	go drainRTCP(sender)

	// the server maps receivers by index: audio first, then video
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		return fmt.Errorf("add video transceiver: %w", err)
	}

	enc, err := opuscodec.NewEncoder(audiocapture.SampleRate, audiocapture.Channels, opuscodec.AppVoIP)
	if err != nil {
		pc.Close()
		return fmt.Errorf("create opus encoder: %w", err)
	}

	ordered := true
	dc, err := pc.CreateDataChannel("chat", &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return fmt.Errorf("create data channel: %w", err)
	}

	c.mu.Lock()
	s.pc = pc
	s.dc = dc
	s.track = track
	s.enc = enc
	c.mu.Unlock()

	dc.OnOpen(func() { c.handleOpen(s) })
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if c.current(s) {
			c.handleData(msg.Data)
		}
	})

	// remote audio is not played back
	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := remote.Read(buf); err != nil {
					return
				}
			}
		}()
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.handlePeerState(s, state)
	})

	return c.negotiate(ctx, s, false)
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// negotiate runs one offer/answer exchange. restart requests an ICE restart
// and asks the server to rebuild its side of the connection.
func (c *Client) negotiate(ctx context.Context, s *session, restart bool) error {
	var opts *webrtc.OfferOptions
	if restart {
		opts = &webrtc.OfferOptions{ICERestart: true}
	}

	offer, err := s.pc.CreateOffer(opts)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-webrtc.GatheringCompletePromise(s.pc):
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	pcID := s.pcID
	c.mu.Unlock()

	local := s.pc.LocalDescription()
	answer, err := SendOffer(ctx, c.cfg.HTTPClient, s.endpoint, Offer{
		SDP:       local.SDP,
		Type:      local.Type.String(),
		PCID:      pcID,
		RestartPC: restart,
	})
	if err != nil {
		return fmt.Errorf("exchange offer: %w", err)
	}

	typ := webrtc.NewSDPType(answer.Type)
	if typ == webrtc.SDPTypeUnknown {
		typ = webrtc.SDPTypeAnswer
	}
	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: answer.SDP}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	c.mu.Lock()
	s.pcID = answer.PCID
	c.mu.Unlock()
	slog.Debug("offer answered", "pc_id", answer.PCID, "restart", restart)
	return nil
}

func (c *Client) handleOpen(s *session) {
	c.mu.Lock()
	if c.session != s || s.ready {
		c.mu.Unlock()
		return
	}
	s.ready = true
	c.mu.Unlock()

	if msg, err := ClientReady(c.cfg.Version); err != nil {
		slog.Warn("build client-ready", "error", err)
	} else if err := s.dc.SendText(string(msg)); err != nil {
		slog.Warn("send client-ready", "error", err)
	}

	c.setState(TransportReady)
	slog.Info("connected")
	c.emit(Event{Name: EventConnected})
	s.settle(nil)
}

func (c *Client) handlePeerState(s *session, state webrtc.PeerConnectionState) {
	if !c.current(s) {
		return
	}
	slog.Debug("peer connection state", "state", state.String())

	switch state {
	case webrtc.PeerConnectionStateConnected:
		c.mu.Lock()
		s.attempts = 0
		ready := s.ready
		c.mu.Unlock()
		if ready {
			c.setState(TransportReady)
		} else {
			c.setState(TransportConnected)
		}

	case webrtc.PeerConnectionStateFailed:
		c.mu.Lock()
		ready := s.ready
		exhausted := s.attempts >= c.cfg.ReconnectAttempts
		if ready && !exhausted {
			s.attempts++
		}
		attempt := s.attempts
		c.mu.Unlock()

		switch {
		case !ready:
			s.settle(ErrPeerFailed)
			c.emit(Event{Name: EventError, Err: ErrPeerFailed})
			c.closeSession(s, false)
			c.setState(TransportError)
		case exhausted:
			slog.Warn("reconnection attempts exhausted", "attempts", attempt)
			c.closeSession(s, true)
		default:
			c.setState(TransportReconnecting)
			time.AfterFunc(c.cfg.ReconnectInterval, func() { c.restart(s, attempt) })
		}
	}
}

func (c *Client) restart(s *session, attempt int) {
	if !c.current(s) {
		return
	}
	slog.Info("reconnecting", "attempt", attempt, "max", c.cfg.ReconnectAttempts)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := c.negotiate(ctx, s, true); err != nil {
		slog.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
		c.handlePeerState(s, webrtc.PeerConnectionStateFailed)
	}
}

// writeFrame encodes one PCM frame onto the track. It reports true the first
// time audio reaches the track.
func (s *session) writeFrame(pcm []int16) bool {
	s.encMu.Lock()
	defer s.encMu.Unlock()

	if s.enc == nil || s.track == nil {
		return false
	}

	n, err := s.enc.Encode(pcm, s.opusBuf)
	if err != nil {
		slog.Warn("opus encode", "error", err)
		return false
	}

	// WriteSample copies the data internally
	if err := s.track.WriteSample(media.Sample{Data: s.opusBuf[:n], Duration: frameDuration}); err != nil {
		if !errors.Is(err, io.ErrClosedPipe) {
			slog.Debug("write sample", "error", err)
		}
		return false
	}
	return s.trackStarted.CompareAndSwap(false, true)
}

func (s *session) sendTrackStatus(enabled bool) error {
	if s.dc == nil || s.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNotConnected
	}
	msg, err := TrackStatus(enabled)
	if err != nil {
		return err
	}
	return s.dc.SendText(string(msg))
}

func (s *session) close() {
	s.encMu.Lock()
	s.enc = nil
	s.encMu.Unlock()

	if s.dc != nil {
		_ = s.dc.Close()
	}
	if s.pc != nil {
		if err := s.pc.Close(); err != nil {
			slog.Debug("close peer connection", "error", err)
		}
	}
}
