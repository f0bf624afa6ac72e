// Package rtvi is a real-time voice client for the dictation server. It
// streams the microphone over WebRTC and exchanges RTVI messages on a data
// channel, using the SmallWebRTC offer/answer endpoint for signalling.
package rtvi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"go.aimuz.me/tambourine/audiocapture"
	"go.aimuz.me/tambourine/internal/events"
	"go.aimuz.me/tambourine/internal/types"
)

// Sentinel errors.
var (
	ErrNotConnected     = errors.New("rtvi: not connected")
	ErrAlreadyConnected = errors.New("rtvi: already connected")
	ErrNoAudioSource    = errors.New("rtvi: no audio source")
	ErrPeerFailed       = errors.New("rtvi: peer connection failed")
)

// AudioSource is the microphone feeding the send track.
type AudioSource interface {
	Devices() ([]types.Microphone, error)
	SetDevice(id string) error
	Start(handler audiocapture.FrameHandler) error
	Stop() error
}

// Config holds configuration for the client.
type Config struct {
	ICEServers        []string
	HTTPClient        *http.Client
	ConnectTimeout    time.Duration // bounds Connect until the data channel opens
	ReconnectAttempts int           // built-in attempts after the peer fails
	ReconnectInterval time.Duration // delay between built-in attempts
	Version           string        // reported in client-ready
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		ICEServers:        []string{"stun:stun.l.google.com:19302"},
		ConnectTimeout:    30 * time.Second,
		ReconnectAttempts: 3,
		ReconnectInterval: time.Second,
		Version:           "dev",
	}
}

// Client is a single-connection RTVI client. It is safe for concurrent use;
// handlers run on the goroutine that produced the event.
type Client struct {
	cfg    Config
	source AudioSource
	events events.Registry[EventName, Event]

	mu          sync.Mutex
	session     *session
	state       TransportState
	micEnabled  bool
	devices     []types.Microphone
	selectedMic string
}

// NewClient creates a client that captures from source.
func NewClient(cfg Config, source AudioSource) *Client {
	def := DefaultConfig()
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = def.ICEServers
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.ReconnectAttempts == 0 {
		cfg.ReconnectAttempts = def.ReconnectAttempts
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = def.ReconnectInterval
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	return &Client{
		cfg:    cfg,
		source: source,
		state:  TransportDisconnected,
	}
}

// On registers fn for the named event and returns a function removing it.
func (c *Client) On(name EventName, fn func(Event)) func() {
	return c.events.On(name, fn)
}

func (c *Client) emit(e Event) {
	c.events.Emit(e.Name, e)
}

// State returns the transport state.
func (c *Client) State() TransportState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s TransportState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	c.emit(Event{Name: EventTransportStateChanged, State: s})
}

// ─────────────────────────────────────────────────────────────────────────────
// Connection
// ─────────────────────────────────────────────────────────────────────────────

// Connect negotiates a peer connection through the offer endpoint and waits
// for the data channel. It returns nil only after Connected was emitted; a
// peer that fails first, ConnectTimeout or ctx end the attempt with an error.
func (c *Client) Connect(ctx context.Context, endpoint string) error {
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	s := newSession(endpoint)
	c.session = s
	c.mu.Unlock()

	c.setState(TransportConnecting)
	slog.Info("connecting", "endpoint", endpoint)

	if err := c.open(ctx, s); err != nil {
		c.closeSession(s, false)
		c.setState(TransportError)
		return fmt.Errorf("connect: %w", err)
	}
	if err := c.awaitOpen(ctx, s); err != nil {
		// a Disconnect in the meantime already tore the session down
		if c.current(s) {
			c.closeSession(s, false)
			c.setState(TransportError)
		}
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// awaitOpen waits until the data channel of s opens or s fails.
func (c *Client) awaitOpen(ctx context.Context, s *session) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	select {
	case err := <-s.opened:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the connection. Disconnected is emitted if the client
// was connected. Calling it when not connected is a no-op.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return nil
	}

	c.setState(TransportDisconnecting)
	c.closeSession(s, true)
	return nil
}

// Connected reports whether the data channel is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil && c.session.ready
}

func (c *Client) current(s *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session == s
}

// closeSession tears s down if it is still the active session.
func (c *Client) closeSession(s *session, notify bool) {
	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}
	c.session = nil
	wasReady := s.ready
	micOn := c.micEnabled
	c.micEnabled = false
	c.mu.Unlock()

	s.settle(ErrNotConnected)
	if micOn && c.source != nil {
		if err := c.source.Stop(); err != nil {
			slog.Warn("stop microphone", "error", err)
		}
	}
	s.close()

	c.setState(TransportDisconnected)
	if wasReady && notify {
		slog.Info("disconnected")
		c.emit(Event{Name: EventDisconnected})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Microphone
// ─────────────────────────────────────────────────────────────────────────────

// EnableMic starts or stops streaming the microphone and tells the server
// whether the track is live. Disabling while not connected only stops capture.
func (c *Client) EnableMic(ctx context.Context, enabled bool) error {
	if c.source == nil {
		return ErrNoAudioSource
	}

	c.mu.Lock()
	s := c.session
	if enabled && (s == nil || !s.ready) {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.micEnabled == enabled {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if enabled {
		if err := c.source.Start(c.frameHandler(s)); err != nil {
			err = fmt.Errorf("start microphone: %w", err)
			c.emit(Event{Name: EventDeviceError, Err: err})
			return err
		}
	} else if err := c.source.Stop(); err != nil {
		slog.Warn("stop microphone", "error", err)
	}

	c.mu.Lock()
	c.micEnabled = enabled
	c.mu.Unlock()

	if s != nil {
		if err := s.sendTrackStatus(enabled); err != nil {
			slog.Debug("send track status", "error", err)
		}
	}
	return nil
}

// MicEnabled reports whether the microphone is streaming.
func (c *Client) MicEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.micEnabled
}

func (c *Client) frameHandler(s *session) audiocapture.FrameHandler {
	return func(pcm []int16) {
		if s.writeFrame(pcm) {
			c.emit(Event{Name: EventTrackStarted})
		}
	}
}

// InitDevices enumerates capture devices. Failures emit DeviceError.
func (c *Client) InitDevices(ctx context.Context) error {
	if c.source == nil {
		c.emit(Event{Name: EventDeviceError, Err: ErrNoAudioSource})
		return ErrNoAudioSource
	}

	mics, err := c.source.Devices()
	if err != nil {
		err = fmt.Errorf("list microphones: %w", err)
		c.emit(Event{Name: EventDeviceError, Err: err})
		return err
	}

	c.mu.Lock()
	c.devices = mics
	c.mu.Unlock()
	slog.Debug("devices ready", "count", len(mics))
	return nil
}

// Devices returns the microphones found by InitDevices.
func (c *Client) Devices() []types.Microphone {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.devices)
}

// SelectedMic returns the id passed to the last successful UpdateMic.
func (c *Client) SelectedMic() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedMic
}

// UpdateMic switches the capture device, restarting capture if it is live.
func (c *Client) UpdateMic(deviceID string) error {
	if c.source == nil {
		return ErrNoAudioSource
	}
	if err := c.source.SetDevice(deviceID); err != nil {
		err = fmt.Errorf("select microphone: %w", err)
		c.emit(Event{Name: EventDeviceError, Err: err})
		return err
	}

	c.mu.Lock()
	c.selectedMic = deviceID
	live := c.micEnabled
	s := c.session
	c.mu.Unlock()

	if live && s != nil {
		if err := c.source.Stop(); err != nil {
			slog.Warn("stop microphone", "error", err)
		}
		if err := c.source.Start(c.frameHandler(s)); err != nil {
			err = fmt.Errorf("restart microphone: %w", err)
			c.emit(Event{Name: EventDeviceError, Err: err})
			return err
		}
	}

	c.emit(Event{Name: EventMicUpdated, DeviceID: deviceID})
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Data channel
// ─────────────────────────────────────────────────────────────────────────────

func (c *Client) handleData(raw []byte) {
	env, ok, err := ParseEnvelope(raw)
	if err != nil {
		slog.Debug("ignore data channel message", "error", err)
		return
	}
	if !ok {
		slog.Debug("ignore non-rtvi message", "data", string(raw))
		return
	}

	switch env.Type {
	case TypeServerMessage:
		c.emit(Event{Name: EventServerMessage, Data: env.Data})
	case TypeUserStartedSpeaking:
		c.emit(Event{Name: EventUserStartedSpeaking})
	case TypeUserStoppedSpeaking:
		c.emit(Event{Name: EventUserStoppedSpeaking})
	case TypeError, TypeErrorResponse:
		c.emit(Event{Name: EventError, Err: parseError(env.Data)})
	case TypeBotReady:
		slog.Info("bot ready")
	default:
		slog.Debug("unhandled rtvi message", "type", env.Type)
	}
}
