package overlay

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"go.aimuz.me/tambourine/internal/events"
	"go.aimuz.me/tambourine/internal/types"
	"go.aimuz.me/tambourine/rtvi"
)

// Reconnect policy applied after the client gives up on its own.
const (
	ReconnectInitialDelay = 3 * time.Second
	ReconnectMaxDelay     = 60 * time.Second
	MaxReconnectAttempts  = 8
)

// ReconnectBackoff returns the reconnect policy: 3s, doubling up to 60s,
// at most MaxReconnectAttempts attempts, no jitter.
func ReconnectBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = ReconnectInitialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = ReconnectMaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, MaxReconnectAttempts)
}

// SetServerURL records a server URL chosen after startup. It triggers the
// initial connect if that has not happened yet.
func (c *Controller) SetServerURL(url string) {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	c.post(func() {
		c.serverURL = url
		c.connect()
	})
}

// Reconnect drops the current connection and connects again now, resetting
// the reconnect policy.
func (c *Controller) Reconnect() {
	c.post(func() {
		c.cancelRetry()
		c.retry.Reset()
		if c.serverURL == "" {
			slog.Warn("reconnect requested without server url")
			return
		}
		c.connectStarted = true
		c.retryPending = true
		c.reconnect(c.retryGen)
	})
}

// connect performs the one initial connect once a server URL is known.
func (c *Controller) connect() {
	if c.connectStarted || c.serverURL == "" {
		return
	}
	c.connectStarted = true

	endpoint := c.serverURL + OfferPath
	go func() {
		slog.Info("connecting to server", "endpoint", endpoint)
		if err := c.client.Connect(c.ctx, endpoint); err != nil {
			slog.Error("initial connection failed", "endpoint", endpoint, "error", err)
		}
	}()
}

func (c *Controller) scheduleReconnect() {
	if c.retryPending {
		return
	}
	delay := c.retry.NextBackOff()
	if delay == backoff.Stop {
		slog.Error("giving up reconnecting", "attempts", MaxReconnectAttempts)
		return
	}

	c.retryPending = true
	c.retryGen++
	gen := c.retryGen
	slog.Info("client gave up, retrying", "in", delay)
	c.retryTimer = c.clock.AfterFunc(delay, func() {
		c.post(func() { c.reconnect(gen) })
	})
}

// reconnect resets the client and connects again. A failed attempt
// schedules the next one.
func (c *Controller) reconnect(gen uint64) {
	if gen != c.retryGen {
		return
	}
	c.retryTimer = nil

	endpoint := c.serverURL + OfferPath
	go func() {
		if err := c.client.Disconnect(c.ctx); err != nil {
			slog.Warn("reset client before reconnect", "error", err)
		}
		slog.Info("attempting to reconnect", "endpoint", endpoint)
		err := c.client.Connect(c.ctx, endpoint)
		c.post(func() { c.reconnectDone(gen, err) })
	}()
}

func (c *Controller) reconnectDone(gen uint64, err error) {
	if gen != c.retryGen {
		return
	}
	c.retryPending = false
	switch {
	case errors.Is(err, context.Canceled):
	case err != nil:
		slog.Error("reconnection attempt failed", "error", err)
		c.scheduleReconnect()
	case !c.connected:
		// Connected is posted before the attempt completes
		slog.Error("reconnection attempt ended without a session")
		c.scheduleReconnect()
	}
}

func (c *Controller) cancelRetry() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.retryGen++
	c.retryPending = false
}

// ─────────────────────────────────────────────────────────────────────────────
// Client events
// ─────────────────────────────────────────────────────────────────────────────

func (c *Controller) bindClient() {
	on := func(name rtvi.EventName, fn func(rtvi.Event)) {
		events.Bind[rtvi.EventName, rtvi.Event](&c.scope, c.client, name, func(e rtvi.Event) {
			c.post(func() { fn(e) })
		})
	}

	on(rtvi.EventConnected, func(rtvi.Event) { c.onConnected() })
	on(rtvi.EventDisconnected, func(rtvi.Event) { c.onDisconnected() })
	on(rtvi.EventServerMessage, c.onServerMessage)
	on(rtvi.EventMicUpdated, func(e rtvi.Event) {
		slog.Info("microphone updated", "id", e.DeviceID)
	})
	on(rtvi.EventTrackStarted, func(rtvi.Event) {
		slog.Debug("audio track started")
	})
	on(rtvi.EventUserStartedSpeaking, func(rtvi.Event) {
		slog.Debug("user started speaking")
	})
	on(rtvi.EventUserStoppedSpeaking, func(rtvi.Event) {
		slog.Debug("user stopped speaking")
	})
	on(rtvi.EventError, func(e rtvi.Event) {
		slog.Error("client error", "error", e.Err)
	})
	on(rtvi.EventDeviceError, func(e rtvi.Event) {
		slog.Error("device error", "id", e.DeviceID, "error", e.Err)
	})
	on(rtvi.EventTransportStateChanged, func(e rtvi.Event) {
		slog.Debug("transport state changed", "state", e.State)
	})
}

func (c *Controller) onConnected() {
	slog.Info("connected to server")
	c.everConnected = true
	c.connected = true
	c.retry.Reset()
	c.store.HandleConnected()
	c.pushSettings(c.settings.Settings())
}

func (c *Controller) onDisconnected() {
	slog.Info("disconnected from server")
	c.connected = false

	if c.state == types.StateRecording || c.state == types.StateProcessing {
		slog.Warn("disconnected during recording", "state", c.state)
		go func() { _ = c.client.EnableMic(c.ctx, false) }()
	}
	c.store.HandleDisconnected()

	if c.everConnected && c.serverURL != "" {
		c.scheduleReconnect()
	}
}

func (c *Controller) onServerMessage(e rtvi.Event) {
	msg, err := rtvi.ParseServerMessage(e.Data)
	if err != nil {
		slog.Debug("ignoring server message", "data", string(e.Data))
		return
	}

	switch m := msg.(type) {
	case rtvi.Transcript:
		c.clearTimeout()
		go c.deliver(m.Text)
	case rtvi.RecordingComplete:
		if m.HasContent {
			return
		}
		c.clearTimeout()
		slog.Info("recording complete with no content")
		c.store.HandleResponse()
	}
}

// deliver types text into the focused application, records it and returns
// the overlay to idle whether or not typing worked.
func (c *Controller) deliver(text string) {
	if err := c.injector.TypeText(c.ctx, text); err != nil {
		slog.Error("type text", "error", err)
	}
	go func() {
		if _, err := c.history.Add(text); err != nil {
			slog.Warn("add history entry", "error", err)
		}
	}()
	c.post(c.store.HandleResponse)
}

// ─────────────────────────────────────────────────────────────────────────────
// Settings
// ─────────────────────────────────────────────────────────────────────────────

// SettingsChanged applies saved settings: changed server-side preferences
// are pushed when connected and a changed microphone is switched to.
func (c *Controller) SettingsChanged(prev, next types.Settings) {
	c.post(func() {
		if c.connected {
			var changed types.Settings
			if !sameSections(prev.CleanupPromptSections, next.CleanupPromptSections) {
				changed.CleanupPromptSections = next.CleanupPromptSections
			}
			if prev.STTProvider != next.STTProvider {
				changed.STTProvider = next.STTProvider
			}
			if prev.LLMProvider != next.LLMProvider {
				changed.LLMProvider = next.LLMProvider
			}
			c.pushSettings(changed)
		}

		if next.SelectedMicID != prev.SelectedMicID && c.devicesReady {
			id := next.SelectedMicID
			go func() {
				if err := c.client.UpdateMic(id); err != nil {
					slog.Warn("switch microphone", "id", id, "error", err)
				}
			}()
		}
	})
}

// pushSettings sends each present preference as its own request.
func (c *Controller) pushSettings(s types.Settings) {
	if s.CleanupPromptSections != nil {
		sections := *s.CleanupPromptSections
		c.mutate("prompt sections", func(ctx context.Context) error {
			return c.server.SetPromptSections(ctx, sections)
		})
	}
	if s.STTProvider != "" {
		c.mutate("stt provider", func(ctx context.Context) error {
			return c.server.SetSTTProvider(ctx, s.STTProvider)
		})
	}
	if s.LLMProvider != "" {
		c.mutate("llm provider", func(ctx context.Context) error {
			return c.server.SetLLMProvider(ctx, s.LLMProvider)
		})
	}
}

func (c *Controller) mutate(setting string, fn func(context.Context) error) {
	go func() {
		if err := fn(c.ctx); err != nil {
			slog.Warn("push setting to server", "setting", setting, "error", err)
		}
	}()
}

func sameSections(a, b *types.CleanupPromptSections) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
