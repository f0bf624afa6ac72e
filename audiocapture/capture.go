// Package audiocapture provides microphone capture using miniaudio.
package audiocapture

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"go.aimuz.me/tambourine/internal/types"
)

const (
	// SampleRate is the capture rate; Opus runs natively at 48 kHz.
	SampleRate = 48000
	// Channels is the capture channel count.
	Channels = 1
	// FrameSamples is one 20 ms frame at SampleRate.
	FrameSamples = SampleRate / 50
)

var (
	// ErrRunning is returned when starting a capture that is already running.
	ErrRunning = errors.New("audiocapture: already running")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("audiocapture: closed")
)

// FrameHandler receives mono PCM frames of FrameSamples samples.
// The slice is reused after the handler returns.
type FrameHandler func(pcm []int16)

// Capturer records from one microphone at a time.
type Capturer struct {
	mu       sync.Mutex
	ctx      *malgo.AllocatedContext
	dev      *malgo.Device
	deviceID string
	framer   *Framer
	closed   bool
}

// New initialises the audio backend.
func New() (*Capturer, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &Capturer{ctx: ctx}, nil
}

// Devices lists capture devices.
func (c *Capturer) Devices() ([]types.Microphone, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	devices, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}

	mics := make([]types.Microphone, 0, len(devices))
	for _, d := range devices {
		id := d.ID
		mics = append(mics, types.Microphone{
			ID:        hex.EncodeToString(id[:]),
			Name:      d.Name(),
			IsDefault: d.IsDefault != 0,
		})
	}
	return mics, nil
}

// SetDevice selects the microphone used by the next Start. An empty id
// selects the system default.
func (c *Capturer) SetDevice(id string) error {
	if id != "" {
		if _, err := hex.DecodeString(id); err != nil {
			return fmt.Errorf("invalid device id: %w", err)
		}
	}
	c.mu.Lock()
	c.deviceID = id
	c.mu.Unlock()
	return nil
}

// Device returns the selected device id.
func (c *Capturer) Device() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
}

// Start opens the selected device and delivers 20 ms frames to handler.
func (c *Capturer) Start(handler FrameHandler) error {
	if handler == nil {
		return errors.New("audiocapture: nil handler")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.dev != nil {
		return ErrRunning
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = Channels
	cfg.SampleRate = SampleRate

	if c.deviceID != "" {
		idBytes, err := hex.DecodeString(c.deviceID)
		if err != nil {
			return fmt.Errorf("invalid device id: %w", err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		cfg.Capture.DeviceID = devID.Pointer()
	}

	framer := NewFramer(FrameSamples, handler)
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			framer.Write(in)
		},
	}

	dev, err := malgo.InitDevice(c.ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}

	c.dev = dev
	c.framer = framer
	return nil
}

// Stop closes the device. It is safe to call when not running.
func (c *Capturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Capturer) stopLocked() error {
	if c.dev == nil {
		return nil
	}
	err := c.dev.Stop()
	c.dev.Uninit()
	c.dev = nil
	c.framer = nil
	return err
}

// Running reports whether capture is active.
func (c *Capturer) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev != nil
}

// Close stops capture and releases the audio backend.
func (c *Capturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.stopLocked()
	_ = c.ctx.Uninit()
	c.ctx.Free()
	return err
}

// Framer turns little-endian S16 byte chunks of any size into fixed-size
// sample frames.
type Framer struct {
	mu      sync.Mutex
	frame   []int16
	n       int
	odd     []byte
	handler FrameHandler
}

// NewFramer returns a Framer emitting frames of size samples.
func NewFramer(size int, handler FrameHandler) *Framer {
	return &Framer{frame: make([]int16, size), handler: handler}
}

// Write consumes raw PCM bytes and calls the handler once per full frame.
func (f *Framer) Write(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.odd) > 0 {
		b = append(f.odd, b...)
		f.odd = nil
	}
	for len(b) >= 2 {
		f.frame[f.n] = int16(binary.LittleEndian.Uint16(b))
		f.n++
		b = b[2:]
		if f.n == len(f.frame) {
			f.handler(f.frame)
			f.n = 0
		}
	}
	if len(b) == 1 {
		f.odd = []byte{b[0]}
	}
}

// Buffered returns the number of samples waiting for a full frame.
func (f *Framer) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}
