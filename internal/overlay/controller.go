// Package overlay coordinates the floating dictation indicator.
//
// The Controller binds real-time client events, the recording store, hotkeys
// and pointer input to store actions and side effects. All of its handler
// logic runs on the goroutine that calls Run; blocking work runs elsewhere and
// posts its completion back.
package overlay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"

	"go.aimuz.me/tambourine/internal/events"
	"go.aimuz.me/tambourine/internal/gesture"
	"go.aimuz.me/tambourine/internal/types"
	"go.aimuz.me/tambourine/rtvi"
)

// ResponseTimeout bounds how long the overlay waits in processing for a
// server message after recording stops.
const ResponseTimeout = 10 * time.Second

// OfferPath is appended to the server URL to form the signaling endpoint.
const OfferPath = "/api/offer"

// ErrRunning is returned by Run when the controller is already running.
var ErrRunning = errors.New("overlay: controller already running")

// Client is the real-time transport the overlay drives.
type Client interface {
	Connect(ctx context.Context, endpoint string) error
	Disconnect(ctx context.Context) error
	EnableMic(ctx context.Context, enabled bool) error
	UpdateMic(deviceID string) error
	InitDevices(ctx context.Context) error
	On(name rtvi.EventName, fn func(rtvi.Event)) func()
}

// Store owns the connection/recording state.
type Store interface {
	State() types.ConnectionState
	Subscribe(fn func(next, prev types.ConnectionState)) func()
	StartRecording(ctx context.Context) bool
	StopRecording() bool
	HandleResponse()
	HandleConnected()
	HandleDisconnected()
}

// Settings is the read side of the user configuration.
type Settings interface {
	Settings() types.Settings
	ServerURL() string
}

// ServerConfig pushes preferences to the dictation server.
type ServerConfig interface {
	SetPromptSections(ctx context.Context, sections types.CleanupPromptSections) error
	SetSTTProvider(ctx context.Context, provider string) error
	SetLLMProvider(ctx context.Context, provider string) error
}

// Injector types text into the focused application.
type Injector interface {
	TypeText(ctx context.Context, text string) error
}

// History records injected text.
type History interface {
	Add(text string) (types.HistoryEntry, error)
}

// Shell is the desktop side: windows, hotkeys and broadcasts.
type Shell interface {
	EmitConnectionState(state types.ConnectionState)
	EmitView(view View)
	OnStartRecording(fn func()) func()
	OnStopRecording(fn func()) func()
	StartDragging()
	DragBy(dx, dy float64)
	EndDragging()
	ResizeOverlay(width, height int)
}

// Deps are the collaborators of a Controller. Clock and Backoff are optional.
type Deps struct {
	Client   Client
	Store    Store
	Settings Settings
	Server   ServerConfig
	Injector Injector
	History  History
	Shell    Shell

	Clock   clock.Clock
	Backoff func() backoff.BackOff
}

// Controller is the overlay coordinator. Create it with New and start it with Run.
type Controller struct {
	client   Client
	store    Store
	settings Settings
	server   ServerConfig
	injector Injector
	history  History
	shell    Shell
	clock    clock.Clock

	inbox   mailbox
	running atomic.Bool
	ctx     context.Context
	scope   events.Scope

	// Everything below is owned by the loop goroutine.
	state          types.ConnectionState
	serverURL      string
	connectStarted bool
	everConnected  bool
	connected      bool
	devicesReady   bool

	timeout    *clock.Timer
	timeoutGen uint64

	retry        backoff.BackOff
	retryTimer   *clock.Timer
	retryGen     uint64
	retryPending bool

	pointer  gesture.Recognizer
	lastSize [2]int

	viewMu sync.RWMutex
	view   View
}

// New returns a Controller wired to deps.
func New(deps Deps) *Controller {
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	newBackoff := deps.Backoff
	if newBackoff == nil {
		newBackoff = ReconnectBackoff
	}
	c := &Controller{
		client:   deps.Client,
		store:    deps.Store,
		settings: deps.Settings,
		server:   deps.Server,
		injector: deps.Injector,
		history:  deps.History,
		shell:    deps.Shell,
		clock:    clk,
		retry:    newBackoff(),
	}
	c.inbox.notify = make(chan struct{}, 1)
	c.view = View{State: types.StateConnecting}
	return c
}

// Run mounts the controller and processes events until ctx is done.
// On return every subscription is released, timers are stopped and the
// client is disconnected.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	c.ctx = ctx

	c.mount()
	defer c.unmount()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.inbox.notify:
			for _, fn := range c.inbox.drain() {
				fn()
			}
		}
	}
}

func (c *Controller) mount() {
	c.setState(c.store.State())
	c.scope.Add(c.store.Subscribe(func(next, _ types.ConnectionState) {
		c.post(func() { c.setState(next) })
	}))

	c.bindClient()

	c.scope.Add(c.shell.OnStartRecording(func() { c.post(c.startRecording) }))
	c.scope.Add(c.shell.OnStopRecording(func() { c.post(c.stopRecording) }))

	go c.initDevices()

	c.serverURL = c.settings.ServerURL()
	c.connect()
}

func (c *Controller) unmount() {
	c.scope.Close()
	c.inbox.close()
	c.clearTimeout()
	c.cancelRetry()
	c.pointer.Reset()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.client.Disconnect(ctx); err != nil {
		slog.Warn("disconnect on shutdown", "error", err)
	}
}

// post schedules fn on the loop goroutine. It never blocks.
func (c *Controller) post(fn func()) { c.inbox.push(fn) }

// setState records a state delivered by the store subscription and
// broadcasts it.
func (c *Controller) setState(next types.ConnectionState) {
	c.state = next
	c.publish()
	c.shell.EmitConnectionState(next)
}

// initDevices enumerates microphones and applies the saved selection.
// Devices count as ready even when enumeration fails.
func (c *Controller) initDevices() {
	if err := c.client.InitDevices(c.ctx); err != nil {
		slog.Error("init audio devices", "error", err)
	}
	if selected := c.settings.Settings().SelectedMicID; selected != "" {
		if err := c.client.UpdateMic(selected); err != nil {
			slog.Warn("apply selected microphone", "id", selected, "error", err)
		}
	}
	c.post(func() {
		c.devicesReady = true
		c.publish()
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Recording
// ─────────────────────────────────────────────────────────────────────────────

func (c *Controller) startRecording() {
	go func() {
		if !c.store.StartRecording(c.ctx) {
			slog.Debug("start recording ignored")
		}
	}()
}

// stopRecording runs off the loop: disabling the microphone blocks on
// device teardown. The timeout is armed once the store agrees.
func (c *Controller) stopRecording() {
	go func() {
		if c.store.StopRecording() {
			c.post(c.armTimeout)
		}
	}()
}

func (c *Controller) armTimeout() {
	c.clearTimeout()
	gen := c.timeoutGen
	c.timeout = c.clock.AfterFunc(ResponseTimeout, func() {
		c.post(func() { c.responseTimedOut(gen) })
	})
}

// clearTimeout stops the response timer and invalidates a callback that
// already fired but has not run yet.
func (c *Controller) clearTimeout() {
	if c.timeout != nil {
		c.timeout.Stop()
		c.timeout = nil
	}
	c.timeoutGen++
}

func (c *Controller) responseTimedOut(gen uint64) {
	if gen != c.timeoutGen {
		return
	}
	c.timeout = nil
	if c.state != types.StateProcessing {
		return
	}
	slog.Warn("no response from server, returning to idle", "after", ResponseTimeout)
	c.store.HandleResponse()
}

// ─────────────────────────────────────────────────────────────────────────────
// Mailbox
// ─────────────────────────────────────────────────────────────────────────────

// mailbox is an unbounded FIFO of closures for the loop goroutine. Handlers
// that run on the loop may post to it without deadlocking.
type mailbox struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	notify chan struct{}
}

func (m *mailbox) push(fn func()) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, fn)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queue
	m.queue = nil
	return q
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.mu.Unlock()
}
