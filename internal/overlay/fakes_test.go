package overlay

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"go.aimuz.me/tambourine/internal/events"
	"go.aimuz.me/tambourine/internal/types"
	"go.aimuz.me/tambourine/rtvi"
)

// calls is a goroutine-safe call log.
type calls[T any] struct {
	mu   sync.Mutex
	list []T
}

func (c *calls[T]) add(v T) {
	c.mu.Lock()
	c.list = append(c.list, v)
	c.mu.Unlock()
}

func (c *calls[T]) get() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.list)
}

func (c *calls[T]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.list)
}

type fakeClient struct {
	handlers events.Registry[rtvi.EventName, rtvi.Event]

	connects    calls[string]
	disconnects calls[struct{}]
	mic         calls[bool]
	switched    calls[string]
	inits       calls[struct{}]

	mu                 sync.Mutex
	connectErr         error
	initErr            error
	connectedOnConnect bool
}

// Connect records the attempt. With connectedOnConnect set, a successful
// attempt emits Connected before returning, like the real client.
func (f *fakeClient) Connect(_ context.Context, endpoint string) error {
	f.connects.add(endpoint)
	f.mu.Lock()
	err, announce := f.connectErr, f.connectedOnConnect
	f.mu.Unlock()
	if err == nil && announce {
		f.emit(rtvi.EventConnected)
	}
	return err
}

func (f *fakeClient) Disconnect(context.Context) error {
	f.disconnects.add(struct{}{})
	return nil
}

func (f *fakeClient) EnableMic(_ context.Context, enabled bool) error {
	f.mic.add(enabled)
	return nil
}

func (f *fakeClient) UpdateMic(id string) error {
	f.switched.add(id)
	return nil
}

func (f *fakeClient) InitDevices(context.Context) error {
	f.inits.add(struct{}{})
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initErr
}

func (f *fakeClient) On(name rtvi.EventName, fn func(rtvi.Event)) func() {
	return f.handlers.On(name, fn)
}

func (f *fakeClient) emit(name rtvi.EventName) {
	f.handlers.Emit(name, rtvi.Event{Name: name})
}

func (f *fakeClient) message(data string) {
	f.handlers.Emit(rtvi.EventServerMessage, rtvi.Event{
		Name: rtvi.EventServerMessage,
		Data: []byte(data),
	})
}

func (f *fakeClient) setConnectErr(err error) {
	f.mu.Lock()
	f.connectErr = err
	f.mu.Unlock()
}

func (f *fakeClient) setConnectedOnConnect(on bool) {
	f.mu.Lock()
	f.connectedOnConnect = on
	f.mu.Unlock()
}

type fakeStore struct {
	mu    sync.Mutex
	state types.ConnectionState
	subs  events.Registry[string, [2]types.ConnectionState]
	calls calls[string]
}

func (f *fakeStore) State() types.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeStore) Subscribe(fn func(next, prev types.ConnectionState)) func() {
	return f.subs.On("change", func(c [2]types.ConnectionState) { fn(c[0], c[1]) })
}

// set moves to next without recording a call.
func (f *fakeStore) set(next types.ConnectionState) {
	f.mu.Lock()
	prev := f.state
	f.state = next
	f.mu.Unlock()
	if prev != next {
		f.subs.Emit("change", [2]types.ConnectionState{next, prev})
	}
}

func (f *fakeStore) move(call string, to types.ConnectionState, from ...types.ConnectionState) bool {
	f.calls.add(call)
	if len(from) > 0 && !slices.Contains(from, f.State()) {
		return false
	}
	f.set(to)
	return true
}

func (f *fakeStore) StartRecording(context.Context) bool {
	return f.move("start", types.StateRecording, types.StateIdle)
}

func (f *fakeStore) StopRecording() bool {
	return f.move("stop", types.StateProcessing, types.StateRecording)
}

func (f *fakeStore) HandleResponse() {
	f.move("response", types.StateIdle, types.StateRecording, types.StateProcessing)
}

func (f *fakeStore) HandleConnected() { f.move("connected", types.StateIdle) }

func (f *fakeStore) HandleDisconnected() { f.move("disconnected", types.StateDisconnected) }

type fakeSettings struct {
	mu        sync.Mutex
	settings  types.Settings
	serverURL string
}

func (f *fakeSettings) Settings() types.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

func (f *fakeSettings) ServerURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.serverURL
}

type fakeServer struct{ calls calls[string] }

func (f *fakeServer) SetPromptSections(_ context.Context, s types.CleanupPromptSections) error {
	f.calls.add("prompt:" + s.Main.Content)
	return nil
}

func (f *fakeServer) SetSTTProvider(_ context.Context, p string) error {
	f.calls.add("stt:" + p)
	return nil
}

func (f *fakeServer) SetLLMProvider(_ context.Context, p string) error {
	f.calls.add("llm:" + p)
	return nil
}

type fakeInjector struct {
	err   error
	typed calls[string]
}

func (f *fakeInjector) TypeText(_ context.Context, text string) error {
	f.typed.add(text)
	return f.err
}

type fakeHistory struct{ added calls[string] }

func (f *fakeHistory) Add(text string) (types.HistoryEntry, error) {
	f.added.add(text)
	return types.HistoryEntry{Text: text}, nil
}

type fakeShell struct {
	states  calls[types.ConnectionState]
	views   calls[View]
	drags   calls[string]
	sizes   calls[[2]int]
	hotkeys events.Registry[string, struct{}]
}

func (f *fakeShell) EmitConnectionState(s types.ConnectionState) { f.states.add(s) }

func (f *fakeShell) EmitView(v View) { f.views.add(v) }

func (f *fakeShell) OnStartRecording(fn func()) func() {
	return f.hotkeys.On("start", func(struct{}) { fn() })
}

func (f *fakeShell) OnStopRecording(fn func()) func() {
	return f.hotkeys.On("stop", func(struct{}) { fn() })
}

func (f *fakeShell) StartDragging() { f.drags.add("start") }

func (f *fakeShell) DragBy(dx, dy float64) { f.drags.add(fmt.Sprintf("by %g,%g", dx, dy)) }

func (f *fakeShell) EndDragging() { f.drags.add("end") }

func (f *fakeShell) ResizeOverlay(w, h int) { f.sizes.add([2]int{w, h}) }

func (f *fakeShell) press(hotkey string) { f.hotkeys.Emit(hotkey, struct{}{}) }

// ─────────────────────────────────────────────────────────────────────────────
// Harness
// ─────────────────────────────────────────────────────────────────────────────

type harness struct {
	clock    *clock.Mock
	client   *fakeClient
	store    *fakeStore
	settings *fakeSettings
	server   *fakeServer
	injector *fakeInjector
	history  *fakeHistory
	shell    *fakeShell
	ctrl     *Controller
	stop     func()
}

// newHarness starts a controller over fakes. opts run before the
// controller starts.
func newHarness(t *testing.T, settings *fakeSettings, opts ...func(*harness)) *harness {
	t.Helper()
	if settings == nil {
		settings = &fakeSettings{serverURL: "http://dictation.test"}
	}
	h := &harness{
		clock:    clock.NewMock(),
		client:   &fakeClient{},
		store:    &fakeStore{state: types.StateConnecting},
		settings: settings,
		server:   &fakeServer{},
		injector: &fakeInjector{},
		history:  &fakeHistory{},
		shell:    &fakeShell{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.ctrl = New(Deps{
		Client:   h.client,
		Store:    h.store,
		Settings: h.settings,
		Server:   h.server,
		Injector: h.injector,
		History:  h.history,
		Shell:    h.shell,
		Clock:    h.clock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx) }()
	h.stop = sync.OnceFunc(func() {
		cancel()
		<-done
	})
	t.Cleanup(h.stop)

	h.sync(t)
	return h
}

// query runs fn on the controller loop and waits for it.
func (h *harness) query(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	h.ctrl.post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("controller loop did not respond")
	}
}

func (h *harness) sync(t *testing.T) {
	t.Helper()
	h.query(t, func() {})
}

// setState moves the store and waits until the controller has seen it.
func (h *harness) setState(t *testing.T, s types.ConnectionState) {
	t.Helper()
	h.store.set(s)
	eventually(t, "controller sees "+string(s), func() bool { return h.ctrl.View().State == s })
}

// waitTimeoutArmed waits for the response timeout armed after a stop.
func (h *harness) waitTimeoutArmed(t *testing.T) {
	t.Helper()
	eventually(t, "response timeout armed", func() bool {
		var armed bool
		h.query(t, func() { armed = h.ctrl.timeout != nil })
		return armed
	})
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
