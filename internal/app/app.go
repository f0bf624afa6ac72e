// Package app provides the core application service for Wails bindings.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/wailsapp/wails/v3/pkg/application"

	"go.aimuz.me/tambourine/clipboard"
	"go.aimuz.me/tambourine/config"
	"go.aimuz.me/tambourine/history"
	"go.aimuz.me/tambourine/hotkey"
	"go.aimuz.me/tambourine/internal/overlay"
	"go.aimuz.me/tambourine/internal/types"
	"go.aimuz.me/tambourine/recording"
	"go.aimuz.me/tambourine/rtvi"
	"go.aimuz.me/tambourine/serverapi"
)

const requestTimeout = 10 * time.Second

// Service provides application functionality bound to Wails.
// This struct focuses on orchestration; behaviour lives in the overlay
// controller and the packages it drives.
type Service struct {
	cfg     *config.Config
	history *notifyingHistory
	store   *recording.Store
	client  *rtvi.Client
	server  *serverapi.Client
	hotkey  *hotkey.Manager
	overlay *overlay.Controller

	// UI references - set via Init
	app    *application.App
	window application.Window

	closeHistory func()
	closeMic     func()
	stop         context.CancelFunc
	done         chan struct{}

	// Version info (set by caller)
	version string
}

// New creates a new Service. Call Init() after Wails app is created.
func New(version string) *Service {
	return &Service{version: version}
}

// GetVersion returns the application version.
func (s *Service) GetVersion() string {
	return s.version
}

// Init wires the overlay and starts it. Must be called after the Wails
// application and the overlay window are created.
func (s *Service) Init(app *application.App, window application.Window, cfg *config.Config) {
	s.app = app
	s.window = window
	s.cfg = cfg

	s.setupHistory()

	source, closeMic := openMicrophone()
	s.closeMic = closeMic
	s.client = rtvi.NewClient(rtvi.Config{Version: s.version}, source)

	s.store = recording.NewStore()
	s.store.SetMic(s.client)

	s.server = serverapi.New(cfg.ServerURL, nil)

	s.setupHotkey()

	s.overlay = overlay.New(overlay.Deps{
		Client:   s.client,
		Store:    s.store,
		Settings: cfg,
		Server:   s.server,
		Injector: clipboard.New(),
		History:  s.history,
		Shell: &shell{
			window:  window,
			hotkeys: s.hotkey,
			emit:    s.emit,
			save:    cfg.SetOverlayPosition,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.overlay.Run(ctx); err != nil {
			slog.Error("overlay stopped", "error", err)
		}
	}()
}

// Shutdown stops the overlay and releases devices and storage.
func (s *Service) Shutdown() {
	if s.stop != nil {
		s.stop()
		<-s.done
		s.stop = nil
	}
	if s.hotkey != nil {
		s.hotkey.Stop()
	}
	if s.closeMic != nil {
		s.closeMic()
	}
	if s.closeHistory != nil {
		s.closeHistory()
	}
}

func (s *Service) setupHistory() {
	store, err := openHistory()
	if err != nil {
		slog.Error("open history, keeping it in memory", "error", err)
		if store, err = history.OpenInMemory(); err != nil {
			slog.Error("open in-memory history", "error", err)
		}
	}

	var backing historyLog = unavailableHistory{}
	if store != nil {
		backing = store
		s.closeHistory = func() {
			if err := store.Close(); err != nil {
				slog.Error("close history", "error", err)
			}
		}
	}
	s.history = &notifyingHistory{log: backing, emit: s.emit}
}

func openHistory() (*history.Store, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "history")
	store, err := history.Open(path)
	if err != nil {
		return nil, err
	}
	slog.Info("history initialized", "path", path)
	return store, nil
}

func (s *Service) setupHotkey() {
	s.hotkey = hotkey.NewManager(s.cfg.Hotkeys())
	if err := s.hotkey.Start(); err != nil {
		slog.Error("start hotkey", "error", err)
	}
}

// emit is a safe wrapper around app.Event.Emit
func (s *Service) emit(name string, data any) {
	if s.app != nil {
		s.app.Event.Emit(name, data)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Overlay
// ─────────────────────────────────────────────────────────────────────────────

// MouseDown forwards a press on the overlay in screen coordinates.
func (s *Service) MouseDown(button int, x, y float64) {
	s.overlay.MouseDown(button, x, y)
}

// MouseMove forwards pointer movement in screen coordinates.
func (s *Service) MouseMove(x, y float64) {
	s.overlay.MouseMove(x, y)
}

// MouseUp forwards a release.
func (s *Service) MouseUp() {
	s.overlay.MouseUp()
}

// ContentResized reports the size of the overlay content box.
func (s *Service) ContentResized(width, height float64) {
	s.overlay.ContentResized(width, height)
}

// GetView returns what the overlay should render.
func (s *Service) GetView() overlay.View {
	return s.overlay.View()
}

// GetState returns the current connection state.
func (s *Service) GetState() types.ConnectionState {
	return s.store.State()
}

// Reconnect drops the connection and connects again.
func (s *Service) Reconnect() {
	s.overlay.Reconnect()
}

// ─────────────────────────────────────────────────────────────────────────────
// Settings
// ─────────────────────────────────────────────────────────────────────────────

// GetSettings returns the user settings.
func (s *Service) GetSettings() types.Settings {
	return s.cfg.Settings()
}

// UpdateSettings saves settings and applies what changed.
func (s *Service) UpdateSettings(settings types.Settings) error {
	prev, err := s.cfg.UpdateSettings(settings)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	s.overlay.SettingsChanged(prev, settings)
	return nil
}

// GetServerURL returns the dictation server URL.
func (s *Service) GetServerURL() string {
	return s.cfg.ServerURL()
}

// SetServerURL stores a new dictation server URL.
func (s *Service) SetServerURL(url string) error {
	if err := s.cfg.SetServerURL(url); err != nil {
		return err
	}
	s.overlay.SetServerURL(s.cfg.ServerURL())
	return nil
}

// GetAvailableProviders asks the server which providers it offers.
func (s *Service) GetAvailableProviders() (*types.AvailableProviders, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return s.server.AvailableProviders(ctx)
}

// GetMicrophones returns the capture devices found at startup.
func (s *Service) GetMicrophones() []types.Microphone {
	return s.client.Devices()
}

// ─────────────────────────────────────────────────────────────────────────────
// History
// ─────────────────────────────────────────────────────────────────────────────

// GetHistory returns up to limit entries, newest first. limit <= 0 returns all.
func (s *Service) GetHistory(limit int) ([]types.HistoryEntry, error) {
	return s.history.List(limit)
}

// DeleteHistoryEntry removes one entry.
func (s *Service) DeleteHistoryEntry(id string) error {
	return s.history.Delete(id)
}

// ClearHistory removes every entry.
func (s *Service) ClearHistory() error {
	return s.history.Clear()
}
