package main

import (
	"embed"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/wailsapp/wails/v3/pkg/application"

	"go.aimuz.me/tambourine/config"
	"go.aimuz.me/tambourine/internal/app"
	"go.aimuz.me/tambourine/internal/types"
)

//go:embed all:frontend/dist
var assets embed.FS

//go:embed build/trayicon.png
var trayIconBytes []byte

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Initial overlay size; the page resizes the window to its content.
const (
	overlayWidth  = 64
	overlayHeight = 64
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config, using defaults", "error", err)
		cfg = config.Default("")
	}
	setupLogger(cfg.LogLevel())

	slog.Info("starting app", "version", version, "commit", commit, "date", date)
	appService := app.New(version)

	wailsApp := application.New(application.Options{
		Name:        "Tambourine",
		Description: "Floating voice dictation overlay",
		Services: []application.Service{
			application.NewService(appService),
		},
		Assets: application.AssetOptions{
			Handler: application.BundledAssetFileServer(assets),
		},
		Mac: application.MacOptions{
			// Don't quit when all windows are closed (we have a system tray)
			ApplicationShouldTerminateAfterLastWindowClosed: false,
		},
	})

	overlayWindow := wailsApp.Window.NewWithOptions(overlayOptions(cfg.OverlayPosition()))

	// Initialize service with app and window references
	appService.Init(wailsApp, overlayWindow, cfg)

	systemTray := wailsApp.SystemTray.New()
	systemTray.SetIcon(trayIconBytes)

	trayMenu := wailsApp.NewMenu()
	trayMenu.Add("Reconnect").OnClick(func(ctx *application.Context) {
		appService.Reconnect()
	})
	trayMenu.AddSeparator()
	trayMenu.Add("Quit").
		SetAccelerator("CmdOrCtrl+Q").
		OnClick(func(ctx *application.Context) {
			appService.Shutdown()
			wailsApp.Quit()
		})
	systemTray.SetMenu(trayMenu)

	if err := wailsApp.Run(); err != nil {
		slog.Error("run app", "error", err)
	}
}

func overlayOptions(pos types.OverlayPosition) application.WebviewWindowOptions {
	opts := application.WebviewWindowOptions{
		Name:           "overlay",
		Title:          "Tambourine",
		Width:          overlayWidth,
		Height:         overlayHeight,
		URL:            "/",
		Frameless:      true,
		AlwaysOnTop:    true,
		DisableResize:  true,
		BackgroundType: application.BackgroundTypeTransparent,
		Mac: application.MacWindow{
			Backdrop: application.MacBackdropTransparent,
		},
	}
	if pos.Saved {
		opts.InitialPosition = application.WindowXY
		opts.X = pos.X
		opts.Y = pos.Y
	}
	return opts
}

func setupLogger(level slog.Level) {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})))
}
