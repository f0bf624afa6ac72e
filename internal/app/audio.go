package app

import (
	"log/slog"

	"go.aimuz.me/tambourine/audiocapture"
	"go.aimuz.me/tambourine/rtvi"
)

// openMicrophone opens the capture backend. The overlay still comes up
// without one; recording then fails with a device error.
func openMicrophone() (rtvi.AudioSource, func()) {
	capture, err := audiocapture.New()
	if err != nil {
		slog.Error("open audio capture", "error", err)
		return nil, func() {}
	}
	slog.Info("audio capture ready",
		"sample_rate", audiocapture.SampleRate,
		"frame_samples", audiocapture.FrameSamples)

	return capture, func() {
		if err := capture.Close(); err != nil {
			slog.Error("close audio capture", "error", err)
		}
	}
}
