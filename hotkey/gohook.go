package hotkey

import (
	hook "github.com/robotn/gohook"
)

// backend is the global keyboard hook.
type backend interface {
	onChord(keys []string, fn func())
	onRelease(keys []string, fn func())
	start() error
	stop()
}

type gohookBackend struct{}

func (gohookBackend) onChord(keys []string, fn func()) {
	hook.Register(hook.KeyDown, keys, func(hook.Event) { fn() })
}

// onRelease fires when any key of the chord goes up. gohook matches chords
// against held keys, which no longer include the released one, so key-up is
// registered without a chord and filtered by keycode.
func (gohookBackend) onRelease(keys []string, fn func()) {
	codes := make(map[uint16]bool, len(keys))
	for _, k := range keys {
		if code, ok := hook.Keycode[k]; ok {
			codes[code] = true
		}
	}
	hook.Register(hook.KeyUp, []string{}, func(e hook.Event) {
		if codes[e.Keycode] {
			fn()
		}
	})
}

func (gohookBackend) start() error {
	s := hook.Start()
	go func() {
		<-hook.Process(s)
	}()
	return nil
}

func (gohookBackend) stop() {
	hook.End()
}
