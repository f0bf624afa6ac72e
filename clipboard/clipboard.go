// Package clipboard injects text into the focused application by pasting it.
package clipboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cb "github.com/atotto/clipboard"
)

// DefaultRestoreDelay is how long the dictated text stays on the clipboard
// before the previous content is put back.
const DefaultRestoreDelay = 150 * time.Millisecond

// Injector pastes text through the system clipboard.
type Injector struct {
	mu sync.Mutex

	read         func() (string, error)
	write        func(string) error
	paste        func() error
	restoreDelay time.Duration
}

// New returns an Injector backed by the system clipboard and a synthesized
// paste chord.
func New() *Injector {
	return &Injector{
		read:         cb.ReadAll,
		write:        cb.WriteAll,
		paste:        Paste,
		restoreDelay: DefaultRestoreDelay,
	}
}

// TypeText pastes text into the focused application and then restores the
// previous clipboard content. Empty text is a no-op.
func (i *Injector) TypeText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	prev, readErr := i.read()
	if readErr != nil {
		// clipboard may hold non-text content
		slog.Debug("read clipboard", "error", readErr)
	}

	if err := i.write(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	if err := i.paste(); err != nil {
		return fmt.Errorf("paste: %w", err)
	}

	if readErr != nil {
		return nil
	}

	t := time.NewTimer(i.restoreDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}

	if err := i.write(prev); err != nil {
		slog.Warn("restore clipboard", "error", err)
	}
	return nil
}
