package app

import (
	"errors"
	"log/slog"

	"go.aimuz.me/tambourine/internal/types"
)

// historyLog is the storage behind the history bindings.
type historyLog interface {
	Add(text string) (types.HistoryEntry, error)
	List(limit int) ([]types.HistoryEntry, error)
	Delete(id string) error
	Clear() error
}

// notifyingHistory announces every change to the frontend.
type notifyingHistory struct {
	log  historyLog
	emit func(name string, data any)
}

func (h *notifyingHistory) Add(text string) (types.HistoryEntry, error) {
	entry, err := h.log.Add(text)
	if err != nil {
		return entry, err
	}
	slog.Debug("history entry added", "id", entry.ID, "lang", entry.Language)
	h.emit(EventHistoryUpdated, HistoryUpdate{Entry: &entry})
	return entry, nil
}

func (h *notifyingHistory) List(limit int) ([]types.HistoryEntry, error) {
	return h.log.List(limit)
}

func (h *notifyingHistory) Delete(id string) error {
	if err := h.log.Delete(id); err != nil {
		return err
	}
	h.emit(EventHistoryUpdated, HistoryUpdate{})
	return nil
}

func (h *notifyingHistory) Clear() error {
	if err := h.log.Clear(); err != nil {
		return err
	}
	h.emit(EventHistoryUpdated, HistoryUpdate{Cleared: true})
	return nil
}

var errHistoryUnavailable = errors.New("history unavailable")

// unavailableHistory stands in when no store could be opened.
type unavailableHistory struct{}

func (unavailableHistory) Add(string) (types.HistoryEntry, error) {
	return types.HistoryEntry{}, errHistoryUnavailable
}

func (unavailableHistory) List(int) ([]types.HistoryEntry, error) { return nil, nil }

func (unavailableHistory) Delete(string) error { return errHistoryUnavailable }

func (unavailableHistory) Clear() error { return nil }
