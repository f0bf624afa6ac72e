package app

import (
	"errors"
	"testing"

	"go.aimuz.me/tambourine/history"
)

func TestNotifyingHistory(t *testing.T) {
	store, err := history.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer store.Close()

	rec := &recorder{}
	h := &notifyingHistory{log: store, emit: rec.emit}

	entry, err := h.Add("send the report tomorrow")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(rec.events) != 1 || rec.events[0].name != EventHistoryUpdated {
		t.Fatalf("events after Add = %+v", rec.events)
	}
	update, ok := rec.events[0].data.(HistoryUpdate)
	if !ok || update.Entry == nil || update.Entry.ID != entry.ID {
		t.Errorf("update = %+v, want entry %s", rec.events[0].data, entry.ID)
	}

	if err := h.Delete(entry.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := h.Delete(entry.ID); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
	if len(rec.events) != 2 {
		t.Errorf("failed delete emitted an event: %+v", rec.events)
	}

	if _, err := h.Add("   "); err == nil {
		t.Error("blank text was accepted")
	}
	if len(rec.events) != 2 {
		t.Errorf("failed add emitted an event: %+v", rec.events)
	}

	if err := h.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	last := rec.events[len(rec.events)-1].data.(HistoryUpdate)
	if !last.Cleared {
		t.Errorf("clear update = %+v", last)
	}
}

func TestUnavailableHistory(t *testing.T) {
	rec := &recorder{}
	h := &notifyingHistory{log: unavailableHistory{}, emit: rec.emit}

	if _, err := h.Add("hello"); !errors.Is(err, errHistoryUnavailable) {
		t.Errorf("Add = %v, want errHistoryUnavailable", err)
	}
	if entries, err := h.List(10); err != nil || len(entries) != 0 {
		t.Errorf("List = %v, %v", entries, err)
	}
	if len(rec.events) != 0 {
		t.Errorf("events = %+v", rec.events)
	}
}
