package app

import "go.aimuz.me/tambourine/internal/types"

// Event names for frontend communication.
const (
	EventConnectionState = "connection-state"
	EventOverlayView     = "overlay-view"
	EventHistoryUpdated  = "history-updated"
)

// HistoryUpdate is sent with EventHistoryUpdated. Entry is set when a new
// entry was added; otherwise the frontend should reload the list.
type HistoryUpdate struct {
	Entry   *types.HistoryEntry `json:"entry,omitempty"`
	Cleared bool                `json:"cleared,omitempty"`
}
