// Package types provides shared type definitions for the application.
package types

import "time"

// ConnectionState is the overlay's connection/recording state.
// Exactly one value is active at a time; the recording store owns transitions.
type ConnectionState string

const (
	StateIdle         ConnectionState = "idle"
	StateRecording    ConnectionState = "recording"
	StateProcessing   ConnectionState = "processing"
	StateConnecting   ConnectionState = "connecting"
	StateDisconnected ConnectionState = "disconnected"
)

// Busy reports whether the state shows the loading indicator.
func (s ConnectionState) Busy() bool {
	return s == StateProcessing || s == StateConnecting || s == StateDisconnected
}

// PromptSection is one togglable part of the cleanup prompt.
type PromptSection struct {
	Enabled bool   `json:"enabled"`
	Content string `json:"content"`
}

// CleanupPromptSections holds the prompt the server uses to clean up transcripts.
type CleanupPromptSections struct {
	Main       PromptSection `json:"main"`
	Advanced   PromptSection `json:"advanced"`
	Dictionary PromptSection `json:"dictionary"`
}

// Settings are the user preferences the overlay consumes.
type Settings struct {
	CleanupPromptSections *CleanupPromptSections `json:"cleanup_prompt_sections,omitempty"`
	STTProvider           string                 `json:"stt_provider,omitempty"`
	LLMProvider           string                 `json:"llm_provider,omitempty"`
	SelectedMicID         string                 `json:"selected_mic_id,omitempty"`
}

// HotkeyConfig holds global shortcut bindings as gohook key names.
type HotkeyConfig struct {
	Toggle []string `json:"toggle,omitempty"`
	Hold   []string `json:"hold,omitempty"`
}

// OverlayPosition is the last position the overlay was dragged to.
type OverlayPosition struct {
	X     int  `json:"x"`
	Y     int  `json:"y"`
	Saved bool `json:"saved"`
}

// HistoryEntry is one dictated text that was injected.
type HistoryEntry struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	Language     string    `json:"language,omitempty"`
	LanguageName string    `json:"languageName,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Microphone describes an audio capture device.
type Microphone struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
}

// ProviderOption is a provider the server can switch to.
type ProviderOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// AvailableProviders lists the STT and LLM providers configured on the server.
type AvailableProviders struct {
	STT []ProviderOption `json:"stt"`
	LLM []ProviderOption `json:"llm"`
}
