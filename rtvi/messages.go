package rtvi

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"

	"github.com/google/uuid"
)

// Label tags every RTVI message on the data channel.
const Label = "rtvi-ai"

// ProtocolVersion is the RTVI protocol version announced in client-ready.
const ProtocolVersion = "1.0.0"

// RTVI message types.
const (
	TypeClientReady         = "client-ready"
	TypeBotReady            = "bot-ready"
	TypeServerMessage       = "server-message"
	TypeUserStartedSpeaking = "user-started-speaking"
	TypeUserStoppedSpeaking = "user-stopped-speaking"
	TypeError               = "error"
	TypeErrorResponse       = "error-response"
)

// Envelope is the outer shape of every RTVI message.
type Envelope struct {
	Label string          `json:"label"`
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ParseEnvelope decodes an RTVI data-channel message.
// Messages without the RTVI label are reported with ok=false.
func ParseEnvelope(raw []byte) (env Envelope, ok bool, err error) {
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, false, fmt.Errorf("decode rtvi message: %w", err)
	}
	return env, env.Label == Label, nil
}

// ErrorData is the payload of error and error-response messages.
type ErrorData struct {
	Error string `json:"error"`
	Fatal bool   `json:"fatal,omitempty"`
}

// ServerError is an error reported by the server over RTVI.
type ServerError struct {
	Message string
	Fatal   bool
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return "server error"
	}
	return "server error: " + e.Message
}

func parseError(data json.RawMessage) error {
	var d ErrorData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &d); err != nil {
			return &ServerError{Message: string(data)}
		}
	}
	return &ServerError{Message: d.Error, Fatal: d.Fatal}
}

type about struct {
	Library        string `json:"library"`
	LibraryVersion string `json:"library_version"`
	Platform       string `json:"platform"`
}

type clientReadyData struct {
	Version string `json:"version"`
	About   about  `json:"about"`
}

// ClientReady builds the client-ready message sent when the data channel opens.
func ClientReady(libraryVersion string) ([]byte, error) {
	data, err := json.Marshal(clientReadyData{
		Version: ProtocolVersion,
		About: about{
			Library:        "tambourine-go",
			LibraryVersion: libraryVersion,
			Platform:       runtime.GOOS,
		},
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Label: Label, Type: TypeClientReady, ID: uuid.NewString(), Data: data})
}

// TrackStatus builds the signalling message that tells the server whether
// the microphone track is live.
func TrackStatus(enabled bool) ([]byte, error) {
	type status struct {
		Type          string `json:"type"`
		ReceiverIndex int    `json:"receiver_index"`
		Enabled       bool   `json:"enabled"`
	}
	return json.Marshal(struct {
		Type    string `json:"type"`
		Message status `json:"message"`
	}{
		Type:    "signalling",
		Message: status{Type: "trackStatus", ReceiverIndex: 0, Enabled: enabled},
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Server messages
// ─────────────────────────────────────────────────────────────────────────────

// Server message kinds carried inside server-message payloads.
const (
	KindTranscript        = "transcript"
	KindRecordingComplete = "recording-complete"
)

// ServerMessage is a discriminated union of the payloads the dictation
// server sends. Check the concrete type via type switch.
type ServerMessage interface {
	kind() string
}

// Transcript carries the cleaned-up dictated text.
type Transcript struct {
	Text string
}

func (Transcript) kind() string { return KindTranscript }

// RecordingComplete tells the client that a recording was processed.
// HasContent is false when nothing was said.
type RecordingComplete struct {
	HasContent bool
}

func (RecordingComplete) kind() string { return KindRecordingComplete }

// ErrUnknownMessage is returned for payloads that are neither a transcript
// nor a recording-complete message.
var ErrUnknownMessage = errors.New("unknown server message")

// ParseServerMessage classifies a server-message payload. A transcript needs
// a string text field; a recording-complete needs only its type tag.
func ParseServerMessage(data []byte) (ServerMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, ErrUnknownMessage
	}

	var typ string
	if err := json.Unmarshal(fields["type"], &typ); err != nil {
		return nil, ErrUnknownMessage
	}

	switch typ {
	case KindTranscript:
		var text *string
		if err := json.Unmarshal(fields["text"], &text); err != nil || text == nil {
			return nil, ErrUnknownMessage
		}
		return Transcript{Text: *text}, nil
	case KindRecordingComplete:
		return RecordingComplete{HasContent: truthy(fields["hasContent"])}, nil
	default:
		return nil, ErrUnknownMessage
	}
}

// truthy treats a missing field, null, false, 0 and "" as false.
func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return true
	}
}
