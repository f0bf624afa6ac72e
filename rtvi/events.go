package rtvi

import "encoding/json"

// EventName identifies a client event.
type EventName string

// The events a Client emits. Handlers are registered with Client.On.
const (
	EventConnected             EventName = "connected"
	EventDisconnected          EventName = "disconnected"
	EventServerMessage         EventName = "server-message"
	EventMicUpdated            EventName = "mic-updated"
	EventTrackStarted          EventName = "track-started"
	EventUserStartedSpeaking   EventName = "user-started-speaking"
	EventUserStoppedSpeaking   EventName = "user-stopped-speaking"
	EventError                 EventName = "error"
	EventDeviceError           EventName = "device-error"
	EventTransportStateChanged EventName = "transport-state-changed"
)

// AllEvents lists every event name in a stable order.
var AllEvents = []EventName{
	EventConnected,
	EventDisconnected,
	EventServerMessage,
	EventMicUpdated,
	EventTrackStarted,
	EventUserStartedSpeaking,
	EventUserStoppedSpeaking,
	EventError,
	EventDeviceError,
	EventTransportStateChanged,
}

// TransportState is the lifecycle of the underlying transport.
type TransportState string

const (
	TransportDisconnected  TransportState = "disconnected"
	TransportConnecting    TransportState = "connecting"
	TransportConnected     TransportState = "connected"
	TransportReady         TransportState = "ready"
	TransportReconnecting  TransportState = "reconnecting"
	TransportDisconnecting TransportState = "disconnecting"
	TransportError         TransportState = "error"
)

// Event is the payload passed to handlers. Only the fields relevant to Name
// are set.
type Event struct {
	Name EventName

	// Data is the raw server-message payload.
	Data json.RawMessage
	// Err is set for EventError and EventDeviceError.
	Err error
	// DeviceID is set for EventMicUpdated.
	DeviceID string
	// State is set for EventTransportStateChanged.
	State TransportState
}
