package events

// Event type constants for kelindar/event.
const (
	TypeDeviceCollectionChanged uint32 = iota + 1
	TypeDefaultDeviceChanged
	TypeStreamCreated
	TypeStreamDestroyed
	TypeStreamStateChanged
	TypeStreamDeviceChanged
	TypeStreamReinit
	TypeLogEntry
	TypeStreamMetrics
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// DeviceCollectionChangedEvent is published when the device list of one
// direction changes.
type DeviceCollectionChangedEvent struct {
	Direction string   `json:"direction" example:"output" doc:"Device direction: input or output"`
	Devices   []uint32 `json:"devices" doc:"Device handles now present in this direction"`
	Timestamp string   `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceCollectionChangedEvent.
func (e DeviceCollectionChangedEvent) Type() uint32 { return TypeDeviceCollectionChanged }

// DefaultDeviceChangedEvent is published when the system default device of
// a direction changes.
type DefaultDeviceChangedEvent struct {
	Direction string `json:"direction" example:"output" doc:"Device direction: input or output"`
	DeviceID  uint32 `json:"device_id" example:"257" doc:"New default device handle, 0 when there is none"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DefaultDeviceChangedEvent.
func (e DefaultDeviceChangedEvent) Type() uint32 { return TypeDefaultDeviceChanged }

// StreamCreatedEvent is published after a stream is opened.
type StreamCreatedEvent struct {
	StreamID  string `json:"stream_id" example:"6f1c..." doc:"Stream identifier"`
	Name      string `json:"name" example:"music" doc:"Stream name"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamCreatedEvent.
func (e StreamCreatedEvent) Type() uint32 { return TypeStreamCreated }

// StreamDestroyedEvent is published after a stream is destroyed.
type StreamDestroyedEvent struct {
	StreamID  string `json:"stream_id" example:"6f1c..." doc:"Stream identifier"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamDestroyedEvent.
func (e StreamDestroyedEvent) Type() uint32 { return TypeStreamDestroyed }

// StreamStateChangedEvent is published on every stream state callback.
type StreamStateChangedEvent struct {
	StreamID  string `json:"stream_id" example:"6f1c..." doc:"Stream identifier"`
	State     string `json:"state" example:"started" doc:"started, stopped, drained or error"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStateChangedEvent.
func (e StreamStateChangedEvent) Type() uint32 { return TypeStreamStateChanged }

// StreamDeviceChangedEvent is published when a hardware notification hits
// a stream and a reinitialization is scheduled.
type StreamDeviceChangedEvent struct {
	StreamID  string   `json:"stream_id" example:"6f1c..." doc:"Stream identifier"`
	Reasons   []string `json:"reasons" doc:"Property changes that triggered the switch"`
	Timestamp string   `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamDeviceChangedEvent.
func (e StreamDeviceChangedEvent) Type() uint32 { return TypeStreamDeviceChanged }

// StreamReinitEvent reports the outcome of a stream reinitialization.
type StreamReinitEvent struct {
	StreamID     string `json:"stream_id" example:"6f1c..." doc:"Stream identifier"`
	Success      bool   `json:"success" doc:"Whether the stream was rebuilt"`
	InputDevice  uint32 `json:"input_device,omitempty" doc:"Input device after reinit"`
	OutputDevice uint32 `json:"output_device,omitempty" doc:"Output device after reinit"`
	Error        string `json:"error,omitempty" doc:"Failure description"`
	Timestamp    string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamReinitEvent.
func (e StreamReinitEvent) Type() uint32 { return TypeStreamReinit }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"backend" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// StreamMetricsEvent carries periodic per-stream counters.
type StreamMetricsEvent struct {
	EventType      string `json:"type" example:"stream_metrics" doc:"Event type"`
	StreamID       string `json:"stream_id" example:"6f1c..." doc:"Stream identifier"`
	FramesRendered string `json:"frames_rendered" example:"48000" doc:"Frames exchanged with the data callback"`
	Reinits        string `json:"reinits" example:"1" doc:"Completed reinitializations"`
	Coalesced      string `json:"coalesced" example:"3" doc:"Notifications absorbed by an in-flight reinitialization"`
}

// Type returns the event type identifier for StreamMetricsEvent.
func (e StreamMetricsEvent) Type() uint32 { return TypeStreamMetrics }
