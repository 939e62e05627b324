package models

import "github.com/smazurov/audionode/internal/streams"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string   `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string   `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string   `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	GoVersion string   `json:"go_version" example:"go1.24.11" doc:"Go toolchain version"`
	Platform  string   `json:"platform" example:"linux/arm64" doc:"Target platform"`
	Cgo       bool     `json:"cgo" doc:"Whether the binary was built with cgo"`
	Backends  []string `json:"backends" doc:"Hardware backends usable by this binary"`
}

type VersionResponse struct {
	Body VersionData
}

// Backend context models
type ContextData struct {
	BackendID           string `json:"backend_id" example:"audionode-alsa" doc:"Backend identifier"`
	MaxChannels         uint32 `json:"max_channels" example:"2" doc:"Output channels of the default output device"`
	MinLatency          uint32 `json:"min_latency" example:"64" doc:"Smallest buffer of the default output device, in frames"`
	PreferredSampleRate uint32 `json:"preferred_sample_rate" example:"48000" doc:"Nominal rate of the default output device"`
	ActiveStreams       int    `json:"active_streams" example:"1" doc:"Open streams"`
	GlobalLatency       uint32 `json:"global_latency,omitempty" example:"512" doc:"Latency fixed by the first stream, in frames"`
	Error               string `json:"error,omitempty" doc:"Why the device limits are unavailable"`
}

type ContextResponse struct {
	Body ContextData
}

// Layout conversion models
type LayoutConvertData struct {
	Labels []string `json:"labels" minItems:"1" example:"[\"Left\",\"Right\",\"Center\"]" doc:"Hardware channel labels in order"`
}

type LayoutConvertRequest struct {
	Body LayoutConvertData
}

type LayoutData struct {
	Layout   string   `json:"layout" example:"3f" doc:"Canonical layout name"`
	Channels int      `json:"channels" example:"3" doc:"Channel count of the layout"`
	Labels   []string `json:"labels,omitempty" doc:"Canonical hardware labels of the layout"`
}

type LayoutResponse struct {
	Body LayoutData
}

type LayoutListData struct {
	Layouts []LayoutData `json:"layouts" doc:"Every named layout"`
}

type LayoutListResponse struct {
	Body LayoutListData
}

// Stream models
type StreamRequestData struct {
	ID            string   `json:"id,omitempty" example:"kitchen" doc:"Stream identifier; generated when empty"`
	Name          string   `json:"name,omitempty" example:"Kitchen speakers" doc:"Display name"`
	Direction     string   `json:"direction,omitempty" enum:"output,input,duplex" example:"output" doc:"Stream direction"`
	OutputDevice  string   `json:"output_device,omitempty" example:"hw:1,0" doc:"Output device: default, system, a handle, UID or name"`
	InputDevice   string   `json:"input_device,omitempty" example:"default" doc:"Input device: default, system, a handle, UID or name"`
	Rate          uint32   `json:"rate,omitempty" example:"48000" doc:"Stream sample rate"`
	Channels      uint32   `json:"channels,omitempty" example:"2" doc:"Stream channel count"`
	Layout        string   `json:"layout,omitempty" example:"stereo" doc:"Channel layout name"`
	Format        string   `json:"format,omitempty" example:"f32le" doc:"Sample format"`
	LatencyFrames uint32   `json:"latency_frames,omitempty" example:"512" doc:"Requested latency in frames"`
	ToneHz        float64  `json:"tone_hz,omitempty" example:"440" doc:"Test tone frequency for output streams; 0 is silence"`
	Volume        *float32 `json:"volume,omitempty" minimum:"0" maximum:"1" example:"0.8" doc:"Output gain"`
	PinDevice     bool     `json:"pin_device,omitempty" doc:"Stay on the chosen device when the default changes"`
	Autostart     bool     `json:"autostart,omitempty" doc:"Start the stream once it is opened"`
}

type StreamRequest struct {
	Body StreamRequestData
}

// Spec converts the request into a stream definition.
func (d StreamRequestData) Spec() streams.StreamSpec {
	return streams.StreamSpec{
		ID:            d.ID,
		Name:          d.Name,
		Direction:     d.Direction,
		OutputDevice:  d.OutputDevice,
		InputDevice:   d.InputDevice,
		Rate:          d.Rate,
		Channels:      d.Channels,
		Layout:        d.Layout,
		Format:        d.Format,
		LatencyFrames: d.LatencyFrames,
		ToneHz:        d.ToneHz,
		Volume:        d.Volume,
		PinDevice:     d.PinDevice,
		Autostart:     d.Autostart,
	}
}

type StreamResponse struct {
	Body streams.Status
}

type StreamListData struct {
	Streams []streams.Status `json:"streams" doc:"Every stream definition with its runtime state"`
	Count   int              `json:"count" example:"2" doc:"Number of streams"`
}

type StreamListResponse struct {
	Body StreamListData
}

type StreamIDInput struct {
	StreamID string `path:"stream_id" example:"kitchen" doc:"Stream identifier"`
}

type VolumeData struct {
	Volume float32 `json:"volume" minimum:"0" maximum:"1" example:"0.5" doc:"Output gain"`
}

type VolumeRequest struct {
	StreamIDInput
	Body VolumeData
}

type StreamMetricsData struct {
	StreamID       string `json:"stream_id" example:"kitchen" doc:"Stream identifier"`
	FramesRendered uint64 `json:"frames_rendered" example:"48000" doc:"Frames exchanged with the data callback"`
	Reinits        uint64 `json:"reinits" example:"1" doc:"Completed reinitializations"`
	Coalesced      uint64 `json:"coalesced" example:"3" doc:"Notifications absorbed by an in-flight reinitialization"`
}

type MetricsData struct {
	ActiveStreams int                 `json:"active_streams" example:"1" doc:"Open streams on the context"`
	GlobalLatency *uint32             `json:"global_latency_frames,omitempty" example:"512" doc:"Latency shared by running streams, absent until one is set"`
	Streams       []StreamMetricsData `json:"streams" doc:"Counters per open stream, sorted by ID"`
}

type MetricsResponse struct {
	Body MetricsData
}
