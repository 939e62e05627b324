package models

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/audionode/internal/device"
)

// DeviceType selects the directions to enumerate.
type DeviceType string

const (
	DeviceTypeInput  DeviceType = "input"
	DeviceTypeOutput DeviceType = "output"
	DeviceTypeAll    DeviceType = "all"
)

// Schema implements huma.SchemaProvider so the query parameter is validated
// against the known directions.
func (DeviceType) Schema(_ huma.Registry) *huma.Schema {
	return &huma.Schema{
		Type:        huma.TypeString,
		Enum:        []any{string(DeviceTypeInput), string(DeviceTypeOutput), string(DeviceTypeAll)},
		Default:     string(DeviceTypeAll),
		Description: "Device direction",
	}
}

// Type converts to the registry direction. Empty means all.
func (t DeviceType) Type() device.Type {
	return device.ParseType(string(t))
}

type DeviceListInput struct {
	Type DeviceType `query:"type" doc:"Directions to enumerate"`
}

type DeviceInfo struct {
	ID            uint32 `json:"id" example:"257" doc:"Device handle"`
	DeviceID      string `json:"device_id" example:"hw:1,0" doc:"Stable device identifier"`
	FriendlyName  string `json:"friendly_name" example:"USB Audio" doc:"Human-readable name"`
	GroupID       string `json:"group_id" example:"usb-0000:00:14.0-1" doc:"Physical device the endpoint belongs to"`
	VendorName    string `json:"vendor_name" example:"Generic" doc:"Manufacturer"`
	Type          string `json:"type" example:"output" doc:"input or output"`
	State         string `json:"state" example:"enabled" doc:"enabled, disabled or unplugged"`
	Preferred     bool   `json:"preferred" doc:"Whether this is the default device of its direction"`
	Formats       string `json:"formats" example:"s16le|f32le" doc:"Supported sample formats"`
	DefaultFormat string `json:"default_format" example:"f32le" doc:"Default sample format"`
	MaxChannels   uint32 `json:"max_channels" example:"2" doc:"Channels in this direction"`
	MinRate       uint32 `json:"min_rate" example:"44100" doc:"Lowest sample rate"`
	MaxRate       uint32 `json:"max_rate" example:"96000" doc:"Highest sample rate"`
	DefaultRate   uint32 `json:"default_rate" example:"48000" doc:"Nominal sample rate"`
	LatencyLo     uint32 `json:"latency_lo" example:"64" doc:"Smallest buffer in frames"`
	LatencyHi     uint32 `json:"latency_hi" example:"4096" doc:"Largest buffer in frames"`
}

// NewDeviceInfo converts a registry descriptor.
func NewDeviceInfo(info device.Info) DeviceInfo {
	return DeviceInfo{
		ID:            uint32(info.ID),
		DeviceID:      info.DeviceID,
		FriendlyName:  info.FriendlyName,
		GroupID:       info.GroupID,
		VendorName:    info.VendorName,
		Type:          info.Type.String(),
		State:         info.State.String(),
		Preferred:     info.Preferred != device.PrefNone,
		Formats:       info.Format.String(),
		DefaultFormat: info.DefaultFormat.String(),
		MaxChannels:   info.MaxChannels,
		MinRate:       info.MinRate,
		MaxRate:       info.MaxRate,
		DefaultRate:   info.DefaultRate,
		LatencyLo:     info.LatencyLo,
		LatencyHi:     info.LatencyHi,
	}
}

type DeviceListData struct {
	Devices []DeviceInfo `json:"devices" doc:"Output devices first, then input devices"`
	Count   int          `json:"count" example:"3" doc:"Number of devices"`
}

type DeviceListResponse struct {
	Body DeviceListData
}

type DefaultDevicesData struct {
	Output uint32 `json:"output" example:"257" doc:"Default output device handle, 0 when there is none"`
	Input  uint32 `json:"input" example:"258" doc:"Default input device handle, 0 when there is none"`
}

type DefaultDevicesResponse struct {
	Body DefaultDevicesData
}
