// Package model defines the core data structures for the applet.
package model

import (
	"sort"
	"strings"
)

// PairState represents the pairing relationship with a device.
type PairState int

const (
	// PairStateUnpaired is the initial state: no trust established.
	PairStateUnpaired PairState = iota
	// PairStateRequestedByLocal means we asked the device to pair.
	PairStateRequestedByLocal
	// PairStateRequestedByRemote means the device asked us to pair.
	PairStateRequestedByRemote
	// PairStatePaired means the trust handshake completed.
	PairStatePaired
	// PairStateRejectedRecently means a local request was rejected and
	// the cooldown window has not elapsed yet.
	PairStateRejectedRecently
)

// String returns the string representation of the pair state.
func (s PairState) String() string {
	switch s {
	case PairStateUnpaired:
		return "unpaired"
	case PairStateRequestedByLocal:
		return "requested"
	case PairStateRequestedByRemote:
		return "requested-by-peer"
	case PairStatePaired:
		return "paired"
	case PairStateRejectedRecently:
		return "rejected"
	default:
		return "unknown"
	}
}

// Capability identifies a plugin feature a device may expose.
type Capability string

const (
	CapabilityBattery       Capability = "battery"
	CapabilityPing          Capability = "ping"
	CapabilityNotifications Capability = "notifications"
	CapabilitySMS           Capability = "sms"
	CapabilityClipboard     Capability = "clipboard"
	CapabilityMediaControl  Capability = "mediacontrol"
	CapabilityFileShare     Capability = "fileshare"
	CapabilityFindMyPhone   Capability = "findmyphone"
	CapabilityTelephony     Capability = "telephony"
)

// pluginCapabilities maps daemon plugin IDs to capabilities.
var pluginCapabilities = map[string]Capability{
	"kdeconnect_battery":       CapabilityBattery,
	"kdeconnect_ping":          CapabilityPing,
	"kdeconnect_notifications": CapabilityNotifications,
	"kdeconnect_sms":           CapabilitySMS,
	"kdeconnect_clipboard":     CapabilityClipboard,
	"kdeconnect_mprisremote":   CapabilityMediaControl,
	"kdeconnect_share":         CapabilityFileShare,
	"kdeconnect_findmyphone":   CapabilityFindMyPhone,
	"kdeconnect_telephony":     CapabilityTelephony,
}

// CapabilityFromPlugin maps a daemon plugin ID (e.g. "kdeconnect_battery")
// to a Capability. Unknown plugin IDs return ok=false and are ignored.
func CapabilityFromPlugin(pluginID string) (Capability, bool) {
	c, ok := pluginCapabilities[pluginID]
	return c, ok
}

// CapabilitySet is the set of capabilities a device currently exposes.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// CapabilitiesFromPlugins builds a set from daemon plugin IDs,
// skipping plugins this applet does not model.
func CapabilitiesFromPlugins(pluginIDs []string) CapabilitySet {
	s := make(CapabilitySet)
	for _, id := range pluginIDs {
		if c, ok := CapabilityFromPlugin(id); ok {
			s[c] = struct{}{}
		}
	}
	return s
}

// Has reports whether the set contains the capability.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Clone returns a copy of the set.
func (s CapabilitySet) Clone() CapabilitySet {
	out := make(CapabilitySet, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

// List returns the capabilities in sorted order.
func (s CapabilitySet) List() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DeviceType categorizes a device.
type DeviceType string

const (
	DeviceTypePhone   DeviceType = "phone"
	DeviceTypeTablet  DeviceType = "tablet"
	DeviceTypeDesktop DeviceType = "desktop"
	DeviceTypeLaptop  DeviceType = "laptop"
	DeviceTypeTV      DeviceType = "tv"
	DeviceTypeUnknown DeviceType = "unknown"
)

// NormalizeDeviceType maps a daemon device type string to a DeviceType.
func NormalizeDeviceType(s string) DeviceType {
	switch strings.ToLower(s) {
	case "phone", "smartphone":
		return DeviceTypePhone
	case "tablet":
		return DeviceTypeTablet
	case "desktop":
		return DeviceTypeDesktop
	case "laptop":
		return DeviceTypeLaptop
	case "tv":
		return DeviceTypeTV
	default:
		return DeviceTypeUnknown
	}
}

// BatteryStatus is a snapshot of the remote device's battery.
type BatteryStatus struct {
	Charge   int  `json:"charge"`
	Charging bool `json:"charging"`
}

// MediaState mirrors the device's media player state.
type MediaState struct {
	Players       []string `json:"players"`
	CurrentPlayer string   `json:"current_player"`
	IsPlaying     bool     `json:"is_playing"`
	Volume        int      `json:"volume"`
	Title         string   `json:"title"`
	Artist        string   `json:"artist"`
	Album         string   `json:"album"`
	Position      int64    `json:"position"`
	Length        int64    `json:"length"`
}

// HasActivePlayer reports whether at least one media player is active.
// Media control is only meaningful when this is true, even if the
// device advertises the mediacontrol plugin.
func (m *MediaState) HasActivePlayer() bool {
	return m != nil && len(m.Players) > 0
}

// Device is the local mirror of one daemon device object.
type Device struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         DeviceType     `json:"type"`
	Reachable    bool           `json:"reachable"`
	Pair         PairState      `json:"pair_state"`
	Capabilities CapabilitySet  `json:"capabilities"`
	Battery      *BatteryStatus `json:"battery,omitempty"`
	Media        *MediaState    `json:"media,omitempty"`
}

// Clone returns a deep copy of the device. The registry hands out
// clones so readers never alias its internal records.
func (d *Device) Clone() *Device {
	out := *d
	out.Capabilities = d.Capabilities.Clone()
	if d.Battery != nil {
		b := *d.Battery
		out.Battery = &b
	}
	if d.Media != nil {
		m := *d.Media
		m.Players = append([]string(nil), d.Media.Players...)
		out.Media = &m
	}
	return &out
}
