package dbus

import (
	godbus "github.com/godbus/dbus/v5"

	"github.com/nwxnw/cosmic-connect-applet/internal/sms"
)

// Event is one inbound bus signal, translated for the reconciler. All
// events flow through a single ordered channel, preserving the
// daemon's serialization of updates.
type Event interface {
	event()
}

// DeviceAdded announces a newly discovered device. The reconciler
// fetches full properties before inserting it into the registry.
type DeviceAdded struct {
	DeviceID string
}

// DeviceRemoved announces a removed device.
type DeviceRemoved struct {
	DeviceID string
}

// ReachableChanged announces reachability changes.
type ReachableChanged struct {
	DeviceID  string
	Reachable bool
}

// PairStateChanged carries the daemon's raw pair state value.
type PairStateChanged struct {
	DeviceID string
	State    int32
}

// PropertiesChanged carries a partial property update for one of the
// device's plugin interfaces. Iface is the short interface suffix
// ("device", "battery", "mprisremote").
type PropertiesChanged struct {
	DeviceID string
	Iface    string
	Props    map[string]godbus.Variant
}

// MessageReceived carries one SMS message event.
type MessageReceived struct {
	DeviceID string
	Message  sms.RawMessage
}

// CommandResult reports the outcome of an asynchronously issued
// plugin command. Err is nil on success.
type CommandResult struct {
	CorrelationID string
	Err           error
}

// TransportLost announces that the daemon dropped off the bus.
type TransportLost struct{}

// TransportRestored announces that the daemon reappeared on the bus.
type TransportRestored struct{}

func (DeviceAdded) event()       {}
func (DeviceRemoved) event()     {}
func (ReachableChanged) event()  {}
func (PairStateChanged) event()  {}
func (PropertiesChanged) event() {}
func (MessageReceived) event()   {}
func (CommandResult) event()     {}
func (TransportLost) event()     {}
func (TransportRestored) event() {}
