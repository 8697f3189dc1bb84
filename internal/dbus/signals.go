package dbus

import (
	"fmt"

	godbus "github.com/godbus/dbus/v5"
)

const (
	sigDeviceAdded             = ifaceDaemon + ".deviceAdded"
	sigDeviceRemoved           = ifaceDaemon + ".deviceRemoved"
	sigDeviceVisibilityChanged = ifaceDaemon + ".deviceVisibilityChanged"
	sigReachableChanged        = ifaceDevice + ".reachableChanged"
	sigPairStateChanged        = ifaceDevice + ".pairStateChanged"
	sigPropertiesChanged       = ifaceProperties + ".PropertiesChanged"
	sigConversationUpdated     = ifaceConversations + ".conversationUpdated"
	sigNameOwnerChanged        = "org.freedesktop.DBus.NameOwnerChanged"
)

// subscribe installs the match rules for everything the reconciler
// consumes: daemon-level device lifecycle, per-device state signals,
// property updates under the devices subtree, message events, and
// daemon bus (dis)appearance.
func (c *Client) subscribe() error {
	matches := [][]godbus.MatchOption{
		{
			godbus.WithMatchSender(BusName),
			godbus.WithMatchObjectPath(godbus.ObjectPath(BasePath)),
			godbus.WithMatchInterface(ifaceDaemon),
		},
		{
			godbus.WithMatchSender(BusName),
			godbus.WithMatchPathNamespace(godbus.ObjectPath(BasePath + "/devices")),
			godbus.WithMatchInterface(ifaceDevice),
		},
		{
			godbus.WithMatchSender(BusName),
			godbus.WithMatchPathNamespace(godbus.ObjectPath(BasePath + "/devices")),
			godbus.WithMatchInterface(ifaceProperties),
			godbus.WithMatchMember("PropertiesChanged"),
		},
		{
			godbus.WithMatchSender(BusName),
			godbus.WithMatchPathNamespace(godbus.ObjectPath(BasePath + "/devices")),
			godbus.WithMatchInterface(ifaceConversations),
		},
		{
			godbus.WithMatchSender("org.freedesktop.DBus"),
			godbus.WithMatchInterface("org.freedesktop.DBus"),
			godbus.WithMatchMember("NameOwnerChanged"),
			godbus.WithMatchArg(0, BusName),
		},
	}
	for _, m := range matches {
		if err := c.conn.AddMatchSignal(m...); err != nil {
			return fmt.Errorf("failed to add signal match: %w", err)
		}
	}
	return nil
}

// translateSignals is the single decode loop: raw bus signals in,
// typed events out, in arrival order.
func (c *Client) translateSignals() {
	defer c.wg.Done()
	for sig := range c.signals {
		ev := c.translate(sig)
		if ev == nil {
			continue
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *Client) translate(sig *godbus.Signal) Event {
	switch sig.Name {
	case sigDeviceAdded:
		if id, ok := firstString(sig.Body); ok {
			return DeviceAdded{DeviceID: id}
		}

	case sigDeviceRemoved:
		if id, ok := firstString(sig.Body); ok {
			return DeviceRemoved{DeviceID: id}
		}

	case sigDeviceVisibilityChanged:
		if len(sig.Body) < 2 {
			break
		}
		id, okID := sig.Body[0].(string)
		visible, okVis := sig.Body[1].(bool)
		if okID && okVis {
			return ReachableChanged{DeviceID: id, Reachable: visible}
		}

	case sigReachableChanged:
		deviceID := deviceIDFromPath(sig.Path)
		if deviceID == "" || len(sig.Body) < 1 {
			break
		}
		if reachable, ok := sig.Body[0].(bool); ok {
			return ReachableChanged{DeviceID: deviceID, Reachable: reachable}
		}

	case sigPairStateChanged:
		deviceID := deviceIDFromPath(sig.Path)
		if deviceID == "" || len(sig.Body) < 1 {
			break
		}
		if state, ok := sig.Body[0].(int32); ok {
			return PairStateChanged{DeviceID: deviceID, State: state}
		}

	case sigPropertiesChanged:
		return c.translatePropertiesChanged(sig)

	case sigConversationUpdated:
		deviceID := deviceIDFromPath(sig.Path)
		if deviceID == "" || len(sig.Body) < 1 {
			break
		}
		payload, ok := sig.Body[0].(godbus.Variant)
		if !ok {
			payload = godbus.MakeVariant(sig.Body[0])
		}
		raw, ok := ParseConversationMessage(payload)
		if !ok {
			c.logger.Debug("dropped unparseable message event", "device_id", deviceID)
			break
		}
		return MessageReceived{DeviceID: deviceID, Message: raw}

	case sigNameOwnerChanged:
		if len(sig.Body) < 3 {
			break
		}
		name, okName := sig.Body[0].(string)
		newOwner, okNew := sig.Body[2].(string)
		if !okName || !okNew || name != BusName {
			break
		}
		if newOwner == "" {
			return TransportLost{}
		}
		return TransportRestored{}
	}
	return nil
}

func (c *Client) translatePropertiesChanged(sig *godbus.Signal) Event {
	deviceID := deviceIDFromPath(sig.Path)
	if deviceID == "" || len(sig.Body) < 2 {
		return nil
	}
	ifaceName, ok := sig.Body[0].(string)
	if !ok {
		return nil
	}
	short := shortIface(ifaceName)
	if short == "" {
		return nil
	}
	changed, ok := sig.Body[1].(map[string]godbus.Variant)
	if !ok || len(changed) == 0 {
		return nil
	}
	return PropertiesChanged{DeviceID: deviceID, Iface: short, Props: changed}
}

func firstString(body []any) (string, bool) {
	if len(body) < 1 {
		return "", false
	}
	s, ok := body[0].(string)
	return s, ok
}
