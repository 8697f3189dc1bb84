// Package dbus implements the client side of the device-linking
// daemon's org.kde.kdeconnect D-Bus interfaces.
package dbus

import (
	"strings"

	godbus "github.com/godbus/dbus/v5"
)

// Daemon service and object tree constants.
const (
	BusName  = "org.kde.kdeconnect.daemon"
	BasePath = "/modules/kdeconnect"

	ifaceDaemon        = "org.kde.kdeconnect.daemon"
	ifaceDevice        = "org.kde.kdeconnect.device"
	ifaceBattery       = "org.kde.kdeconnect.device.battery"
	ifacePing          = "org.kde.kdeconnect.device.ping"
	ifaceShare         = "org.kde.kdeconnect.device.share"
	ifaceClipboard     = "org.kde.kdeconnect.device.clipboard"
	ifaceMprisRemote   = "org.kde.kdeconnect.device.mprisremote"
	ifaceFindMyPhone   = "org.kde.kdeconnect.device.findmyphone"
	ifaceSMS           = "org.kde.kdeconnect.device.sms"
	ifaceConversations = "org.kde.kdeconnect.device.conversations"
	ifaceNotifications = "org.kde.kdeconnect.device.notifications"
	ifaceNotification  = "org.kde.kdeconnect.device.notifications.notification"

	ifaceProperties = "org.freedesktop.DBus.Properties"
)

// devicePath returns the object path for one device.
func devicePath(deviceID string) godbus.ObjectPath {
	return godbus.ObjectPath(BasePath + "/devices/" + deviceID)
}

// pluginPath returns the object path for a device plugin subtree.
func pluginPath(deviceID, plugin string) godbus.ObjectPath {
	return godbus.ObjectPath(BasePath + "/devices/" + deviceID + "/" + plugin)
}

// notificationPath returns the object path for a single notification.
func notificationPath(deviceID, notificationID string) godbus.ObjectPath {
	return godbus.ObjectPath(BasePath + "/devices/" + deviceID + "/notifications/" + notificationID)
}

// deviceIDFromPath extracts the device ID from any object path under
// the devices subtree. Returns "" when the path is outside it.
func deviceIDFromPath(path godbus.ObjectPath) string {
	s := string(path)
	prefix := BasePath + "/devices/"
	if !strings.HasPrefix(s, prefix) {
		return ""
	}
	rest := s[len(prefix):]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// shortIface maps a full plugin interface name to its short suffix.
func shortIface(iface string) string {
	switch iface {
	case ifaceDevice:
		return "device"
	case ifaceBattery:
		return "battery"
	case ifaceMprisRemote:
		return "mprisremote"
	default:
		return ""
	}
}
