package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nwxnw/cosmic-connect-applet/internal/model"
)

func TestDeviceItemTitle(t *testing.T) {
	item := deviceItem{device: model.Device{
		Name:      "Pixel",
		Reachable: true,
	}}
	assert.Equal(t, "● Pixel", item.Title())

	item.device.Reachable = false
	assert.Equal(t, "○ Pixel", item.Title())
}

func TestDeviceItemDescription(t *testing.T) {
	item := deviceItem{device: model.Device{
		Name:         "Pixel",
		Type:         model.DeviceTypePhone,
		Pair:         model.PairStatePaired,
		Capabilities: model.NewCapabilitySet(model.CapabilitySMS, model.CapabilityBattery),
		Battery:      &model.BatteryStatus{Charge: 73, Charging: true},
	}}

	desc := item.Description()
	assert.Contains(t, desc, "phone")
	assert.Contains(t, desc, "paired")
	assert.Contains(t, desc, "73%+")
	assert.Contains(t, desc, "battery,sms")
}

func TestDeviceItemFilterValue(t *testing.T) {
	item := deviceItem{device: model.Device{Name: "Pixel", Type: model.DeviceTypePhone}}
	assert.Equal(t, "Pixel phone", item.FilterValue())
}
