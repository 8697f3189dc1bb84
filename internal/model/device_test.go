package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilityFromPlugin(t *testing.T) {
	c, ok := CapabilityFromPlugin("kdeconnect_battery")
	assert.True(t, ok)
	assert.Equal(t, CapabilityBattery, c)

	c, ok = CapabilityFromPlugin("kdeconnect_mprisremote")
	assert.True(t, ok)
	assert.Equal(t, CapabilityMediaControl, c)

	_, ok = CapabilityFromPlugin("kdeconnect_presenter")
	assert.False(t, ok)
}

func TestCapabilitiesFromPlugins(t *testing.T) {
	s := CapabilitiesFromPlugins([]string{
		"kdeconnect_ping",
		"kdeconnect_sms",
		"kdeconnect_bogus",
	})
	assert.True(t, s.Has(CapabilityPing))
	assert.True(t, s.Has(CapabilitySMS))
	assert.Len(t, s, 2)
}

func TestCapabilitySet_List_Sorted(t *testing.T) {
	s := NewCapabilitySet(CapabilitySMS, CapabilityBattery, CapabilityPing)
	assert.Equal(t, []Capability{CapabilityBattery, CapabilityPing, CapabilitySMS}, s.List())
}

func TestNormalizeDeviceType(t *testing.T) {
	assert.Equal(t, DeviceTypePhone, NormalizeDeviceType("smartphone"))
	assert.Equal(t, DeviceTypePhone, NormalizeDeviceType("Phone"))
	assert.Equal(t, DeviceTypeTV, NormalizeDeviceType("tv"))
	assert.Equal(t, DeviceTypeUnknown, NormalizeDeviceType("toaster"))
}

func TestMediaState_HasActivePlayer(t *testing.T) {
	var m *MediaState
	assert.False(t, m.HasActivePlayer())
	assert.False(t, (&MediaState{}).HasActivePlayer())
	assert.True(t, (&MediaState{Players: []string{"Spotify"}}).HasActivePlayer())
}

func TestDevice_Clone_Independent(t *testing.T) {
	d := &Device{
		ID:           "dev-1",
		Name:         "Pixel",
		Capabilities: NewCapabilitySet(CapabilityBattery),
		Battery:      &BatteryStatus{Charge: 80, Charging: true},
		Media:        &MediaState{Players: []string{"Spotify"}},
	}
	c := d.Clone()

	c.Capabilities[CapabilitySMS] = struct{}{}
	c.Battery.Charge = 10
	c.Media.Players[0] = "VLC"

	assert.False(t, d.Capabilities.Has(CapabilitySMS))
	assert.Equal(t, 80, d.Battery.Charge)
	assert.Equal(t, "Spotify", d.Media.Players[0])
}

func TestKeyForParticipants_OrderIndependent(t *testing.T) {
	a := KeyForParticipants([]string{"+15551234567", "+15559876543"})
	b := KeyForParticipants([]string{"+15559876543", " +15551234567 "})
	assert.Equal(t, a, b)
}

func TestKeyForThread(t *testing.T) {
	assert.Equal(t, ConversationKey("thread:42"), KeyForThread(42))
	assert.NotEqual(t, KeyForThread(1), KeyForThread(2))
}

func TestNormalizeParticipants(t *testing.T) {
	got := NormalizeParticipants([]string{"b", "a", "b", "", " a "})
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestConversation_Preview(t *testing.T) {
	c := &Conversation{Messages: []Message{{Body: "hello\nworld"}}}
	assert.Equal(t, "hello world", c.Preview(0))
	assert.Equal(t, "hel…", c.Preview(3))
	assert.Equal(t, "", (&Conversation{}).Preview(10))

	// Truncation counts runes, never splitting a multi-byte sequence.
	c = &Conversation{Messages: []Message{{Body: "héllo wörld"}}}
	assert.Equal(t, "héll…", c.Preview(4))
	c = &Conversation{Messages: []Message{{Body: "日本語のテキスト"}}}
	assert.Equal(t, "日本語…", c.Preview(3))
}
