package dbus

import (
	"testing"

	godbus "github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nwxnw/cosmic-connect-applet/internal/model"
)

func TestParseDeviceProps(t *testing.T) {
	props := map[string]godbus.Variant{
		"name":             godbus.MakeVariant("Pixel 9"),
		"type":             godbus.MakeVariant("phone"),
		"isReachable":      godbus.MakeVariant(true),
		"isPaired":         godbus.MakeVariant(true),
		"supportedPlugins": godbus.MakeVariant([]string{"kdeconnect_battery", "kdeconnect_ping"}),
	}

	out := ParseDeviceProps(props)

	require.NotNil(t, out.Name)
	assert.Equal(t, "Pixel 9", *out.Name)
	require.NotNil(t, out.Type)
	assert.Equal(t, "phone", *out.Type)
	require.NotNil(t, out.Reachable)
	assert.True(t, *out.Reachable)
	require.NotNil(t, out.PairState)
	assert.Equal(t, int32(3), *out.PairState)
	assert.Equal(t, []string{"kdeconnect_battery", "kdeconnect_ping"}, out.Plugins)
}

func TestParseDevicePropsPartial(t *testing.T) {
	out := ParseDeviceProps(map[string]godbus.Variant{
		"name": godbus.MakeVariant("Tablet"),
	})

	require.NotNil(t, out.Name)
	assert.Nil(t, out.Type)
	assert.Nil(t, out.Reachable)
	// Pair state needs the isPaired flag; a name-only update must not
	// imply anything about pairing.
	assert.Nil(t, out.PairState)
	assert.Nil(t, out.Plugins)
}

func TestParseDevicePropsPairStates(t *testing.T) {
	tests := []struct {
		name     string
		props    map[string]godbus.Variant
		expected int32
	}{
		{
			name: "not paired",
			props: map[string]godbus.Variant{
				"isPaired": godbus.MakeVariant(false),
			},
			expected: 0,
		},
		{
			name: "requested by us",
			props: map[string]godbus.Variant{
				"isPaired":        godbus.MakeVariant(false),
				"isPairRequested": godbus.MakeVariant(true),
			},
			expected: 1,
		},
		{
			name: "requested by peer",
			props: map[string]godbus.Variant{
				"isPaired":              godbus.MakeVariant(false),
				"isPairRequestedByPeer": godbus.MakeVariant(true),
			},
			expected: 2,
		},
		{
			name: "paired wins over stale request flags",
			props: map[string]godbus.Variant{
				"isPaired":        godbus.MakeVariant(true),
				"isPairRequested": godbus.MakeVariant(true),
			},
			expected: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ParseDeviceProps(tt.props)
			require.NotNil(t, out.PairState)
			assert.Equal(t, tt.expected, *out.PairState)
		})
	}
}

func TestParseBatteryPropsAndMerge(t *testing.T) {
	out := ParseBatteryProps(map[string]godbus.Variant{
		"charge":     godbus.MakeVariant(int32(87)),
		"isCharging": godbus.MakeVariant(true),
	})

	require.NotNil(t, out.Charge)
	assert.Equal(t, 87, *out.Charge)
	require.NotNil(t, out.Charging)
	assert.True(t, *out.Charging)

	// A charge-only update keeps the previous charging flag.
	cur := model.BatteryStatus{Charge: 87, Charging: true}
	partial := ParseBatteryProps(map[string]godbus.Variant{
		"charge": godbus.MakeVariant(int32(85)),
	})
	merged := partial.Merge(&cur)
	assert.Equal(t, 85, merged.Charge)
	assert.True(t, merged.Charging)
}

func TestParseMediaPropsMerge(t *testing.T) {
	full := ParseMediaProps(map[string]godbus.Variant{
		"playerList": godbus.MakeVariant([]string{"Spotify", "Firefox"}),
		"player":     godbus.MakeVariant("Spotify"),
		"isPlaying":  godbus.MakeVariant(true),
		"volume":     godbus.MakeVariant(int32(60)),
		"title":      godbus.MakeVariant("Track"),
		"artist":     godbus.MakeVariant("Artist"),
	})

	state := full.Merge(nil)
	assert.Equal(t, []string{"Spotify", "Firefox"}, state.Players)
	assert.Equal(t, "Spotify", state.CurrentPlayer)
	assert.True(t, state.IsPlaying)
	assert.Equal(t, 60, state.Volume)
	assert.Equal(t, "Track", state.Title)

	// Pausing must not clear the track metadata.
	partial := ParseMediaProps(map[string]godbus.Variant{
		"isPlaying": godbus.MakeVariant(false),
	})
	merged := partial.Merge(&state)
	assert.False(t, merged.IsPlaying)
	assert.Equal(t, "Track", merged.Title)
	assert.Equal(t, "Artist", merged.Artist)
	assert.Equal(t, []string{"Spotify", "Firefox"}, merged.Players)
}

func TestParseConversationMessage(t *testing.T) {
	payload := godbus.MakeVariant(map[string]godbus.Variant{
		"_id":       godbus.MakeVariant(int32(4711)),
		"thread_id": godbus.MakeVariant(int64(12)),
		"body":      godbus.MakeVariant("hello"),
		"date":      godbus.MakeVariant(int64(1700000000000)),
		"type":      godbus.MakeVariant(int32(1)),
		"read":      godbus.MakeVariant(int32(0)),
		"addresses": godbus.MakeVariant([]godbus.Variant{
			godbus.MakeVariant("+15551234567"),
		}),
	})

	raw, ok := ParseConversationMessage(payload)
	require.True(t, ok)
	assert.Equal(t, "sms-4711", raw.MsgID)
	assert.Equal(t, int64(12), raw.ThreadID)
	assert.Equal(t, "hello", raw.Body)
	assert.Equal(t, int64(1700000000000), raw.Timestamp)
	assert.Equal(t, model.DirectionIncoming, raw.Direction)
	assert.False(t, raw.Read)
	assert.Equal(t, []string{"+15551234567"}, raw.Addresses)
	assert.Equal(t, "+15551234567", raw.Sender)
}

func TestParseConversationMessageOutgoing(t *testing.T) {
	payload := godbus.MakeVariant(map[string]godbus.Variant{
		"_id":       godbus.MakeVariant(int64(99)),
		"thread_id": godbus.MakeVariant(int64(12)),
		"body":      godbus.MakeVariant("on my way"),
		"date":      godbus.MakeVariant(int64(1700000001000)),
		"type":      godbus.MakeVariant(int32(2)),
		"addresses": godbus.MakeVariant([]godbus.Variant{
			godbus.MakeVariant("+15551234567"),
		}),
	})

	raw, ok := ParseConversationMessage(payload)
	require.True(t, ok)
	assert.Equal(t, model.DirectionOutgoing, raw.Direction)
	// Outgoing messages have no remote sender.
	assert.Empty(t, raw.Sender)
}

func TestParseConversationMessageNestedVariant(t *testing.T) {
	inner := godbus.MakeVariant(map[string]godbus.Variant{
		"_id":  godbus.MakeVariant(int64(7)),
		"body": godbus.MakeVariant("nested"),
	})

	raw, ok := ParseConversationMessage(godbus.MakeVariant(inner))
	require.True(t, ok)
	assert.Equal(t, "sms-7", raw.MsgID)
	assert.Equal(t, "nested", raw.Body)
}

func TestParseConversationMessageRejectsEmpty(t *testing.T) {
	_, ok := ParseConversationMessage(godbus.MakeVariant(map[string]godbus.Variant{
		"thread_id": godbus.MakeVariant(int64(3)),
	}))
	assert.False(t, ok)

	_, ok = ParseConversationMessage(godbus.MakeVariant("not a dict"))
	assert.False(t, ok)
}

func TestParseAddressesStructs(t *testing.T) {
	// The daemon wraps each address in a variant holding a
	// single-string struct.
	v := godbus.MakeVariant([]godbus.Variant{
		godbus.MakeVariant([]any{"+15551112222"}),
		godbus.MakeVariant([]any{"+15553334444"}),
	})
	assert.Equal(t, []string{"+15551112222", "+15553334444"}, parseAddresses(v))
}

func TestDevicePathRoundTrip(t *testing.T) {
	path := devicePath("abc123")
	assert.Equal(t, godbus.ObjectPath("/modules/kdeconnect/devices/abc123"), path)
	assert.Equal(t, "abc123", deviceIDFromPath(path))
	assert.Equal(t, "abc123", deviceIDFromPath(pluginPath("abc123", "battery")))
	assert.Equal(t, "", deviceIDFromPath("/modules/kdeconnect"))
	assert.Equal(t, "", deviceIDFromPath("/somewhere/else"))
}

func TestShortIface(t *testing.T) {
	assert.Equal(t, "device", shortIface(ifaceDevice))
	assert.Equal(t, "battery", shortIface(ifaceBattery))
	assert.Equal(t, "mprisremote", shortIface(ifaceMprisRemote))
	assert.Equal(t, "", shortIface(ifacePing))
}
