package dbus

import (
	"strconv"

	godbus "github.com/godbus/dbus/v5"

	"github.com/nwxnw/cosmic-connect-applet/internal/model"
	"github.com/nwxnw/cosmic-connect-applet/internal/sms"
)

// DeviceProps is a partial device property update. Nil members were
// not present in the update.
type DeviceProps struct {
	Name      *string
	Type      *string
	Reachable *bool
	PairState *int32
	Plugins   []string
}

// ParseDeviceProps extracts the device attributes this applet mirrors
// from an org.kde.kdeconnect.device property map.
func ParseDeviceProps(props map[string]godbus.Variant) DeviceProps {
	var out DeviceProps

	if v, ok := asString(props, "name"); ok {
		out.Name = &v
	}
	if v, ok := asString(props, "type"); ok {
		out.Type = &v
	}
	if v, ok := asBool(props, "isReachable"); ok {
		out.Reachable = &v
	}
	if v, ok := asStringSlice(props, "supportedPlugins"); ok {
		out.Plugins = v
	}

	// The pairing flags only produce a state when isPaired is present;
	// pairStateChanged signals carry the authoritative transitions.
	if paired, ok := asBool(props, "isPaired"); ok {
		state := int32(0)
		switch {
		case paired:
			state = 3
		case boolOr(props, "isPairRequested"):
			state = 1
		case boolOr(props, "isPairRequestedByPeer"):
			state = 2
		}
		out.PairState = &state
	}

	return out
}

// BatteryProps is a partial battery update.
type BatteryProps struct {
	Charge   *int
	Charging *bool
}

// ParseBatteryProps extracts battery fields from a property map.
func ParseBatteryProps(props map[string]godbus.Variant) BatteryProps {
	var out BatteryProps
	if v, ok := asInt64(props, "charge"); ok {
		c := int(v)
		out.Charge = &c
	}
	if v, ok := asBool(props, "isCharging"); ok {
		out.Charging = &v
	}
	return out
}

// MediaProps is a partial media player state update.
type MediaProps struct {
	Players       []string
	CurrentPlayer *string
	IsPlaying     *bool
	Volume        *int
	Title         *string
	Artist        *string
	Album         *string
	Position      *int64
	Length        *int64
}

// ParseMediaProps extracts mprisremote fields from a property map.
func ParseMediaProps(props map[string]godbus.Variant) MediaProps {
	var out MediaProps
	if v, ok := asStringSlice(props, "playerList"); ok {
		out.Players = v
	}
	if v, ok := asString(props, "player"); ok {
		out.CurrentPlayer = &v
	}
	if v, ok := asBool(props, "isPlaying"); ok {
		out.IsPlaying = &v
	}
	if v, ok := asInt64(props, "volume"); ok {
		vol := int(v)
		out.Volume = &vol
	}
	if v, ok := asString(props, "title"); ok {
		out.Title = &v
	}
	if v, ok := asString(props, "artist"); ok {
		out.Artist = &v
	}
	if v, ok := asString(props, "album"); ok {
		out.Album = &v
	}
	if v, ok := asInt64(props, "position"); ok {
		out.Position = &v
	}
	if v, ok := asInt64(props, "length"); ok {
		out.Length = &v
	}
	return out
}

// Merge applies the partial update over an existing state, returning
// the merged snapshot.
func (p MediaProps) Merge(cur *model.MediaState) model.MediaState {
	var out model.MediaState
	if cur != nil {
		out = *cur
		out.Players = append([]string(nil), cur.Players...)
	}
	if p.Players != nil {
		out.Players = append([]string(nil), p.Players...)
	}
	if p.CurrentPlayer != nil {
		out.CurrentPlayer = *p.CurrentPlayer
	}
	if p.IsPlaying != nil {
		out.IsPlaying = *p.IsPlaying
	}
	if p.Volume != nil {
		out.Volume = *p.Volume
	}
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Artist != nil {
		out.Artist = *p.Artist
	}
	if p.Album != nil {
		out.Album = *p.Album
	}
	if p.Position != nil {
		out.Position = *p.Position
	}
	if p.Length != nil {
		out.Length = *p.Length
	}
	return out
}

// Merge applies the partial update over an existing snapshot.
func (p BatteryProps) Merge(cur *model.BatteryStatus) model.BatteryStatus {
	var out model.BatteryStatus
	if cur != nil {
		out = *cur
	}
	if p.Charge != nil {
		out.Charge = *p.Charge
	}
	if p.Charging != nil {
		out.Charging = *p.Charging
	}
	return out
}

// Android SMS type constants carried in conversation messages. Only
// inbox messages are truly incoming; drafts, outbox, failed, and
// queued are all locally originated.
const smsTypeInbox = 1

// ParseConversationMessage decodes a conversationUpdated payload into
// a raw message event. The payload is a dict of message fields.
func ParseConversationMessage(v godbus.Variant) (sms.RawMessage, bool) {
	val := v.Value()
	for {
		inner, ok := val.(godbus.Variant)
		if !ok {
			break
		}
		val = inner.Value()
	}
	props, ok := val.(map[string]godbus.Variant)
	if !ok {
		return sms.RawMessage{}, false
	}

	var raw sms.RawMessage
	if body, ok := asString(props, "body"); ok {
		raw.Body = body
	}
	if ts, ok := asInt64(props, "date"); ok {
		raw.Timestamp = ts
	}
	if tid, ok := asInt64(props, "thread_id"); ok {
		raw.ThreadID = tid
	}
	if id, ok := asInt64(props, "_id"); ok {
		raw.MsgID = "sms-" + strconv.FormatInt(id, 10)
	}
	if typ, ok := asInt64(props, "type"); ok && typ != smsTypeInbox {
		raw.Direction = model.DirectionOutgoing
	}
	if read, ok := asInt64(props, "read"); ok {
		raw.Read = read != 0
	}

	raw.Addresses = parseAddresses(props["addresses"])
	if raw.Direction == model.DirectionIncoming && len(raw.Addresses) > 0 {
		raw.Sender = raw.Addresses[0]
	}

	if raw.MsgID == "" && raw.Body == "" {
		return sms.RawMessage{}, false
	}
	return raw, true
}

// parseAddresses accepts the daemon's address list: an array of
// variants each wrapping a single-string struct, or plain strings.
func parseAddresses(v godbus.Variant) []string {
	var out []string

	appendAddr := func(item any) {
		switch a := item.(type) {
		case string:
			if a != "" {
				out = append(out, a)
			}
		case []any:
			if len(a) > 0 {
				if s, ok := a[0].(string); ok && s != "" {
					out = append(out, s)
				}
			}
		case godbus.Variant:
			appendVariantAddr(&out, a)
		}
	}

	switch list := v.Value().(type) {
	case []godbus.Variant:
		for _, item := range list {
			appendVariantAddr(&out, item)
		}
	case []any:
		for _, item := range list {
			appendAddr(item)
		}
	case string:
		if list != "" {
			out = append(out, list)
		}
	}
	return out
}

func appendVariantAddr(out *[]string, v godbus.Variant) {
	switch a := v.Value().(type) {
	case string:
		if a != "" {
			*out = append(*out, a)
		}
	case []any:
		if len(a) > 0 {
			if s, ok := a[0].(string); ok && s != "" {
				*out = append(*out, s)
			}
		}
	}
}

func asString(props map[string]godbus.Variant, key string) (string, bool) {
	v, ok := props[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value().(string)
	return s, ok
}

func asBool(props map[string]godbus.Variant, key string) (bool, bool) {
	v, ok := props[key]
	if !ok {
		return false, false
	}
	b, ok := v.Value().(bool)
	return b, ok
}

func boolOr(props map[string]godbus.Variant, key string) bool {
	b, _ := asBool(props, key)
	return b
}

// asInt64 coerces the numeric types the daemon uses interchangeably.
func asInt64(props map[string]godbus.Variant, key string) (int64, bool) {
	v, ok := props[key]
	if !ok {
		return 0, false
	}
	switch n := v.Value().(type) {
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case byte:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func asStringSlice(props map[string]godbus.Variant, key string) ([]string, bool) {
	v, ok := props[key]
	if !ok {
		return nil, false
	}
	switch s := v.Value().(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out, true
	default:
		return nil, false
	}
}
