package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nwxnw/cosmic-connect-applet/internal/model"
)

func strp(s string) *string                      { return &s }
func boolp(b bool) *bool                         { return &b }
func pairp(p model.PairState) *model.PairState   { return &p }
func typep(t model.DeviceType) *model.DeviceType { return &t }

func TestUpsert_CreatesDevice(t *testing.T) {
	r := New()
	defer r.Close()

	r.Upsert("dev-1", Fields{Name: strp("Pixel"), Reachable: boolp(true)})

	dev, ok := r.Get("dev-1")
	require.True(t, ok)
	assert.Equal(t, "Pixel", dev.Name)
	assert.True(t, dev.Reachable)
	assert.Equal(t, model.PairStateUnpaired, dev.Pair)
	assert.Equal(t, 1, r.Count())
}

func TestUpsert_PartialUpdatePreservesFields(t *testing.T) {
	r := New()
	defer r.Close()

	r.Upsert("dev-1", Fields{
		Name:      strp("Pixel"),
		Type:      typep(model.DeviceTypePhone),
		Reachable: boolp(true),
	})
	r.Upsert("dev-1", Fields{Reachable: boolp(false)})

	dev, ok := r.Get("dev-1")
	require.True(t, ok)
	assert.Equal(t, "Pixel", dev.Name)
	assert.Equal(t, model.DeviceTypePhone, dev.Type)
	assert.False(t, dev.Reachable)
}

// Applying updates field-by-field must give the same result as the
// merged sequence: last write wins per field, no cross-field clobber.
func TestUpsert_LastWriteWinsPerField(t *testing.T) {
	r := New()
	defer r.Close()

	r.Upsert("dev-1", Fields{Name: strp("old"), Reachable: boolp(false)})
	r.Upsert("dev-1", Fields{Name: strp("new")})
	r.Upsert("dev-1", Fields{Reachable: boolp(true)})
	r.Upsert("dev-1", Fields{Battery: &model.BatteryStatus{Charge: 50}})

	dev, _ := r.Get("dev-1")
	assert.Equal(t, "new", dev.Name)
	assert.True(t, dev.Reachable)
	require.NotNil(t, dev.Battery)
	assert.Equal(t, 50, dev.Battery.Charge)
}

func TestUpsert_CapabilitiesRequirePaired(t *testing.T) {
	r := New()
	defer r.Close()

	// Capabilities on an unpaired device are dropped.
	r.Upsert("dev-1", Fields{
		Capabilities: model.NewCapabilitySet(model.CapabilitySMS),
	})
	dev, _ := r.Get("dev-1")
	assert.Empty(t, dev.Capabilities)

	// Once paired they stick.
	r.SetPairState("dev-1", model.PairStatePaired)
	r.Upsert("dev-1", Fields{
		Capabilities: model.NewCapabilitySet(model.CapabilitySMS, model.CapabilityBattery),
	})
	dev, _ = r.Get("dev-1")
	assert.True(t, dev.Capabilities.Has(model.CapabilitySMS))
}

func TestSetPairState_UnpairClearsCapabilitiesAtomically(t *testing.T) {
	r := New()
	defer r.Close()

	r.Upsert("dev-1", Fields{Pair: pairp(model.PairStatePaired)})
	r.Upsert("dev-1", Fields{
		Capabilities: model.NewCapabilitySet(model.CapabilityBattery, model.CapabilitySMS),
		Battery:      &model.BatteryStatus{Charge: 90},
	})

	r.SetPairState("dev-1", model.PairStateUnpaired)

	dev, ok := r.Get("dev-1")
	require.True(t, ok)
	assert.Equal(t, model.PairStateUnpaired, dev.Pair)
	assert.Empty(t, dev.Capabilities)
	assert.Nil(t, dev.Battery)
}

func TestRemove(t *testing.T) {
	r := New()
	defer r.Close()

	r.Upsert("dev-1", Fields{Name: strp("Pixel")})
	assert.True(t, r.Remove("dev-1"))
	assert.False(t, r.Remove("dev-1"))

	_, ok := r.Get("dev-1")
	assert.False(t, ok)
}

func TestList_SortedByName(t *testing.T) {
	r := New()
	defer r.Close()

	r.Upsert("b", Fields{Name: strp("Zephyr")})
	r.Upsert("a", Fields{Name: strp("Aria")})
	r.Upsert("c", Fields{Name: strp("Aria")})

	devs := r.List()
	require.Len(t, devs, 3)
	assert.Equal(t, "a", devs[0].ID)
	assert.Equal(t, "c", devs[1].ID)
	assert.Equal(t, "b", devs[2].ID)
}

func TestGet_ReturnsCopy(t *testing.T) {
	r := New()
	defer r.Close()

	r.Upsert("dev-1", Fields{Pair: pairp(model.PairStatePaired)})
	r.Upsert("dev-1", Fields{Capabilities: model.NewCapabilitySet(model.CapabilityPing)})

	dev, _ := r.Get("dev-1")
	dev.Capabilities[model.CapabilitySMS] = struct{}{}
	dev.Name = "mutated"

	fresh, _ := r.Get("dev-1")
	assert.False(t, fresh.Capabilities.Has(model.CapabilitySMS))
	assert.Empty(t, fresh.Name)
}

func TestStale_FreezesMirror(t *testing.T) {
	r := New()
	defer r.Close()

	r.Upsert("dev-1", Fields{Name: strp("Pixel")})
	r.SetStale(true)
	assert.True(t, r.Stale())

	// Frozen: neither updates nor removals apply.
	r.Upsert("dev-1", Fields{Name: strp("clobber")})
	r.Upsert("dev-2", Fields{Name: strp("new")})
	assert.False(t, r.Remove("dev-1"))

	dev, ok := r.Get("dev-1")
	require.True(t, ok)
	assert.Equal(t, "Pixel", dev.Name)
	assert.Equal(t, 1, r.Count())

	r.SetStale(false)
	r.Upsert("dev-1", Fields{Name: strp("fresh")})
	dev, _ = r.Get("dev-1")
	assert.Equal(t, "fresh", dev.Name)
}

func TestClear_LiftsStaleAndEmitsRemovals(t *testing.T) {
	r := New()
	defer r.Close()

	r.Upsert("dev-1", Fields{})
	r.Upsert("dev-2", Fields{})

	ch := r.Subscribe()
	r.SetStale(true)
	r.Clear()

	assert.False(t, r.Stale())
	assert.Equal(t, 0, r.Count())

	var removed int
	for len(ch) > 0 {
		ev := <-ch
		if ev.Type == ChangeTypeRemoved {
			removed++
		}
	}
	assert.Equal(t, 2, removed)
}

func TestSubscribe_ReceivesChangeEvents(t *testing.T) {
	r := New()
	defer r.Close()

	ch := r.Subscribe()

	r.Upsert("dev-1", Fields{Name: strp("Pixel")})
	ev := <-ch
	assert.Equal(t, ChangeTypeAdded, ev.Type)
	assert.Equal(t, "dev-1", ev.DeviceID)

	r.Upsert("dev-1", Fields{Reachable: boolp(true)})
	ev = <-ch
	assert.Equal(t, ChangeTypeUpdated, ev.Type)

	r.Remove("dev-1")
	ev = <-ch
	assert.Equal(t, ChangeTypeRemoved, ev.Type)
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	r := New()
	defer r.Close()

	ch := r.Subscribe()
	r.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)
}
