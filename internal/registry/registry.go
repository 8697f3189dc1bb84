// Package registry holds the local mirror of the daemon's device objects.
package registry

import (
	"sort"
	"sync"

	"github.com/nwxnw/cosmic-connect-applet/internal/model"
)

// ChangeType indicates the type of registry change.
type ChangeType int

const (
	// ChangeTypeAdded indicates a device was first seen.
	ChangeTypeAdded ChangeType = iota
	// ChangeTypeUpdated indicates device attributes changed.
	ChangeTypeUpdated
	// ChangeTypeRemoved indicates a device was removed.
	ChangeTypeRemoved
	// ChangeTypeStale indicates the transport state changed; the
	// device list is frozen (or unfrozen) rather than cleared.
	ChangeTypeStale
)

// ChangeEvent signals registry content changes. Delivery is
// at-least-once; consumers re-read current state rather than applying
// events as deltas, so repeats are harmless.
type ChangeEvent struct {
	Type     ChangeType
	DeviceID string
}

// Fields is a partial device update. Nil members leave the stored
// value untouched, so property-changed signals never clobber
// unrelated attributes.
type Fields struct {
	Name         *string
	Type         *model.DeviceType
	Reachable    *bool
	Pair         *model.PairState
	Capabilities model.CapabilitySet
	Battery      *model.BatteryStatus
	Media        *model.MediaState
}

// Registry manages the device mirror with thread-safe operations.
// It is populated from an initial enumeration call, updated by the
// reconciler, and cleared on transport disconnect.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*model.Device
	stale   bool

	subscribers []chan ChangeEvent
	closed      bool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		devices: make(map[string]*model.Device),
	}
}

// Upsert creates or merges fields into a device record. Fields not
// present in the update are preserved. A pairing-state write that
// leaves Paired clears the capability set in the same critical
// section, so pairing and capabilities are never observably
// inconsistent. Mutations are ignored while the registry is stale.
func (r *Registry) Upsert(id string, f Fields) {
	r.mu.Lock()

	if r.closed || r.stale {
		r.mu.Unlock()
		return
	}

	dev, exists := r.devices[id]
	if !exists {
		dev = &model.Device{
			ID:           id,
			Type:         model.DeviceTypeUnknown,
			Capabilities: make(model.CapabilitySet),
		}
		r.devices[id] = dev
	}

	if f.Name != nil {
		dev.Name = *f.Name
	}
	if f.Type != nil {
		dev.Type = *f.Type
	}
	if f.Reachable != nil {
		dev.Reachable = *f.Reachable
	}
	if f.Capabilities != nil {
		dev.Capabilities = f.Capabilities.Clone()
	}
	if f.Battery != nil {
		b := *f.Battery
		dev.Battery = &b
	}
	if f.Media != nil {
		m := *f.Media
		m.Players = append([]string(nil), f.Media.Players...)
		dev.Media = &m
	}
	if f.Pair != nil {
		dev.Pair = *f.Pair
		if dev.Pair != model.PairStatePaired {
			dev.Capabilities = make(model.CapabilitySet)
			dev.Battery = nil
			dev.Media = nil
		}
	}

	// An unpaired device never exposes plugin capabilities, even when
	// the capability update and pair-state update arrive separately.
	if dev.Pair != model.PairStatePaired && len(dev.Capabilities) > 0 {
		dev.Capabilities = make(model.CapabilitySet)
	}

	chType := ChangeTypeUpdated
	if !exists {
		chType = ChangeTypeAdded
	}
	r.notifyLocked(ChangeEvent{Type: chType, DeviceID: id})
	r.mu.Unlock()
}

// SetPairState is a convenience wrapper for pairing-state writes.
func (r *Registry) SetPairState(id string, state model.PairState) {
	r.Upsert(id, Fields{Pair: &state})
}

// Remove deletes the record and returns whether it existed. Callers
// use the return value to decide whether derived state (conversations,
// pending commands) needs teardown.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()

	if r.closed || r.stale {
		r.mu.Unlock()
		return false
	}

	if _, exists := r.devices[id]; !exists {
		r.mu.Unlock()
		return false
	}
	delete(r.devices, id)
	r.notifyLocked(ChangeEvent{Type: ChangeTypeRemoved, DeviceID: id})
	r.mu.Unlock()
	return true
}

// Get returns a copy of the device record.
func (r *Registry) Get(id string) (*model.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, ok := r.devices[id]
	if !ok {
		return nil, false
	}
	return dev.Clone(), true
}

// List returns copies of all device records, sorted by name then ID.
func (r *Registry) List() []model.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Device, 0, len(r.devices))
	for _, dev := range r.devices {
		out = append(out, *dev.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Count returns the number of known devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// SetStale marks the registry stale (transport lost) or fresh. While
// stale the device list is frozen at its last known state: devices may
// still legitimately exist even if the daemon is momentarily
// unreachable, so the mirror is kept, not cleared.
func (r *Registry) SetStale(stale bool) {
	r.mu.Lock()
	if r.closed || r.stale == stale {
		r.mu.Unlock()
		return
	}
	r.stale = stale
	r.notifyLocked(ChangeEvent{Type: ChangeTypeStale})
	r.mu.Unlock()
}

// Stale reports whether the registry is frozen at last known state.
func (r *Registry) Stale() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stale
}

// Clear removes all devices, e.g. before re-enumerating after a
// transport reconnect. Clearing also lifts staleness.
func (r *Registry) Clear() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	r.devices = make(map[string]*model.Device)
	r.stale = false
	for _, id := range ids {
		r.notifyLocked(ChangeEvent{Type: ChangeTypeRemoved, DeviceID: id})
	}
	r.mu.Unlock()
}

// Subscribe returns a channel that receives change events.
func (r *Registry) Subscribe() <-chan ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan ChangeEvent, 16)
	r.subscribers = append(r.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscription.
func (r *Registry) Unsubscribe(ch <-chan ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, sub := range r.subscribers {
		if sub == ch {
			r.subscribers = append(r.subscribers[:i], r.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

// Close releases resources and closes all subscriber channels.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for _, ch := range r.subscribers {
		close(ch)
	}
	r.subscribers = nil
}

// notifyLocked sends a change event to all subscribers (non-blocking).
// Callers must hold r.mu.
func (r *Registry) notifyLocked(event ChangeEvent) {
	for _, ch := range r.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip. Consumers re-read full state so a
			// dropped event is covered by the next one.
		}
	}
}
