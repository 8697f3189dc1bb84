// Package reconcile applies the daemon's serialized event stream to
// the local model. One goroutine consumes the bus client's channel,
// so readers never see a half-applied update.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/nwxnw/cosmic-connect-applet/internal/dbus"
	"github.com/nwxnw/cosmic-connect-applet/internal/model"
	"github.com/nwxnw/cosmic-connect-applet/internal/pairing"
	"github.com/nwxnw/cosmic-connect-applet/internal/registry"
	"github.com/nwxnw/cosmic-connect-applet/internal/router"
	"github.com/nwxnw/cosmic-connect-applet/internal/sms"
)

// QueryBus is the synchronous query surface of the bus client used
// during enumeration and device hydration.
type QueryBus interface {
	Devices(ctx context.Context) ([]string, error)
	DeviceProperties(ctx context.Context, deviceID string) (dbus.DeviceProps, error)
	BatteryState(ctx context.Context, deviceID string) (dbus.BatteryProps, error)
	MediaState(ctx context.Context, deviceID string) (dbus.MediaProps, error)
	RequestAllConversations(ctx context.Context, deviceID string) error
}

// Reconciler owns all writes driven by inbound daemon events. The
// router's optimistic SMS path is the only other writer; both
// serialize on the per-store locks.
type Reconciler struct {
	bus      QueryBus
	registry *registry.Registry
	pairing  *pairing.Machine
	messages *sms.Model
	router   *router.Router
	logger   *slog.Logger

	// fetchTimeout bounds each hydration round-trip so one slow
	// device cannot stall the event loop indefinitely.
	fetchTimeout time.Duration
}

// New creates a reconciler over the shared stores.
func New(bus QueryBus, reg *registry.Registry, pm *pairing.Machine, messages *sms.Model, rt *router.Router, fetchTimeout time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 5 * time.Second
	}
	return &Reconciler{
		bus:          bus,
		registry:     reg,
		pairing:      pm,
		messages:     messages,
		router:       rt,
		logger:       logger,
		fetchTimeout: fetchTimeout,
	}
}

// Bootstrap populates the registry from an initial enumeration and
// removes local devices the daemon no longer reports. Safe to call
// again after a transport restore.
func (r *Reconciler) Bootstrap(ctx context.Context) error {
	ids, err := r.bus.Devices(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
		r.hydrate(ctx, id)
	}

	for _, dev := range r.registry.List() {
		if _, ok := seen[dev.ID]; ok {
			continue
		}
		r.dropDevice(dev.ID)
	}

	r.logger.Info("device enumeration complete", "count", len(ids))
	return nil
}

// Run consumes events until the channel closes or ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, events <-chan dbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.Apply(ctx, ev)
		}
	}
}

// Apply reconciles a single event into the local model.
func (r *Reconciler) Apply(ctx context.Context, ev dbus.Event) {
	switch e := ev.(type) {
	case dbus.DeviceAdded:
		r.hydrate(ctx, e.DeviceID)

	case dbus.DeviceRemoved:
		r.dropDevice(e.DeviceID)

	case dbus.ReachableChanged:
		reachable := e.Reachable
		r.registry.Upsert(e.DeviceID, registry.Fields{Reachable: &reachable})

	case dbus.PairStateChanged:
		wasPaired := r.isPaired(e.DeviceID)
		r.pairing.ApplyDaemonState(e.DeviceID, e.State)
		if !wasPaired && r.isPaired(e.DeviceID) {
			// Newly paired: plugin state becomes available now.
			r.hydrate(ctx, e.DeviceID)
		}

	case dbus.PropertiesChanged:
		r.applyProperties(e)

	case dbus.MessageReceived:
		r.messages.Ingest(e.DeviceID, e.Message)

	case dbus.CommandResult:
		r.router.HandleCommandResult(e.CorrelationID, e.Err)

	case dbus.TransportLost:
		r.logger.Warn("daemon left the bus; freezing device state")
		r.registry.SetStale(true)

	case dbus.TransportRestored:
		r.logger.Info("daemon returned to the bus; re-enumerating")
		r.registry.SetStale(false)
		if err := r.Bootstrap(ctx); err != nil {
			r.logger.Error("re-enumeration failed", "error", err)
		}

	default:
		r.logger.Debug("ignoring unhandled event", "event", ev)
	}
}

func (r *Reconciler) isPaired(deviceID string) bool {
	dev, ok := r.registry.Get(deviceID)
	return ok && dev.Pair == model.PairStatePaired
}

// hydrate fetches full device properties and, for paired devices,
// plugin state and the conversation backlog.
func (r *Reconciler) hydrate(ctx context.Context, deviceID string) {
	fctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	props, err := r.bus.DeviceProperties(fctx, deviceID)
	if err != nil {
		r.logger.Warn("device property fetch failed", "device_id", deviceID, "error", err)
		return
	}
	r.registry.Upsert(deviceID, deviceFields(props))

	dev, ok := r.registry.Get(deviceID)
	if !ok || dev.Pair != model.PairStatePaired {
		return
	}

	if dev.Capabilities.Has(model.CapabilityBattery) {
		if battery, err := r.bus.BatteryState(fctx, deviceID); err == nil {
			merged := battery.Merge(dev.Battery)
			r.registry.Upsert(deviceID, registry.Fields{Battery: &merged})
		}
	}
	if dev.Capabilities.Has(model.CapabilityMediaControl) {
		if media, err := r.bus.MediaState(fctx, deviceID); err == nil {
			merged := media.Merge(dev.Media)
			r.registry.Upsert(deviceID, registry.Fields{Media: &merged})
		}
	}
	if dev.Capabilities.Has(model.CapabilitySMS) {
		if err := r.bus.RequestAllConversations(fctx, deviceID); err != nil {
			r.logger.Warn("conversation backfill request failed", "device_id", deviceID, "error", err)
		}
	}
}

func (r *Reconciler) dropDevice(deviceID string) {
	if !r.registry.Remove(deviceID) {
		return
	}
	r.pairing.Forget(deviceID)
	r.router.DropDevice(deviceID)
	r.messages.DropDevice(deviceID)
}

// applyProperties routes a property update to the right store slice.
func (r *Reconciler) applyProperties(e dbus.PropertiesChanged) {
	dev, ok := r.registry.Get(e.DeviceID)
	if !ok {
		// Updates for unknown devices are dropped; a deviceAdded
		// event will trigger a full hydration instead.
		return
	}

	switch e.Iface {
	case "device":
		r.registry.Upsert(e.DeviceID, deviceFields(dbus.ParseDeviceProps(e.Props)))
	case "battery":
		merged := dbus.ParseBatteryProps(e.Props).Merge(dev.Battery)
		r.registry.Upsert(e.DeviceID, registry.Fields{Battery: &merged})
	case "mprisremote":
		merged := dbus.ParseMediaProps(e.Props).Merge(dev.Media)
		r.registry.Upsert(e.DeviceID, registry.Fields{Media: &merged})
	}
}

// deviceFields converts parsed device properties into a partial
// registry update.
func deviceFields(p dbus.DeviceProps) registry.Fields {
	var f registry.Fields
	f.Name = p.Name
	f.Reachable = p.Reachable
	if p.Type != nil {
		dt := model.NormalizeDeviceType(*p.Type)
		f.Type = &dt
	}
	if p.PairState != nil {
		ps := pairStateFromDaemon(*p.PairState)
		f.Pair = &ps
	}
	if p.Plugins != nil {
		f.Capabilities = model.CapabilitiesFromPlugins(p.Plugins)
	}
	return f
}

// pairStateFromDaemon maps the daemon's pairStateChanged values onto
// local states. Used for snapshots; live transitions go through the
// pairing machine.
func pairStateFromDaemon(state int32) model.PairState {
	switch state {
	case 1:
		return model.PairStateRequestedByLocal
	case 2:
		return model.PairStateRequestedByRemote
	case 3:
		return model.PairStatePaired
	default:
		return model.PairStateUnpaired
	}
}
