// Package pairing drives the per-device pairing state machine.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nwxnw/cosmic-connect-applet/internal/model"
	"github.com/nwxnw/cosmic-connect-applet/internal/registry"
)

// ErrCooldownActive means a recent rejection is still blocking
// re-requests. The state decays to unpaired once the cooldown elapses.
var ErrCooldownActive = errors.New("pairing recently rejected, cooling down")

// Daemon pair-state values as delivered by pairStateChanged.
const (
	daemonNotPaired       = 0
	daemonRequested       = 1
	daemonRequestedByPeer = 2
	daemonPaired          = 3
)

// Config holds the pairing policy constants.
type Config struct {
	// Cooldown is how long RejectedRecently blocks a new local request
	// before decaying back to Unpaired.
	Cooldown time.Duration
	// RequestTimeout bounds how long a local request may stay
	// unanswered before it is treated as failed-pending.
	RequestTimeout time.Duration
}

// Requester issues pairing calls to the daemon.
type Requester interface {
	RequestPairing(ctx context.Context, deviceID string) error
	Unpair(ctx context.Context, deviceID string) error
	AcceptPairing(ctx context.Context, deviceID string) error
	CancelPairing(ctx context.Context, deviceID string) error
}

// Machine governs pairing transitions for all devices. State itself
// lives in the registry; the machine owns the transition rules, the
// rejection cooldown, and the request timeout.
type Machine struct {
	mu     sync.Mutex
	cfg    Config
	reg    *registry.Registry
	bus    Requester
	logger *slog.Logger

	// gens invalidates outstanding timers and late daemon responses:
	// every locally-driven transition bumps the device's generation,
	// and a timer or response carrying a stale generation is discarded.
	gens   map[string]uint64
	timers map[string]*time.Timer

	// cancelled marks devices whose in-flight local request was
	// cancelled and whose cancellation the daemon has not yet settled.
	// An acceptance arriving in that window belongs to the cancelled
	// request and is discarded.
	cancelled map[string]bool
}

// NewMachine creates a pairing machine.
func NewMachine(cfg Config, reg *registry.Registry, bus Requester, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		cfg:       cfg,
		reg:       reg,
		bus:       bus,
		logger:    logger,
		gens:      make(map[string]uint64),
		timers:    make(map[string]*time.Timer),
		cancelled: make(map[string]bool),
	}
}

// Request initiates pairing with a device. Requesting an already
// paired device is a success no-op; a request during the rejection
// cooldown fails with ErrCooldownActive.
func (m *Machine) Request(ctx context.Context, deviceID string) error {
	dev, ok := m.reg.Get(deviceID)
	if !ok {
		return fmt.Errorf("request pairing %q: %w", deviceID, model.ErrDeviceNotFound)
	}

	switch dev.Pair {
	case model.PairStatePaired:
		return nil
	case model.PairStateRequestedByLocal:
		return nil
	case model.PairStateRejectedRecently:
		return fmt.Errorf("request pairing %q: %w", deviceID, ErrCooldownActive)
	}

	m.mu.Lock()
	gen := m.bump(deviceID)
	delete(m.cancelled, deviceID)
	m.reg.SetPairState(deviceID, model.PairStateRequestedByLocal)
	m.armTimer(deviceID, gen, m.cfg.RequestTimeout, func() {
		m.logger.Warn("pairing request timed out", "device", deviceID)
		m.reg.SetPairState(deviceID, model.PairStateUnpaired)
	})
	m.mu.Unlock()

	if err := m.bus.RequestPairing(ctx, deviceID); err != nil {
		m.mu.Lock()
		m.bump(deviceID)
		m.reg.SetPairState(deviceID, model.PairStateUnpaired)
		m.mu.Unlock()
		return fmt.Errorf("request pairing %q: %w", deviceID, err)
	}
	return nil
}

// Accept accepts a pairing request initiated by the remote device.
func (m *Machine) Accept(ctx context.Context, deviceID string) error {
	dev, ok := m.reg.Get(deviceID)
	if !ok {
		return fmt.Errorf("accept pairing %q: %w", deviceID, model.ErrDeviceNotFound)
	}
	if dev.Pair != model.PairStateRequestedByRemote {
		return fmt.Errorf("accept pairing %q: no pending request", deviceID)
	}
	if err := m.bus.AcceptPairing(ctx, deviceID); err != nil {
		return fmt.Errorf("accept pairing %q: %w", deviceID, err)
	}
	m.mu.Lock()
	m.bump(deviceID)
	delete(m.cancelled, deviceID)
	m.reg.SetPairState(deviceID, model.PairStatePaired)
	m.mu.Unlock()
	return nil
}

// Reject declines a pairing request initiated by the remote device.
func (m *Machine) Reject(ctx context.Context, deviceID string) error {
	dev, ok := m.reg.Get(deviceID)
	if !ok {
		return fmt.Errorf("reject pairing %q: %w", deviceID, model.ErrDeviceNotFound)
	}
	if dev.Pair != model.PairStateRequestedByRemote {
		return fmt.Errorf("reject pairing %q: no pending request", deviceID)
	}
	if err := m.bus.CancelPairing(ctx, deviceID); err != nil {
		return fmt.Errorf("reject pairing %q: %w", deviceID, err)
	}
	m.mu.Lock()
	m.bump(deviceID)
	m.reg.SetPairState(deviceID, model.PairStateUnpaired)
	m.mu.Unlock()
	return nil
}

// Unpair drops pairing with a device. An in-flight local request is
// cancelled immediately; the state transitions without waiting for the
// daemon, and a late response for the cancelled request is discarded.
// The registry clears the capability set in the same update.
func (m *Machine) Unpair(ctx context.Context, deviceID string) error {
	dev, ok := m.reg.Get(deviceID)
	if !ok {
		return fmt.Errorf("unpair %q: %w", deviceID, model.ErrDeviceNotFound)
	}

	wasRequest := dev.Pair == model.PairStateRequestedByLocal

	m.mu.Lock()
	m.bump(deviceID)
	if wasRequest {
		m.cancelled[deviceID] = true
	}
	m.reg.SetPairState(deviceID, model.PairStateUnpaired)
	m.mu.Unlock()

	var err error
	if wasRequest {
		err = m.bus.CancelPairing(ctx, deviceID)
	} else {
		err = m.bus.Unpair(ctx, deviceID)
	}
	if err != nil {
		// Local state already transitioned; the daemon will converge
		// on its next signal. Report the failure to the caller.
		return fmt.Errorf("unpair %q: %w", deviceID, err)
	}
	return nil
}

// HandleRemoteRequest applies an incoming pairing request signal.
func (m *Machine) HandleRemoteRequest(deviceID string) {
	dev, ok := m.reg.Get(deviceID)
	if !ok || dev.Pair == model.PairStatePaired {
		return
	}
	m.mu.Lock()
	m.bump(deviceID)
	m.reg.SetPairState(deviceID, model.PairStateRequestedByRemote)
	m.mu.Unlock()
}

// HandleResult applies a daemon pairing result. The daemon owns pair
// state, so an acceptance applies even with no local request in flight
// (pairing completed on the daemon's side, or confirmed on another
// front). The one exception is an acceptance for a request the user
// already cancelled, which is discarded until the daemon settles the
// cancellation. Rejections with no request in flight are discarded.
func (m *Machine) HandleResult(deviceID string, accepted bool) {
	dev, ok := m.reg.Get(deviceID)
	if !ok {
		return
	}

	requested := dev.Pair == model.PairStateRequestedByLocal ||
		dev.Pair == model.PairStateRequestedByRemote

	if accepted {
		m.mu.Lock()
		if m.cancelled[deviceID] {
			m.mu.Unlock()
			m.logger.Debug("discarding pairing acceptance for a cancelled request",
				"device", deviceID)
			return
		}
		m.bump(deviceID)
		m.reg.SetPairState(deviceID, model.PairStatePaired)
		m.mu.Unlock()
		return
	}

	if !requested {
		m.logger.Debug("discarding pairing rejection with no request in flight",
			"device", deviceID)
		return
	}

	m.mu.Lock()
	gen := m.bump(deviceID)
	if dev.Pair == model.PairStateRequestedByLocal && m.cfg.Cooldown > 0 {
		m.reg.SetPairState(deviceID, model.PairStateRejectedRecently)
		m.armTimer(deviceID, gen, m.cfg.Cooldown, func() {
			m.reg.SetPairState(deviceID, model.PairStateUnpaired)
		})
	} else {
		m.reg.SetPairState(deviceID, model.PairStateUnpaired)
	}
	m.mu.Unlock()
}

// ApplyDaemonState translates a raw pairStateChanged value into the
// local state machine.
func (m *Machine) ApplyDaemonState(deviceID string, state int32) {
	switch state {
	case daemonPaired:
		m.HandleResult(deviceID, true)
	case daemonRequestedByPeer:
		m.HandleRemoteRequest(deviceID)
	case daemonRequested:
		// Confirmation of our own request; nothing to change.
	case daemonNotPaired:
		// The daemon reporting not-paired settles any outstanding
		// cancellation; later acceptances are genuine.
		m.mu.Lock()
		delete(m.cancelled, deviceID)
		m.mu.Unlock()

		dev, ok := m.reg.Get(deviceID)
		if !ok {
			return
		}
		switch dev.Pair {
		case model.PairStateRequestedByLocal, model.PairStateRequestedByRemote:
			m.HandleResult(deviceID, false)
		case model.PairStatePaired:
			m.mu.Lock()
			m.bump(deviceID)
			m.reg.SetPairState(deviceID, model.PairStateUnpaired)
			m.mu.Unlock()
		}
	default:
		m.logger.Warn("unknown daemon pair state", "device", deviceID, "state", state)
	}
}

// Forget drops timer and generation state for a removed device.
func (m *Machine) Forget(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[deviceID]; ok {
		t.Stop()
		delete(m.timers, deviceID)
	}
	delete(m.gens, deviceID)
	delete(m.cancelled, deviceID)
}

// Stop cancels all outstanding timers.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}

// bump advances the device generation, invalidating any outstanding
// timer or late response. Callers must hold m.mu.
func (m *Machine) bump(deviceID string) uint64 {
	if t, ok := m.timers[deviceID]; ok {
		t.Stop()
		delete(m.timers, deviceID)
	}
	m.gens[deviceID]++
	return m.gens[deviceID]
}

// armTimer schedules fn after d, unless the device generation has
// moved on by then. Callers must hold m.mu.
func (m *Machine) armTimer(deviceID string, gen uint64, d time.Duration, fn func()) {
	if d <= 0 {
		return
	}
	m.timers[deviceID] = time.AfterFunc(d, func() {
		m.mu.Lock()
		if m.gens[deviceID] != gen {
			m.mu.Unlock()
			return
		}
		delete(m.timers, deviceID)
		m.gens[deviceID]++
		m.mu.Unlock()
		fn()
	})
}
