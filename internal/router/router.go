// Package router dispatches plugin commands to paired devices after
// checking local preconditions, so doomed calls never reach the bus.
package router

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nwxnw/cosmic-connect-applet/internal/model"
	"github.com/nwxnw/cosmic-connect-applet/internal/registry"
	"github.com/nwxnw/cosmic-connect-applet/internal/sms"
)

// CommandBus is the outbound command surface of the bus client. Every
// method dispatches asynchronously and returns a correlation ID whose
// outcome arrives later as a command-result event.
type CommandBus interface {
	SendPing(deviceID, message string) string
	Ring(deviceID string) string
	ShareURL(deviceID, url string) string
	SendClipboard(deviceID, content string) string
	DismissNotification(deviceID, notificationID string) string
	SendMediaAction(deviceID string, action model.MediaAction) string
	SendSMS(deviceID string, addresses []string, body string, subID int64) string
}

// pendingSend tracks one optimistic SMS append awaiting its
// command-result.
type pendingSend struct {
	deviceID string
	key      model.ConversationKey
	localID  string
}

// Router checks that a device exists, is paired, and carries the
// required capability before any command leaves the process.
type Router struct {
	registry *registry.Registry
	messages *sms.Model
	bus      CommandBus
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingSend
}

// New creates a router over the given registry, conversation model,
// and bus client.
func New(reg *registry.Registry, messages *sms.Model, bus CommandBus, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: reg,
		messages: messages,
		bus:      bus,
		logger:   logger,
		pending:  make(map[string]pendingSend),
	}
}

// check runs the shared preconditions and returns the device snapshot
// on success.
func (r *Router) check(deviceID string, capability model.Capability) (*model.Device, error) {
	dev, ok := r.registry.Get(deviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrDeviceNotFound, deviceID)
	}
	if dev.Pair != model.PairStatePaired {
		return nil, fmt.Errorf("%w: %s", model.ErrNotPaired, deviceID)
	}
	if !dev.Capabilities.Has(capability) {
		return nil, fmt.Errorf("%w: %s lacks %s", model.ErrCapabilityUnavailable, deviceID, capability)
	}
	return dev, nil
}

// Ping sends a ping to the device. message may be empty.
func (r *Router) Ping(deviceID, message string) (string, error) {
	if _, err := r.check(deviceID, model.CapabilityPing); err != nil {
		return "", err
	}
	return r.bus.SendPing(deviceID, message), nil
}

// Ring makes the device ring so it can be located.
func (r *Router) Ring(deviceID string) (string, error) {
	if _, err := r.check(deviceID, model.CapabilityFindMyPhone); err != nil {
		return "", err
	}
	return r.bus.Ring(deviceID), nil
}

// DismissNotification dismisses one notification on the device.
// Dismissing an unknown or already-dismissed ID is not an error.
func (r *Router) DismissNotification(deviceID, notificationID string) (string, error) {
	if _, err := r.check(deviceID, model.CapabilityNotifications); err != nil {
		return "", err
	}
	return r.bus.DismissNotification(deviceID, notificationID), nil
}

// Share sends a local file path or a URL to the device. Bare paths
// are rewritten as file:// URLs; existence is the daemon's problem.
func (r *Router) Share(deviceID, pathOrURL string) (string, error) {
	if _, err := r.check(deviceID, model.CapabilityFileShare); err != nil {
		return "", err
	}
	url := pathOrURL
	if !strings.Contains(url, "://") {
		url = "file://" + url
	}
	return r.bus.ShareURL(deviceID, url), nil
}

// PushClipboard pushes text to the device's clipboard.
func (r *Router) PushClipboard(deviceID, text string) (string, error) {
	if _, err := r.check(deviceID, model.CapabilityClipboard); err != nil {
		return "", err
	}
	return r.bus.SendClipboard(deviceID, text), nil
}

// Media issues a media control action. A device with the media
// capability but no active player is still not controllable; that is
// a transient state, not a missing plugin, but the caller sees the
// same capability error either way.
func (r *Router) Media(deviceID string, action model.MediaAction) (string, error) {
	dev, err := r.check(deviceID, model.CapabilityMediaControl)
	if err != nil {
		return "", err
	}
	if !dev.Media.HasActivePlayer() {
		return "", fmt.Errorf("%w: %s has no active player", model.ErrCapabilityUnavailable, deviceID)
	}
	return r.bus.SendMediaAction(deviceID, action), nil
}

// SendMessage sends an SMS to the given participants. The message is
// appended to the conversation model optimistically with a sending
// status before the daemon confirms anything; HandleCommandResult
// settles it to sent or failed when the outcome arrives.
func (r *Router) SendMessage(deviceID string, participants []string, body string) (string, error) {
	if _, err := r.check(deviceID, model.CapabilitySMS); err != nil {
		return "", err
	}
	if len(participants) == 0 {
		return "", fmt.Errorf("%w: no recipients", model.ErrCommandRejected)
	}

	localID := newLocalID()
	key := r.messages.AppendLocal(deviceID, participants, body, localID)

	corr := r.bus.SendSMS(deviceID, participants, body, -1)

	r.mu.Lock()
	r.pending[corr] = pendingSend{deviceID: deviceID, key: key, localID: localID}
	r.mu.Unlock()

	return corr, nil
}

// HandleCommandResult settles the optimistic append for an SMS send,
// if the correlation ID belongs to one. Results for other commands
// are not the router's concern and are ignored.
func (r *Router) HandleCommandResult(correlationID string, cmdErr error) {
	r.mu.Lock()
	p, ok := r.pending[correlationID]
	if ok {
		delete(r.pending, correlationID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	if cmdErr != nil {
		r.logger.Warn("message send failed",
			"device_id", p.deviceID,
			"correlation_id", correlationID,
			"error", cmdErr)
		r.messages.MarkFailed(p.deviceID, p.key, p.localID)
		return
	}
	r.messages.MarkSent(p.deviceID, p.key, p.localID)
}

// DropDevice forgets pending sends for a removed device. Their late
// command-results will find nothing to settle.
func (r *Router) DropDevice(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for corr, p := range r.pending {
		if p.deviceID == deviceID {
			delete(r.pending, corr)
		}
	}
}

func newLocalID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return fmt.Sprintf("local-%d", time.Now().UnixNano())
	}
	return "local-" + id.String()
}
