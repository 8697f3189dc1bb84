package dbus

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/oklog/ulid/v2"

	"github.com/nwxnw/cosmic-connect-applet/internal/model"
)

// address matches the daemon's wire shape for a message recipient: a
// struct holding a single string, wrapped in a variant.
type address struct {
	Address string
}

// Client talks to the device-linking daemon on the session bus.
// Queries and pairing calls run synchronously on the caller's
// goroutine. Plugin commands run asynchronously: each returns a
// correlation ID immediately and reports its outcome as a
// CommandResult on the event channel.
type Client struct {
	conn   *godbus.Conn
	logger *slog.Logger

	cmdTimeout time.Duration

	events  chan Event
	signals chan *godbus.Signal
	done    chan struct{}
	wg      sync.WaitGroup

	closeOnce sync.Once
}

// Connect opens the session bus and subscribes to the daemon's
// signals. buffer sizes the event channel.
func Connect(logger *slog.Logger, cmdTimeout time.Duration, buffer int) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 128
	}

	conn, err := godbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	c := &Client{
		conn:       conn,
		logger:     logger,
		cmdTimeout: cmdTimeout,
		events:     make(chan Event, buffer),
		signals:    make(chan *godbus.Signal, buffer),
		done:       make(chan struct{}),
	}

	if err := c.subscribe(); err != nil {
		conn.Close()
		return nil, err
	}

	conn.Signal(c.signals)
	c.wg.Add(1)
	go c.translateSignals()

	c.logger.Info("connected to daemon bus", "name", BusName)
	return c, nil
}

// Events returns the inbound event channel. It is closed by Close.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Close tears down the signal subscription and the bus connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.RemoveSignal(c.signals)
		err = c.conn.Close()
		c.wg.Wait()
		close(c.events)
	})
	return err
}

func (c *Client) daemon() godbus.BusObject {
	return c.conn.Object(BusName, godbus.ObjectPath(BasePath))
}

func (c *Client) device(deviceID string) godbus.BusObject {
	return c.conn.Object(BusName, devicePath(deviceID))
}

func (c *Client) plugin(deviceID, plugin string) godbus.BusObject {
	return c.conn.Object(BusName, pluginPath(deviceID, plugin))
}

// SelfID returns the daemon's own device ID. Used as a liveness
// probe: a failing selfId call means the daemon is not serving.
func (c *Client) SelfID(ctx context.Context) (string, error) {
	var id string
	err := c.daemon().CallWithContext(ctx, ifaceDaemon+".selfId", 0).Store(&id)
	if err != nil {
		return "", fmt.Errorf("selfId: %w", translateCallError(err))
	}
	return id, nil
}

// Devices lists the IDs of all devices the daemon knows about.
func (c *Client) Devices(ctx context.Context) ([]string, error) {
	var ids []string
	err := c.daemon().CallWithContext(ctx, ifaceDaemon+".devices", 0).Store(&ids)
	if err != nil {
		return nil, fmt.Errorf("devices: %w", translateCallError(err))
	}
	return ids, nil
}

// RefreshDiscovery asks the daemon to re-announce on the network.
func (c *Client) RefreshDiscovery(ctx context.Context) error {
	call := c.daemon().CallWithContext(ctx, ifaceDaemon+".forceOnNetworkChange", 0)
	if call.Err != nil {
		return fmt.Errorf("forceOnNetworkChange: %w", translateCallError(call.Err))
	}
	return nil
}

// DeviceProperties fetches the full device property set.
func (c *Client) DeviceProperties(ctx context.Context, deviceID string) (DeviceProps, error) {
	props, err := c.getAll(ctx, c.device(deviceID), ifaceDevice)
	if err != nil {
		return DeviceProps{}, fmt.Errorf("device properties for %s: %w", deviceID, err)
	}
	return ParseDeviceProps(props), nil
}

// BatteryState fetches the device's battery plugin state.
func (c *Client) BatteryState(ctx context.Context, deviceID string) (BatteryProps, error) {
	props, err := c.getAll(ctx, c.plugin(deviceID, "battery"), ifaceBattery)
	if err != nil {
		return BatteryProps{}, fmt.Errorf("battery state for %s: %w", deviceID, err)
	}
	return ParseBatteryProps(props), nil
}

// MediaState fetches the device's media remote plugin state.
func (c *Client) MediaState(ctx context.Context, deviceID string) (MediaProps, error) {
	props, err := c.getAll(ctx, c.plugin(deviceID, "mprisremote"), ifaceMprisRemote)
	if err != nil {
		return MediaProps{}, fmt.Errorf("media state for %s: %w", deviceID, err)
	}
	return ParseMediaProps(props), nil
}

func (c *Client) getAll(ctx context.Context, obj godbus.BusObject, iface string) (map[string]godbus.Variant, error) {
	var props map[string]godbus.Variant
	err := obj.CallWithContext(ctx, ifaceProperties+".GetAll", 0, iface).Store(&props)
	if err != nil {
		return nil, translateCallError(err)
	}
	return props, nil
}

// RequestPairing asks the remote device to pair.
func (c *Client) RequestPairing(ctx context.Context, deviceID string) error {
	return c.deviceCall(ctx, deviceID, "requestPairing")
}

// Unpair drops the pairing with the remote device.
func (c *Client) Unpair(ctx context.Context, deviceID string) error {
	return c.deviceCall(ctx, deviceID, "unpair")
}

// AcceptPairing accepts a pairing request initiated by the peer.
func (c *Client) AcceptPairing(ctx context.Context, deviceID string) error {
	return c.deviceCall(ctx, deviceID, "acceptPairing")
}

// CancelPairing cancels an outstanding pairing exchange, whether
// initiated locally or by the peer.
func (c *Client) CancelPairing(ctx context.Context, deviceID string) error {
	return c.deviceCall(ctx, deviceID, "cancelPairing")
}

func (c *Client) deviceCall(ctx context.Context, deviceID, method string) error {
	call := c.device(deviceID).CallWithContext(ctx, ifaceDevice+"."+method, 0)
	if call.Err != nil {
		return fmt.Errorf("%s %s: %w", method, deviceID, translateCallError(call.Err))
	}
	return nil
}

// RequestAllConversations asks the phone to push every conversation
// thread. Results arrive as conversationUpdated signals.
func (c *Client) RequestAllConversations(ctx context.Context, deviceID string) error {
	call := c.device(deviceID).CallWithContext(ctx, ifaceConversations+".requestAllConversationThreads", 0)
	if call.Err != nil {
		return fmt.Errorf("requestAllConversationThreads %s: %w", deviceID, translateCallError(call.Err))
	}
	return nil
}

// RequestConversation asks for a message range of one thread. start
// and end index into the thread's history, newest first.
func (c *Client) RequestConversation(ctx context.Context, deviceID string, threadID int64, start, end int32) error {
	call := c.device(deviceID).CallWithContext(ctx, ifaceConversations+".requestConversation", 0, threadID, start, end)
	if call.Err != nil {
		return fmt.Errorf("requestConversation %s thread %d: %w", deviceID, threadID, translateCallError(call.Err))
	}
	return nil
}

// SendPing sends a ping, optionally with a custom message.
func (c *Client) SendPing(deviceID, message string) string {
	if message == "" {
		return c.command(deviceID, "ping", ifacePing+".sendPing")
	}
	return c.command(deviceID, "ping", ifacePing+".sendPing", message)
}

// Ring makes the remote device ring so it can be found.
func (c *Client) Ring(deviceID string) string {
	return c.command(deviceID, "findmyphone", ifaceFindMyPhone+".ring")
}

// ShareURL sends a URL or a file:// URL to the remote device.
func (c *Client) ShareURL(deviceID, url string) string {
	return c.command(deviceID, "share", ifaceShare+".shareUrl", url)
}

// SendClipboard pushes the local clipboard content to the device.
func (c *Client) SendClipboard(deviceID, content string) string {
	return c.command(deviceID, "clipboard", ifaceClipboard+".sendClipboard", content)
}

// DismissNotification dismisses one notification on the device.
func (c *Client) DismissNotification(deviceID, notificationID string) string {
	corr := c.newCorrelationID()
	path := notificationPath(deviceID, notificationID)
	c.dispatch(corr, func(ctx context.Context) error {
		call := c.conn.Object(BusName, path).CallWithContext(ctx, ifaceNotification+".dismiss", 0)
		return call.Err
	})
	return corr
}

// SendMediaAction issues one media control against the device's
// remote player. Volume and player selection go through property
// writes, transport controls through sendAction.
func (c *Client) SendMediaAction(deviceID string, action model.MediaAction) string {
	corr := c.newCorrelationID()
	obj := c.plugin(deviceID, "mprisremote")
	c.dispatch(corr, func(ctx context.Context) error {
		switch action.Kind {
		case model.MediaSetVolume:
			return c.setProp(ctx, obj, ifaceMprisRemote, "volume", int32(action.Volume))
		case model.MediaSelectPlayer:
			return c.setProp(ctx, obj, ifaceMprisRemote, "player", action.Player)
		default:
			call := obj.CallWithContext(ctx, ifaceMprisRemote+".sendAction", 0, action.Kind.String())
			return call.Err
		}
	})
	return corr
}

// SendSMS sends a message to the given addresses through the phone.
// The full address list must be passed unmodified so MMS group
// threads resolve to the existing conversation on the phone side.
func (c *Client) SendSMS(deviceID string, addresses []string, body string, subID int64) string {
	corr := c.newCorrelationID()
	wire := make([]godbus.Variant, 0, len(addresses))
	for _, a := range addresses {
		wire = append(wire, godbus.MakeVariant(address{Address: a}))
	}
	attachments := []godbus.Variant{}
	obj := c.plugin(deviceID, "sms")
	c.dispatch(corr, func(ctx context.Context) error {
		call := obj.CallWithContext(ctx, ifaceSMS+".sendSms", 0, wire, body, attachments, subID)
		return call.Err
	})
	return corr
}

func (c *Client) setProp(ctx context.Context, obj godbus.BusObject, iface, prop string, value any) error {
	call := obj.CallWithContext(ctx, ifaceProperties+".Set", 0, iface, prop, godbus.MakeVariant(value))
	return call.Err
}

// command issues a fire-and-forget plugin call, keyed by a fresh
// correlation ID.
func (c *Client) command(deviceID, plugin, method string, args ...any) string {
	corr := c.newCorrelationID()
	obj := c.plugin(deviceID, plugin)
	c.dispatch(corr, func(ctx context.Context) error {
		call := obj.CallWithContext(ctx, method, 0, args...)
		return call.Err
	})
	return corr
}

// dispatch runs fn with the command timeout and reports the outcome
// on the event channel. The result is dropped if the client closed
// while the call was in flight.
func (c *Client) dispatch(corr string, fn func(ctx context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.cmdTimeout)
		defer cancel()

		err := fn(ctx)
		if err != nil {
			err = translateCallError(err)
			c.logger.Debug("command failed", "correlation_id", corr, "error", err)
		}
		select {
		case c.events <- CommandResult{CorrelationID: corr, Err: err}:
		case <-c.done:
		}
	}()
}

func (c *Client) newCorrelationID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		// rand.Reader does not fail in practice; fall back to a
		// timestamp-only ID rather than dropping the command.
		return fmt.Sprintf("cmd-%d", time.Now().UnixNano())
	}
	return id.String()
}

// translateCallError maps bus-level failures onto the model's
// sentinel errors so callers can match with errors.Is.
func translateCallError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", model.ErrCommandTimeout, err)
	}
	var dbusErr godbus.Error
	if errors.As(err, &dbusErr) {
		switch dbusErr.Name {
		case "org.freedesktop.DBus.Error.ServiceUnknown",
			"org.freedesktop.DBus.Error.NameHasNoOwner",
			"org.freedesktop.DBus.Error.NoReply",
			"org.freedesktop.DBus.Error.Disconnected":
			return fmt.Errorf("%w: %v", model.ErrTransportUnavailable, err)
		default:
			return fmt.Errorf("%w: %v", model.ErrCommandRejected, err)
		}
	}
	return err
}
