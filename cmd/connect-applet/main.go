package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nwxnw/cosmic-connect-applet/internal/config"
	"github.com/nwxnw/cosmic-connect-applet/internal/contacts"
	"github.com/nwxnw/cosmic-connect-applet/internal/dbus"
	"github.com/nwxnw/cosmic-connect-applet/internal/pairing"
	"github.com/nwxnw/cosmic-connect-applet/internal/reconcile"
	"github.com/nwxnw/cosmic-connect-applet/internal/registry"
	"github.com/nwxnw/cosmic-connect-applet/internal/router"
	"github.com/nwxnw/cosmic-connect-applet/internal/sms"
	"github.com/nwxnw/cosmic-connect-applet/internal/tui"
)

// Build-time variables (set via ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

const (
	bootstrapTimeout = 30 * time.Second
	fetchTimeout     = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults to XDG config location)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		println("connect-applet version", version, "commit", commit)
		os.Exit(0)
	}

	// The terminal belongs to the TUI, so logs go to stderr only.
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := run(logger, *configPath); err != nil {
		logger.Error("applet failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	busClient, err := dbus.Connect(logger, cfg.CommandTimeout(), cfg.Commands.EventBuffer)
	if err != nil {
		return err
	}
	defer busClient.Close()

	book := newContactBook(cfg.ContactsDir(), logger)
	defer book.stop()

	devices := registry.New()
	messages := sms.NewModel(book, logger)
	pluginRouter := router.New(devices, messages, busClient, logger)
	pairings := pairing.NewMachine(pairing.Config{
		Cooldown:       cfg.PairingCooldown(),
		RequestTimeout: cfg.PairingTimeout(),
	}, devices, busClient, logger)
	defer pairings.Stop()

	reconciler := reconcile.New(busClient, devices, pairings, messages, pluginRouter, fetchTimeout, logger)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer bootCancel()

	// Liveness probe: a failing selfId means the daemon is not serving
	// even though the bus name may still resolve.
	selfID, err := busClient.SelfID(bootCtx)
	if err != nil {
		return err
	}
	logger.Info("daemon reachable", "self_id", selfID)

	if err := reconciler.Bootstrap(bootCtx); err != nil {
		return err
	}

	// Keep contact lookups in step with the device set: every device
	// the daemon knows about gets its vCard directory watched.
	for _, dev := range devices.List() {
		book.ensure(dev.ID)
	}
	registryCh := devices.Subscribe()
	defer devices.Unsubscribe(registryCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for {
			select {
			case ev, ok := <-registryCh:
				if !ok {
					return
				}
				book.ensure(ev.DeviceID)
			case <-ctx.Done():
				return
			}
		}
	}()

	go reconciler.Run(ctx, busClient.Events())

	program := tea.NewProgram(
		tui.New(devices, messages, pluginRouter, pairings),
		tea.WithAltScreen(),
	)

	// Forward SIGINT/SIGTERM to the TUI so it tears down the alternate
	// screen before we exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			program.Quit()
		case <-ctx.Done():
		}
	}()

	logger.Info("connect-applet ready", "version", version, "devices", devices.Count())
	_, err = program.Run()
	return err
}

// contactBook aggregates per-device vCard lookups behind the single
// resolver interface the conversation model expects. Numbers are
// resolved against every synced device in turn.
type contactBook struct {
	mu       sync.RWMutex
	root     string
	logger   *slog.Logger
	lookups  map[string]*contacts.Lookup
	watchers map[string]*contacts.Watcher
}

func newContactBook(root string, logger *slog.Logger) *contactBook {
	return &contactBook{
		root:     root,
		logger:   logger,
		lookups:  make(map[string]*contacts.Lookup),
		watchers: make(map[string]*contacts.Watcher),
	}
}

// ensure starts a lookup and watcher for the device's vCard directory.
// Idempotent; safe to call on every registry change.
func (b *contactBook) ensure(deviceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.lookups[deviceID]; ok {
		return
	}

	lookup := contacts.NewLookup(contacts.DeviceDir(b.root, deviceID), b.logger)
	if err := lookup.Reload(); err != nil {
		b.logger.Warn("failed to load contacts", "device", deviceID, "error", err)
	}
	b.lookups[deviceID] = lookup

	watcher, err := contacts.NewWatcher(lookup, b.logger)
	if err != nil {
		b.logger.Warn("failed to create contacts watcher", "device", deviceID, "error", err)
		return
	}
	if err := watcher.Start(); err != nil {
		b.logger.Warn("failed to start contacts watcher", "device", deviceID, "error", err)
		return
	}
	b.watchers[deviceID] = watcher
}

// Resolve implements sms.Resolver across all device lookups.
func (b *contactBook) Resolve(phoneNumber string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, lookup := range b.lookups {
		if name, ok := lookup.Resolve(phoneNumber); ok {
			return name, true
		}
	}
	return "", false
}

func (b *contactBook) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, watcher := range b.watchers {
		if err := watcher.Stop(); err != nil {
			b.logger.Warn("error stopping contacts watcher", "device", id, "error", err)
		}
	}
	b.watchers = make(map[string]*contacts.Watcher)
}
