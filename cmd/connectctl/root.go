// Package main provides the CLI entrypoint for connectctl.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nwxnw/cosmic-connect-applet/internal/config"
	"github.com/nwxnw/cosmic-connect-applet/internal/dbus"
	"github.com/nwxnw/cosmic-connect-applet/internal/model"
	"github.com/nwxnw/cosmic-connect-applet/internal/pairing"
	"github.com/nwxnw/cosmic-connect-applet/internal/reconcile"
	"github.com/nwxnw/cosmic-connect-applet/internal/registry"
	"github.com/nwxnw/cosmic-connect-applet/internal/router"
	"github.com/nwxnw/cosmic-connect-applet/internal/sms"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Global configuration and state
var (
	cfg        *config.Config
	globalOpts struct {
		verbose    bool
		configPath string
	}
	logger *slog.Logger

	busClient  *dbus.Client
	devices    *registry.Registry
	messages   *sms.Model
	pluginRt   *router.Router
	pairings   *pairing.Machine
	reconciler *reconcile.Reconciler
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "connectctl",
	Short: "Control phones and other devices linked through the KDE Connect daemon",
	Long: `connectctl talks to the KDE Connect daemon on the session bus.

It lists linked devices, drives pairing, and routes plugin commands
(ping, file share, clipboard, media control, SMS) to paired devices.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogger()

		var err error
		cfg, err = config.LoadConfig(globalOpts.configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		busClient, err = dbus.Connect(logger, cfg.CommandTimeout(), cfg.Commands.EventBuffer)
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrTransportUnavailable, err)
		}

		devices = registry.New()
		messages = sms.NewModel(nil, logger)
		pluginRt = router.New(devices, messages, busClient, logger)
		pairings = pairing.NewMachine(pairing.Config{
			Cooldown:       cfg.PairingCooldown(),
			RequestTimeout: cfg.PairingTimeout(),
		}, devices, busClient, logger)
		reconciler = reconcile.New(busClient, devices, pairings, messages, pluginRt,
			cfg.CommandTimeout(), logger)

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		if err := reconciler.Bootstrap(ctx); err != nil {
			return fmt.Errorf("device enumeration failed: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if pairings != nil {
			pairings.Stop()
		}
		if busClient != nil {
			return busClient.Close()
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to config file (default: ~/.config/cosmic-connect-applet/config.toml)")
}

// setupLogger configures the global slog logger.
func setupLogger() {
	level := slog.LevelWarn
	if globalOpts.verbose {
		level = slog.LevelDebug
	}

	// Log to stderr so stdout is clean for output
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// awaitResult drains the event channel until the command's result
// arrives or the command timeout expires.
func awaitResult(correlationID string) error {
	deadline := time.After(cfg.CommandTimeout() + time.Second)
	for {
		select {
		case ev, ok := <-busClient.Events():
			if !ok {
				return model.ErrTransportUnavailable
			}
			if res, isResult := ev.(dbus.CommandResult); isResult && res.CorrelationID == correlationID {
				return res.Err
			}
		case <-deadline:
			return model.ErrCommandTimeout
		}
	}
}

// runCommand dispatches fn through the router and waits for the
// daemon's verdict.
func runCommand(fn func() (string, error)) error {
	corr, err := fn()
	if err != nil {
		return err
	}
	return awaitResult(corr)
}
