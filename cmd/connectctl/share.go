package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var shareCmd = &cobra.Command{
	Use:   "share <device-id> <path-or-url>",
	Short: "Send a file or URL to a paired device",
	Long: `Send a local file or a URL to a paired device. Local paths are
resolved to absolute file URLs; URLs open on the device directly.`,
	Args: cobra.ExactArgs(2),
	RunE: runShare,
}

var clipboardCmd = &cobra.Command{
	Use:   "clipboard <device-id> <text>",
	Short: "Push text to a paired device's clipboard",
	Args:  cobra.ExactArgs(2),
	RunE:  runClipboard,
}

func init() {
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(clipboardCmd)
}

func runShare(cmd *cobra.Command, args []string) error {
	deviceID, target := args[0], args[1]

	// Relative paths would be meaningless on the daemon side.
	if !strings.Contains(target, "://") && !filepath.IsAbs(target) {
		abs, err := filepath.Abs(target)
		if err != nil {
			return fmt.Errorf("failed to resolve path %q: %w", target, err)
		}
		target = abs
	}

	if err := runCommand(func() (string, error) {
		return pluginRt.Share(deviceID, target)
	}); err != nil {
		return err
	}
	fmt.Printf("Shared %s with %s\n", target, deviceID)
	return nil
}

func runClipboard(cmd *cobra.Command, args []string) error {
	deviceID, text := args[0], args[1]
	if err := runCommand(func() (string, error) {
		return pluginRt.PushClipboard(deviceID, text)
	}); err != nil {
		return err
	}
	fmt.Printf("Clipboard pushed to %s\n", deviceID)
	return nil
}
