package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dismissCmd = &cobra.Command{
	Use:   "dismiss <device-id> <notification-id>",
	Short: "Dismiss a notification on a paired device",
	Long: `Dismiss one notification on the device. Dismissing an already-gone
notification succeeds; the daemon treats it as a no-op.`,
	Args: cobra.ExactArgs(2),
	RunE: runDismiss,
}

func init() {
	rootCmd.AddCommand(dismissCmd)
}

func runDismiss(cmd *cobra.Command, args []string) error {
	deviceID, notificationID := args[0], args[1]
	if err := runCommand(func() (string, error) {
		return pluginRt.DismissNotification(deviceID, notificationID)
	}); err != nil {
		return err
	}
	fmt.Printf("Dismissed notification %s on %s\n", notificationID, deviceID)
	return nil
}
