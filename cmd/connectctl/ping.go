package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pingOpts struct {
	message string
}

var pingCmd = &cobra.Command{
	Use:   "ping <device-id>",
	Short: "Send a ping to a paired device",
	Long: `Send a ping notification to a paired device. Success means the
daemon accepted the call, not that the device displayed it.`,
	Args: cobra.ExactArgs(1),
	RunE: runPing,
}

var ringCmd = &cobra.Command{
	Use:   "ring <device-id>",
	Short: "Make a paired device ring so it can be found",
	Args:  cobra.ExactArgs(1),
	RunE:  runRing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(ringCmd)

	pingCmd.Flags().StringVarP(&pingOpts.message, "message", "m", "",
		"Custom message to show on the device")
}

func runPing(cmd *cobra.Command, args []string) error {
	deviceID := args[0]
	if err := runCommand(func() (string, error) {
		return pluginRt.Ping(deviceID, pingOpts.message)
	}); err != nil {
		return err
	}
	fmt.Printf("Pinged %s\n", deviceID)
	return nil
}

func runRing(cmd *cobra.Command, args []string) error {
	deviceID := args[0]
	if err := runCommand(func() (string, error) {
		return pluginRt.Ring(deviceID)
	}); err != nil {
		return err
	}
	fmt.Printf("Ringing %s\n", deviceID)
	return nil
}
