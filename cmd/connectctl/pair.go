package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nwxnw/cosmic-connect-applet/internal/pairing"
)

var pairOpts struct {
	accept bool
	reject bool
}

var pairCmd = &cobra.Command{
	Use:   "pair <device-id>",
	Short: "Request, accept, or reject pairing with a device",
	Long: `Request pairing with a device. The request must be confirmed on the
remote device.

With --accept or --reject, answers a pairing request the remote device
initiated instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runPair,
}

var unpairCmd = &cobra.Command{
	Use:   "unpair <device-id>",
	Short: "Drop the pairing with a device",
	Long: `Unpair a device. An in-flight pairing request is cancelled
immediately; a paired device loses all its plugin capabilities.`,
	Args: cobra.ExactArgs(1),
	RunE: runUnpair,
}

func init() {
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(unpairCmd)

	pairCmd.Flags().BoolVar(&pairOpts.accept, "accept", false,
		"Accept a pairing request the device initiated")
	pairCmd.Flags().BoolVar(&pairOpts.reject, "reject", false,
		"Reject a pairing request the device initiated")
	pairCmd.MarkFlagsMutuallyExclusive("accept", "reject")
}

func runPair(cmd *cobra.Command, args []string) error {
	deviceID := args[0]
	ctx := cmd.Context()

	switch {
	case pairOpts.accept:
		if err := pairings.Accept(ctx, deviceID); err != nil {
			return err
		}
		fmt.Printf("Accepted pairing with %s\n", deviceID)

	case pairOpts.reject:
		if err := pairings.Reject(ctx, deviceID); err != nil {
			return err
		}
		fmt.Printf("Rejected pairing with %s\n", deviceID)

	default:
		err := pairings.Request(ctx, deviceID)
		if errors.Is(err, pairing.ErrCooldownActive) {
			return fmt.Errorf("the device rejected a recent request; wait for the cooldown (%s) before retrying", cfg.Pairing.Cooldown)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Pairing requested; confirm on %s\n", deviceID)
	}
	return nil
}

func runUnpair(cmd *cobra.Command, args []string) error {
	deviceID := args[0]
	if err := pairings.Unpair(cmd.Context(), deviceID); err != nil {
		return err
	}
	fmt.Printf("Unpaired %s\n", deviceID)
	return nil
}
