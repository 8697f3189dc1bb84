package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nwxnw/cosmic-connect-applet/internal/model"
)

var devicesOpts struct {
	reachableOnly bool
	pairedOnly    bool
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Ask the daemon to re-announce itself on the network",
	Long: `Force a discovery pass, as after a network change. Devices found
this way show up in the next 'devices' listing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := busClient.RefreshDiscovery(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Discovery refresh requested")
		return nil
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices known to the daemon",
	Long: `List every device the daemon knows about, with pairing state,
reachability, battery level, and plugin capabilities.`,
	RunE: runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(refreshCmd)

	devicesCmd.Flags().BoolVar(&devicesOpts.reachableOnly, "reachable", false,
		"Only show reachable devices")
	devicesCmd.Flags().BoolVar(&devicesOpts.pairedOnly, "paired", false,
		"Only show paired devices")
}

func runDevices(cmd *cobra.Command, args []string) error {
	list := devices.List()
	if len(list) == 0 {
		fmt.Println("No devices found. Is the phone on the same network?")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTATE\tREACHABLE\tBATTERY\tCAPABILITIES")
	for _, dev := range list {
		if devicesOpts.reachableOnly && !dev.Reachable {
			continue
		}
		if devicesOpts.pairedOnly && dev.Pair != model.PairStatePaired {
			continue
		}

		battery := "-"
		if dev.Battery != nil {
			battery = fmt.Sprintf("%d%%", dev.Battery.Charge)
			if dev.Battery.Charging {
				battery += "+"
			}
		}

		caps := "-"
		if capList := dev.Capabilities.List(); len(capList) > 0 {
			names := make([]string, len(capList))
			for i, c := range capList {
				names[i] = string(c)
			}
			caps = strings.Join(names, ",")
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\t%s\n",
			dev.ID, dev.Name, dev.Type, dev.Pair, dev.Reachable, battery, caps)
	}
	return w.Flush()
}
