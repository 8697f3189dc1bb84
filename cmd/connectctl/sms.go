package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nwxnw/cosmic-connect-applet/internal/dbus"
)

var smsOpts struct {
	message string
	wait    time.Duration
}

var smsCmd = &cobra.Command{
	Use:   "sms",
	Short: "Send and list SMS messages through a paired phone",
}

var smsSendCmd = &cobra.Command{
	Use:   "send <device-id> <number> [number...]",
	Short: "Send an SMS through a paired phone",
	Long: `Send an SMS to one or more recipients through a paired phone.
Multiple numbers address the existing group thread with exactly those
participants.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSMSSend,
}

var smsListCmd = &cobra.Command{
	Use:   "list <device-id>",
	Short: "List SMS conversations on a paired phone",
	Long: `Request the phone's conversation threads and list them. The phone
pushes threads asynchronously, so the command listens for a short
window before printing.`,
	Args: cobra.ExactArgs(1),
	RunE: runSMSList,
}

func init() {
	rootCmd.AddCommand(smsCmd)
	smsCmd.AddCommand(smsSendCmd)
	smsCmd.AddCommand(smsListCmd)

	smsSendCmd.Flags().StringVarP(&smsOpts.message, "message", "m", "",
		"Message body (required)")
	_ = smsSendCmd.MarkFlagRequired("message")

	smsListCmd.Flags().DurationVar(&smsOpts.wait, "wait", 3*time.Second,
		"How long to listen for conversation data")
}

func runSMSSend(cmd *cobra.Command, args []string) error {
	deviceID, recipients := args[0], args[1:]

	if err := runCommand(func() (string, error) {
		return pluginRt.SendMessage(deviceID, recipients, smsOpts.message)
	}); err != nil {
		return err
	}
	fmt.Printf("Message sent to %v\n", recipients)
	return nil
}

func runSMSList(cmd *cobra.Command, args []string) error {
	deviceID := args[0]

	// Bootstrap already requested the backlog for paired SMS devices;
	// collect what the phone pushes within the window.
	deadline := time.After(smsOpts.wait)
collect:
	for {
		select {
		case ev, ok := <-busClient.Events():
			if !ok {
				break collect
			}
			if mr, isMsg := ev.(dbus.MessageReceived); isMsg {
				messages.Ingest(mr.DeviceID, mr.Message)
			}
		case <-deadline:
			break collect
		}
	}

	convos := messages.Conversations(deviceID)
	if len(convos) == 0 {
		fmt.Println("No conversations received. Is the device paired with SMS enabled?")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "THREAD\tPARTICIPANTS\tLAST MESSAGE\tPREVIEW")
	for _, c := range convos {
		when := "-"
		if ts := c.LastTimestamp(); ts > 0 {
			when = humanize.Time(time.UnixMilli(ts))
		}
		title := c.Title
		if title == "" {
			title = fmt.Sprintf("%v", c.Participants)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ThreadID, title, when, c.Preview(40))
	}
	return w.Flush()
}
