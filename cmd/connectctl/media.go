package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nwxnw/cosmic-connect-applet/internal/model"
)

var mediaOpts struct {
	volume int
	player string
}

var mediaCmd = &cobra.Command{
	Use:   "media <device-id> <play-pause|next|previous|set-volume|select-player>",
	Short: "Control media playback on a paired device",
	Long: `Control the remote media player on a paired device. The device must
report at least one active player.

Examples:
  connectctl media phone123 play-pause
  connectctl media phone123 set-volume --volume 40
  connectctl media phone123 select-player --player Spotify`,
	Args: cobra.ExactArgs(2),
	RunE: runMedia,
}

func init() {
	rootCmd.AddCommand(mediaCmd)

	mediaCmd.Flags().IntVar(&mediaOpts.volume, "volume", 50,
		"Volume level for set-volume (0-100)")
	mediaCmd.Flags().StringVar(&mediaOpts.player, "player", "",
		"Player name for select-player")
}

func runMedia(cmd *cobra.Command, args []string) error {
	deviceID, actionName := args[0], args[1]

	action := model.MediaAction{}
	switch actionName {
	case "play-pause":
		action.Kind = model.MediaPlayPause
	case "next":
		action.Kind = model.MediaNext
	case "previous":
		action.Kind = model.MediaPrevious
	case "set-volume":
		if mediaOpts.volume < 0 || mediaOpts.volume > 100 {
			return fmt.Errorf("volume must be 0-100, got %d", mediaOpts.volume)
		}
		action.Kind = model.MediaSetVolume
		action.Volume = mediaOpts.volume
	case "select-player":
		if mediaOpts.player == "" {
			return fmt.Errorf("select-player requires --player")
		}
		action.Kind = model.MediaSelectPlayer
		action.Player = mediaOpts.player
	default:
		return fmt.Errorf("unknown media action %q", actionName)
	}

	if err := runCommand(func() (string, error) {
		return pluginRt.Media(deviceID, action)
	}); err != nil {
		return err
	}
	fmt.Printf("Media %s sent to %s\n", actionName, deviceID)
	return nil
}
