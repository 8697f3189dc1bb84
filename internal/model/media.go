package model

// MediaActionKind enumerates media transport controls.
type MediaActionKind int

const (
	// MediaPlayPause toggles playback.
	MediaPlayPause MediaActionKind = iota
	// MediaNext skips to the next track.
	MediaNext
	// MediaPrevious returns to the previous track.
	MediaPrevious
	// MediaSetVolume sets the player volume (0-100).
	MediaSetVolume
	// MediaSelectPlayer switches the controlled player.
	MediaSelectPlayer
)

// String returns the daemon action name where one exists.
func (k MediaActionKind) String() string {
	switch k {
	case MediaPlayPause:
		return "PlayPause"
	case MediaNext:
		return "Next"
	case MediaPrevious:
		return "Previous"
	case MediaSetVolume:
		return "SetVolume"
	case MediaSelectPlayer:
		return "SelectPlayer"
	default:
		return "unknown"
	}
}

// MediaAction is one media control command. Volume is used by
// MediaSetVolume, Player by MediaSelectPlayer.
type MediaAction struct {
	Kind   MediaActionKind
	Volume int
	Player string
}
