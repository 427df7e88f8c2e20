package player

import "errors"

var (
	// ErrUnauthorized is returned when the marketplace denies access to a
	// track, for example an NFT-gated track without proof of ownership.
	ErrUnauthorized = errors.New("access to track denied")
	// ErrNotFound is returned when a track or its stream does not exist.
	ErrNotFound = errors.New("track not found")
	// ErrNetwork is returned for transient failures talking to the
	// marketplace.
	ErrNetwork = errors.New("network error")
	// ErrElementPlayback is returned when the audio output refused to play,
	// e.g. because of an unsupported codec.
	ErrElementPlayback = errors.New("audio output refused to play")
	// ErrLogging is returned when a stream could not be accounted for.
	ErrLogging = errors.New("could not log stream")
)

// UserMessage maps an error from the playback engine to the message shown to
// the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "Ownership required: you do not have access to this track"
	case errors.Is(err, ErrElementPlayback):
		return "This track could not be played on this device"
	default:
		return "Could not play this track, please try again"
	}
}
