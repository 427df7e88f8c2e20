package player

import "time"

// An Element is a single audio output, the equivalent of one media element.
//
// Only the playback controller may operate an Element.
type Element interface {
	// Load replaces the current source. Playback does not start until Play
	// is called. Loading the empty string unloads the element.
	Load(url string) error
	Play() error
	Pause() error
	Seek(t time.Duration) error
	// SetVolume sets the output volume in the [0, 1] range.
	SetVolume(vol float64) error
	SetSpeed(speed float64) error

	// Attach registers the handler that receives the facts reported by the
	// element. Only one handler can be attached at a time.
	Attach(h ElementHandler)

	Close() error
}

// An ElementHandler receives facts reported by an Element about the source
// that is currently loaded.
//
// Elements must never invoke the handler from within their own methods.
// Handlers call back into the element, so failures of a method call are
// reported through its error return instead.
type ElementHandler interface {
	// OnMetadata is called once the duration of the source is known.
	OnMetadata(duration time.Duration)
	// OnTimeUpdate is called frequently while playing.
	OnTimeUpdate(t time.Duration)
	// OnEnded is called when the source played through to its end.
	OnEnded()
	// OnError is called when the element failed to play the source.
	OnError(err error)
}
