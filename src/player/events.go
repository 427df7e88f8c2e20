package player

import (
	"strings"
	"time"
)

// Change describes which parts of the state were affected by a transition.
type Change uint

const (
	// ChangeTrack is set when the current track binding changed and the
	// audio source has to be reloaded.
	ChangeTrack Change = 1 << iota
	// ChangeRestart is set when the current track starts a new play-through
	// from the beginning without being reloaded.
	ChangeRestart
	// ChangeSeek is set when the position was moved by a command rather
	// than reported by the audio output.
	ChangeSeek
	ChangeTransport
	ChangeTime
	ChangeDuration
	ChangeQueue
	ChangeModes
	ChangePreferences
	ChangeAccess
	// ChangeLoaded is set when the audio output started or stopped holding
	// the stream of the current binding.
	ChangeLoaded
)

var changeNames = []string{
	"track", "restart", "seek", "transport", "time", "duration",
	"queue", "modes", "preferences", "access", "loaded",
}

// Has reports whether any of the specified flags are set.
func (change Change) Has(flags Change) bool {
	return change&flags != 0
}

func (change Change) String() string {
	var names []string
	for i, name := range changeNames {
		if change.Has(1 << i) {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

// TrackEvent is emitted when another track was bound to the player.
type TrackEvent struct {
	Index   int
	TrackID string
}

// PlayStateEvent is emitted when playback was started or paused.
type PlayStateEvent struct {
	Playing bool
}

// TimeEvent is emitted when the playback position changed.
type TimeEvent struct {
	Time time.Duration
}

// DurationEvent is emitted when the duration of the current track became
// known.
type DurationEvent struct {
	Duration time.Duration
}

// QueueEvent is emitted when the queue or history was modified.
type QueueEvent struct {
	Length int
	Index  int
}

// ModeEvent is emitted when shuffle or repeat was changed.
type ModeEvent struct {
	Shuffle bool
	Repeat  RepeatMode
}

// PreferencesEvent is emitted when volume, speed or crossfade was changed.
type PreferencesEvent struct {
	Volume    float64
	Speed     float64
	Crossfade time.Duration
}

// AccessEvent is emitted when the access tier of the current track is known.
type AccessEvent struct {
	Tier Tier
}

func eventsFor(change Change, st State) []interface{} {
	var events []interface{}
	if change.Has(ChangeTrack) {
		id := ""
		if st.CurrentTrack != nil {
			id = st.CurrentTrack.ID
		}
		events = append(events, TrackEvent{Index: st.CurrentIndex, TrackID: id})
	}
	if change.Has(ChangeQueue | ChangeTrack) {
		events = append(events, QueueEvent{Length: len(st.Queue), Index: st.CurrentIndex})
	}
	if change.Has(ChangeTransport) {
		events = append(events, PlayStateEvent{Playing: st.IsPlaying})
	}
	if change.Has(ChangeTime | ChangeSeek | ChangeRestart) {
		events = append(events, TimeEvent{Time: st.CurrentTime})
	}
	if change.Has(ChangeDuration) {
		events = append(events, DurationEvent{Duration: st.Duration})
	}
	if change.Has(ChangeModes) {
		events = append(events, ModeEvent{Shuffle: st.Shuffle, Repeat: st.Repeat})
	}
	if change.Has(ChangePreferences) {
		events = append(events, PreferencesEvent{Volume: st.Volume, Speed: st.Speed, Crossfade: st.Crossfade})
	}
	if change.Has(ChangeAccess) {
		events = append(events, AccessEvent{Tier: st.Access})
	}
	return events
}
