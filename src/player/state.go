package player

import (
	"time"

	"fanplay/src/library"
)

// State is a snapshot of everything the player knows.
type State struct {
	// CurrentTrack is the track bound to the audio output, nil if none.
	CurrentTrack *library.Track
	// CurrentIndex is the position of CurrentTrack in Queue, -1 if none.
	CurrentIndex int
	Queue        []library.Track
	// History holds previously played tracks, most recent first.
	History []library.Track

	IsPlaying bool
	// Loaded is set once the audio output holds the stream of the current
	// binding.
	Loaded      bool
	CurrentTime time.Duration
	// Duration is zero until the audio output reported the real duration.
	Duration time.Duration

	Volume    float64
	Speed     float64
	Crossfade time.Duration

	Shuffle bool
	Repeat  RepeatMode

	// Access is the tier under which the stream of the current track was
	// granted. Empty until the stream has been resolved.
	Access Tier

	// Generation is incremented every time the current track binding
	// changes, even when the same track is bound again.
	Generation uint64
	// PlayThrough identifies the current play-through of the current track.
	PlayThrough string

	// unshuffled holds the upcoming tracks in the order they had before
	// shuffle was enabled.
	unshuffled []library.Track
}

func initialState() State {
	return State{
		CurrentIndex: -1,
		Volume:       1,
		Speed:        1,
	}
}

func (st State) clone() State {
	c := st
	if st.CurrentTrack != nil {
		track := *st.CurrentTrack
		c.CurrentTrack = &track
	}
	c.Queue = cloneTracks(st.Queue)
	c.History = cloneTracks(st.History)
	c.unshuffled = cloneTracks(st.unshuffled)
	return c
}

// Upcoming returns the tracks after the current one.
func (st State) Upcoming() []library.Track {
	if st.CurrentIndex+1 >= len(st.Queue) {
		return nil
	}
	return st.Queue[st.CurrentIndex+1:]
}

// RecentHistory returns at most n of the most recently played tracks.
func (st State) RecentHistory(n int) []library.Track {
	if n < len(st.History) {
		return st.History[:n]
	}
	return st.History
}

// UpcomingIndex translates an index relative to the upcoming tracks into an
// absolute queue index.
func (st State) UpcomingIndex(i int) (int, bool) {
	abs := st.CurrentIndex + 1 + i
	if i < 0 || abs >= len(st.Queue) {
		return -1, false
	}
	return abs, true
}

// Snapshot is the durable part of the state, restored after a restart.
type Snapshot struct {
	Queue        []library.Track `json:"queue"`
	History      []library.Track `json:"history"`
	CurrentIndex int             `json:"current_index"`
	Unshuffled   []library.Track `json:"unshuffled,omitempty"`
	Shuffle      bool            `json:"shuffle"`
	Repeat       RepeatMode      `json:"repeat"`
	Volume       float64         `json:"volume"`
	Speed        float64         `json:"speed"`
	Crossfade    time.Duration   `json:"crossfade"`
}

// Snapshot extracts the durable part of the state.
func (st State) Snapshot() Snapshot {
	return Snapshot{
		Queue:        cloneTracks(st.Queue),
		History:      cloneTracks(st.History),
		CurrentIndex: st.CurrentIndex,
		Unshuffled:   cloneTracks(st.unshuffled),
		Shuffle:      st.Shuffle,
		Repeat:       st.Repeat,
		Volume:       st.Volume,
		Speed:        st.Speed,
		Crossfade:    st.Crossfade,
	}
}
