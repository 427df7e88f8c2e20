package player

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"fanplay/src/library"
	"fanplay/src/util"
)

const (
	// DefaultHistorySize is the number of tracks kept in the history when
	// no size is configured.
	DefaultHistorySize = 50
	// DefaultPreviousThreshold is the position below which PlayPrevious goes
	// back to the previous track.
	DefaultPreviousThreshold = 3 * time.Second
)

// Options configure a Store.
type Options struct {
	HistorySize       int
	PreviousThreshold time.Duration
}

// An Observer is notified synchronously after every state transition. The
// state passed is the state right after the transition; observers that
// need the latest state should call Store.State.
type Observer func(change Change, st State)

// The Store is the single source of truth of the player.
//
// All transitions are atomic and total: invalid input leaves the state
// untouched rather than producing an error. Observers are invoked after the
// transition completed and may call back into the store.
type Store struct {
	util.Emitter

	opts Options

	lock  sync.Mutex
	state State

	observerLock sync.RWMutex
	observers    []Observer
}

// NewStore creates a Store holding the initial state.
func NewStore(opts Options) *Store {
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.PreviousThreshold <= 0 {
		opts.PreviousThreshold = DefaultPreviousThreshold
	}
	return &Store{opts: opts, state: initialState()}
}

// Events implements util.Eventer.
func (store *Store) Events() *util.Emitter {
	return &store.Emitter
}

// Observe registers an observer.
func (store *Store) Observe(fn Observer) {
	store.observerLock.Lock()
	defer store.observerLock.Unlock()
	store.observers = append(store.observers, fn)
}

// State returns a copy of the current state.
func (store *Store) State() State {
	store.lock.Lock()
	defer store.lock.Unlock()
	return store.state.clone()
}

func (store *Store) update(fn func(st *State) Change) {
	store.lock.Lock()
	change := fn(&store.state)
	var snap State
	if change != 0 {
		snap = store.state.clone()
	}
	store.lock.Unlock()
	if change == 0 {
		return
	}

	store.observerLock.RLock()
	observers := append([]Observer(nil), store.observers...)
	store.observerLock.RUnlock()
	for _, fn := range observers {
		fn(change, snap)
	}
	for _, event := range eventsFor(change, snap) {
		store.Emit(event)
	}
}

func newPlayThrough() string {
	return uuid.NewString()
}

// Reset brings the store back to its initial state.
func (store *Store) Reset() {
	store.update(func(st *State) Change {
		generation := st.Generation
		*st = initialState()
		st.Generation = generation + 1
		return ChangeTrack | ChangeTime | ChangeDuration | ChangeTransport | ChangeQueue |
			ChangeModes | ChangePreferences | ChangeAccess | ChangeLoaded
	})
}

// Restore replaces the state with a snapshot. Playback is left paused.
// Invalid parts of the snapshot are replaced with defaults.
func (store *Store) Restore(snap Snapshot) {
	store.update(func(st *State) Change {
		generation := st.Generation
		*st = initialState()
		st.Generation = generation + 1
		st.Queue = cloneTracks(snap.Queue)
		st.History = cloneTracks(snap.History)
		if len(st.History) > store.opts.HistorySize {
			st.History = st.History[:store.opts.HistorySize]
		}
		st.Shuffle = snap.Shuffle
		if st.Shuffle {
			st.unshuffled = cloneTracks(snap.Unshuffled)
		}
		st.Repeat = snap.Repeat
		if !math.IsNaN(snap.Volume) {
			st.Volume = ClampVolume(snap.Volume)
		}
		if ValidSpeed(snap.Speed) {
			st.Speed = snap.Speed
		}
		st.Crossfade = clampCrossfade(snap.Crossfade)
		if snap.CurrentIndex >= 0 && snap.CurrentIndex < len(st.Queue) {
			st.bind(snap.CurrentIndex, newPlayThrough())
		}
		return ChangeTrack | ChangeTime | ChangeDuration | ChangeTransport | ChangeQueue |
			ChangeModes | ChangePreferences | ChangeAccess | ChangeLoaded
	})
}

// PlayTrack replaces the queue with the context the track was picked from
// and starts playing the track.
//
// If the track is not part of the context, it is inserted at the front so
// that the current track is always part of the queue.
func (store *Store) PlayTrack(track library.Track, context []library.Track) {
	store.update(func(st *State) Change {
		if st.CurrentTrack != nil {
			st.pushHistory(*st.CurrentTrack, store.opts.HistorySize)
		}
		queue := cloneTracks(context)
		index := indexOf(queue, track.ID, 0, len(queue))
		if index < 0 {
			queue = insertAt(queue, 0, track)
			index = 0
		}
		st.Queue = queue
		st.unshuffled = nil
		change := st.bind(index, newPlayThrough())
		if st.Shuffle {
			st.shuffleUpcoming()
		}
		st.IsPlaying = true
		return change | ChangeTransport
	})
}

// AddToQueue appends a track to the end of the queue.
func (store *Store) AddToQueue(track library.Track) {
	store.update(func(st *State) Change {
		st.Queue = append(st.Queue, track)
		return ChangeQueue
	})
}

// RemoveFromQueue removes the first upcoming entry of the track. Entries at
// or before the current index are never removed.
func (store *Store) RemoveFromQueue(trackID string) {
	store.update(func(st *State) Change {
		i := indexOf(st.Queue, trackID, st.CurrentIndex+1, len(st.Queue))
		if i < 0 {
			return 0
		}
		st.Queue = removeAt(st.Queue, i)
		return ChangeQueue
	})
}

// ReorderQueue moves an entry so it ends up at index to. Both indices are
// absolute. Moves involving the current entry or anything before it are
// ignored.
func (store *Store) ReorderQueue(from, to int) {
	store.update(func(st *State) Change {
		return st.reorder(from, to)
	})
}

// ReorderUpcoming is like ReorderQueue, but the indices are relative to the
// first track after the current one.
func (store *Store) ReorderUpcoming(from, to int) {
	store.update(func(st *State) Change {
		if from < 0 || to < 0 {
			return 0
		}
		base := st.CurrentIndex + 1
		return st.reorder(base+from, base+to)
	})
}

// ClearQueue removes everything but the current track from the queue. The
// history is left untouched.
func (store *Store) ClearQueue() {
	store.update(func(st *State) Change {
		st.unshuffled = nil
		if st.CurrentTrack == nil {
			st.Queue = nil
			st.CurrentIndex = -1
			return ChangeQueue
		}
		st.Queue = []library.Track{*st.CurrentTrack}
		st.CurrentIndex = 0
		return ChangeQueue
	})
}

// PlayNext advances to the next track in the queue according to the repeat
// mode. At the end of the queue with repeat off, playback stops and the
// last track remains current.
func (store *Store) PlayNext() {
	store.update(func(st *State) Change {
		switch {
		case len(st.Queue) == 0:
			return 0
		case st.CurrentTrack == nil:
			return st.bind(0, newPlayThrough()) | st.play()
		case st.Repeat == RepeatOne:
			return st.restart(newPlayThrough())
		case st.CurrentIndex+1 < len(st.Queue):
			st.pushHistory(*st.CurrentTrack, store.opts.HistorySize)
			return st.bind(st.CurrentIndex+1, newPlayThrough()) | st.play()
		case st.Repeat == RepeatAll:
			st.pushHistory(*st.CurrentTrack, store.opts.HistorySize)
			return st.bind(0, newPlayThrough()) | st.play()
		default:
			if !st.IsPlaying {
				return 0
			}
			st.IsPlaying = false
			return ChangeTransport
		}
	})
}

// PlayPrevious goes back to the most recent track in the history if the
// current track has just started. Otherwise the current track is restarted.
func (store *Store) PlayPrevious() {
	store.update(func(st *State) Change {
		if st.CurrentTrack == nil {
			return 0
		}
		if st.CurrentTime >= store.opts.PreviousThreshold || len(st.History) == 0 {
			st.CurrentTime = 0
			return ChangeSeek | ChangeTime
		}
		prev := st.History[0]
		st.History = st.History[1:]
		index := st.locate(prev)
		return st.bind(index, newPlayThrough()) | st.play()
	})
}

// PlayIndex jumps to the entry at the specified queue index.
func (store *Store) PlayIndex(index int) {
	store.update(func(st *State) Change {
		if index < 0 || index >= len(st.Queue) {
			return 0
		}
		if index == st.CurrentIndex {
			return st.restart(newPlayThrough())
		}
		if st.CurrentTrack != nil {
			st.pushHistory(*st.CurrentTrack, store.opts.HistorySize)
		}
		return st.bind(index, newPlayThrough()) | st.play()
	})
}

// PlayFromHistory plays the entry at the specified index of the history.
// The entry is taken out of the history and the current track is pushed
// onto it.
func (store *Store) PlayFromHistory(index int) {
	store.update(func(st *State) Change {
		if index < 0 || index >= len(st.History) {
			return 0
		}
		track := st.History[index]
		st.History = append(cloneTracks(st.History[:index]), st.History[index+1:]...)
		if st.CurrentTrack != nil {
			st.pushHistory(*st.CurrentTrack, store.opts.HistorySize)
		}
		pos := indexOf(st.Queue, track.ID, 0, len(st.Queue))
		if pos < 0 {
			pos = st.CurrentIndex + 1
			st.Queue = insertAt(st.Queue, pos, track)
		}
		return st.bind(pos, newPlayThrough()) | st.play()
	})
}

// ToggleShuffle flips shuffle. Enabling shuffles the upcoming tracks only;
// disabling puts them back in the order they had before.
func (store *Store) ToggleShuffle() {
	store.update(func(st *State) Change {
		st.Shuffle = !st.Shuffle
		if st.Shuffle {
			st.shuffleUpcoming()
		} else {
			st.unshuffle()
		}
		return ChangeModes | ChangeQueue
	})
}

// ToggleRepeat cycles the repeat mode: off -> all -> one -> off.
func (store *Store) ToggleRepeat() {
	store.update(func(st *State) Change {
		st.Repeat = st.Repeat.Next()
		return ChangeModes
	})
}

// SetRepeat sets the repeat mode.
func (store *Store) SetRepeat(mode RepeatMode) {
	store.update(func(st *State) Change {
		if mode < RepeatOff || mode > RepeatOne || mode == st.Repeat {
			return 0
		}
		st.Repeat = mode
		return ChangeModes
	})
}

// SetVolume sets the volume, clamped to [0, 1].
func (store *Store) SetVolume(vol float64) {
	store.update(func(st *State) Change {
		if math.IsNaN(vol) {
			return 0
		}
		vol = ClampVolume(vol)
		if vol == st.Volume {
			return 0
		}
		st.Volume = vol
		return ChangePreferences
	})
}

// SetPlaybackSpeed sets the playback rate. Rates outside of PlaybackSpeeds
// are ignored.
func (store *Store) SetPlaybackSpeed(speed float64) {
	store.update(func(st *State) Change {
		if !ValidSpeed(speed) || speed == st.Speed {
			return 0
		}
		st.Speed = speed
		return ChangePreferences
	})
}

func clampCrossfade(d time.Duration) time.Duration {
	return max(0, min(MaxCrossfade, d))
}

// SetCrossfade sets the crossfade, clamped to [0, MaxCrossfade].
func (store *Store) SetCrossfade(d time.Duration) {
	store.update(func(st *State) Change {
		d = clampCrossfade(d)
		if d == st.Crossfade {
			return 0
		}
		st.Crossfade = d
		return ChangePreferences
	})
}

func clampTime(st *State, t time.Duration) time.Duration {
	if t < 0 {
		return 0
	}
	if st.Duration > 0 && t > st.Duration {
		return st.Duration
	}
	return t
}

// SetCurrentTime records the playback position as reported by the audio
// output.
func (store *Store) SetCurrentTime(t time.Duration) {
	store.update(func(st *State) Change {
		if st.CurrentTrack == nil {
			return 0
		}
		t = clampTime(st, t)
		if t == st.CurrentTime {
			return 0
		}
		st.CurrentTime = t
		return ChangeTime
	})
}

// Seek moves the playback position of the current track.
func (store *Store) Seek(t time.Duration) {
	store.update(func(st *State) Change {
		if st.CurrentTrack == nil {
			return 0
		}
		st.CurrentTime = clampTime(st, t)
		return ChangeSeek | ChangeTime
	})
}

// SetDuration records the duration of the current track as reported by the
// audio output.
func (store *Store) SetDuration(d time.Duration) {
	store.update(func(st *State) Change {
		if st.CurrentTrack == nil || d < 0 || d == st.Duration {
			return 0
		}
		st.Duration = d
		return ChangeDuration
	})
}

// SetIsPlaying starts or pauses playback. Playback can not be started
// without a current track.
func (store *Store) SetIsPlaying(playing bool) {
	store.update(func(st *State) Change {
		if st.IsPlaying == playing || (playing && st.CurrentTrack == nil) {
			return 0
		}
		st.IsPlaying = playing
		return ChangeTransport
	})
}

// TogglePlaying pauses a playing track or resumes a paused one.
func (store *Store) TogglePlaying() {
	store.update(func(st *State) Change {
		if st.CurrentTrack == nil {
			return 0
		}
		st.IsPlaying = !st.IsPlaying
		return ChangeTransport
	})
}

// SetAccess records the tier of the resolved stream. It is ignored if the
// binding changed since the resolution was started.
func (store *Store) SetAccess(generation uint64, tier Tier) {
	store.update(func(st *State) Change {
		if generation != st.Generation || st.CurrentTrack == nil {
			return 0
		}
		st.Access = tier
		return ChangeAccess
	})
}

// SetLoaded records that the audio output holds the stream of the binding
// with the specified generation.
func (store *Store) SetLoaded(generation uint64) {
	store.update(func(st *State) Change {
		if generation != st.Generation || st.CurrentTrack == nil || st.Loaded {
			return 0
		}
		st.Loaded = true
		return ChangeLoaded
	})
}

// Restart starts a new play-through of the current track from the
// beginning.
func (store *Store) Restart() {
	store.update(func(st *State) Change {
		if st.CurrentTrack == nil {
			return 0
		}
		return st.restart(newPlayThrough())
	})
}

// Stop unbinds the current track. The queue is left as is.
func (store *Store) Stop() {
	store.update(func(st *State) Change {
		if st.CurrentTrack == nil {
			return 0
		}
		return st.unbind()
	})
}
