package player

import (
	"github.com/samber/lo"

	"fanplay/src/library"
)

func cloneTracks(tracks []library.Track) []library.Track {
	if tracks == nil {
		return nil
	}
	return append([]library.Track(nil), tracks...)
}

// indexOf returns the first index in [start, end) of a track with the
// specified ID or -1.
func indexOf(tracks []library.Track, id string, start, end int) int {
	for i := max(start, 0); i < end && i < len(tracks); i++ {
		if tracks[i].ID == id {
			return i
		}
	}
	return -1
}

func insertAt(tracks []library.Track, pos int, track library.Track) []library.Track {
	tracks = append(tracks, library.Track{})
	copy(tracks[pos+1:], tracks[pos:])
	tracks[pos] = track
	return tracks
}

func removeAt(tracks []library.Track, pos int) []library.Track {
	return append(tracks[:pos], tracks[pos+1:]...)
}

// moveTrack moves the track at from so it ends up at index to.
func moveTrack(tracks []library.Track, from, to int) []library.Track {
	track := tracks[from]
	tracks = removeAt(tracks, from)
	return insertAt(tracks, to, track)
}

// restoreOrder puts the upcoming tracks back in the order they had in
// original. Tracks that are not part of original keep their relative order
// and are placed at the end.
func restoreOrder(upcoming, original []library.Track) []library.Track {
	remaining := lo.CountValuesBy(upcoming, func(t library.Track) string { return t.ID })
	restored := make([]library.Track, 0, len(upcoming))
	for _, t := range original {
		if remaining[t.ID] > 0 {
			restored = append(restored, t)
			remaining[t.ID]--
		}
	}
	for _, t := range upcoming {
		if remaining[t.ID] > 0 {
			restored = append(restored, t)
			remaining[t.ID]--
		}
	}
	return restored
}

func (st *State) pushHistory(track library.Track, size int) {
	st.History = append([]library.Track{track}, st.History...)
	if len(st.History) > size {
		st.History = st.History[:size]
	}
}

// bind makes the track at index i of the queue the current track.
func (st *State) bind(i int, playThrough string) Change {
	track := st.Queue[i]
	st.CurrentIndex = i
	st.CurrentTrack = &track
	st.CurrentTime, st.Duration = 0, 0
	st.Access = ""
	st.Loaded = false
	st.Generation++
	st.PlayThrough = playThrough
	return ChangeTrack | ChangeTime | ChangeDuration | ChangeQueue | ChangeAccess | ChangeLoaded
}

func (st *State) unbind() Change {
	st.CurrentIndex = -1
	st.CurrentTrack = nil
	st.CurrentTime, st.Duration = 0, 0
	st.Access = ""
	st.Loaded = false
	st.IsPlaying = false
	st.Generation++
	st.PlayThrough = ""
	return ChangeTrack | ChangeTime | ChangeDuration | ChangeTransport | ChangeAccess | ChangeLoaded
}

// restart starts a new play-through of the current track.
func (st *State) restart(playThrough string) Change {
	st.CurrentTime = 0
	st.PlayThrough = playThrough
	st.IsPlaying = true
	return ChangeRestart | ChangeTime | ChangeTransport
}

func (st *State) play() Change {
	if st.IsPlaying {
		return 0
	}
	st.IsPlaying = true
	return ChangeTransport
}

// locate finds the queue position to go back to for a track taken from the
// history. The closest entry before the current one is preferred. If the
// track is no longer queued, it is inserted in front of the current track.
func (st *State) locate(track library.Track) int {
	cur := st.CurrentIndex
	for i := cur - 1; i >= 0; i-- {
		if st.Queue[i].ID == track.ID {
			return i
		}
	}
	if i := indexOf(st.Queue, track.ID, cur+1, len(st.Queue)); i >= 0 {
		return i
	}
	pos := max(cur, 0)
	st.Queue = insertAt(st.Queue, pos, track)
	if st.CurrentIndex >= 0 {
		st.CurrentIndex++
	}
	return pos
}

func (st *State) reorder(from, to int) Change {
	n := len(st.Queue)
	if from < 0 || to < 0 || from >= n || to >= n || from == to {
		return 0
	}
	if from <= st.CurrentIndex || to <= st.CurrentIndex {
		return 0
	}
	st.Queue = moveTrack(st.Queue, from, to)
	return ChangeQueue
}

func (st *State) shuffleUpcoming() {
	upcoming := st.Queue[st.CurrentIndex+1:]
	st.unshuffled = cloneTracks(upcoming)
	lo.Shuffle(upcoming)
}

func (st *State) unshuffle() {
	if st.unshuffled == nil {
		return
	}
	upcoming := st.Queue[st.CurrentIndex+1:]
	copy(upcoming, restoreOrder(upcoming, st.unshuffled))
	st.unshuffled = nil
}
