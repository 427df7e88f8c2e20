package jukebox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"fanplay/src/library"
	"fanplay/src/playback"
	"fanplay/src/player"
	"fanplay/src/storage"
)

// Keys under which the player state is persisted.
const (
	KeyQueue        = "player_queue"
	KeyCurrentTrack = "current_track"
)

// ErrLikesUnavailable is returned when no like service was configured.
var ErrLikesUnavailable = errors.New("likes are not available")

// A LikeService tracks which tracks the user likes.
type LikeService interface {
	IsLiked(ctx context.Context, trackID string) (bool, error)
	SetLiked(ctx context.Context, trackID string, liked bool) error
}

// Options configure a Jukebox.
type Options struct {
	Player     player.Options
	Accounting playback.AccountingOptions
}

// Jukebox owns the one global player: its state, the controller operating
// the audio output, stream accounting and persistence.
type Jukebox struct {
	store *player.Store
	ctrl  *playback.Controller
	acc   *playback.Accounting
	kv    storage.KV
	likes LikeService

	// persistLock serializes writes of the player state.
	persistLock sync.Mutex
	// resetting is set while the persisted state is being discarded.
	resetting atomic.Bool
}

// New sets up the player. State persisted in kv from a previous run is
// restored, with playback paused.
func New(kv storage.KV, element player.Element, resolver player.Resolver, logger playback.StreamLogger, likes LikeService, opts Options) *Jukebox {
	jb := &Jukebox{
		store: player.NewStore(opts.Player),
		kv:    kv,
		likes: likes,
	}
	jb.rehydrate()
	jb.store.Observe(jb.persist)
	jb.ctrl = playback.NewController(jb.store, element, resolver)
	jb.acc = playback.NewAccounting(jb.store, logger, opts.Accounting)
	return jb
}

// Store returns the state of the player.
func (jb *Jukebox) Store() *player.Store {
	return jb.store
}

// Controller returns the controller of the audio output.
func (jb *Jukebox) Controller() *playback.Controller {
	return jb.ctrl
}

// Close stops the player.
func (jb *Jukebox) Close() error {
	jb.acc.Close()
	return jb.ctrl.Close()
}

// Reset recovers from a fault in the player by discarding its persisted
// state and starting over with an empty player.
func (jb *Jukebox) Reset() error {
	jb.resetting.Store(true)
	defer jb.resetting.Store(false)
	jb.store.Reset()
	jb.persistLock.Lock()
	defer jb.persistLock.Unlock()
	if err := jb.kv.Delete(KeyQueue, KeyCurrentTrack); err != nil {
		return fmt.Errorf("could not clear player state: %w", err)
	}
	log.Warn("Player state was reset")
	return nil
}

// IsLiked reports whether the user likes the track.
func (jb *Jukebox) IsLiked(ctx context.Context, trackID string) (bool, error) {
	if jb.likes == nil {
		return false, ErrLikesUnavailable
	}
	return jb.likes.IsLiked(ctx, trackID)
}

// SetLiked likes or unlikes a track.
func (jb *Jukebox) SetLiked(ctx context.Context, trackID string, liked bool) error {
	if jb.likes == nil {
		return ErrLikesUnavailable
	}
	return jb.likes.SetLiked(ctx, trackID, liked)
}

const persistedChanges = player.ChangeTrack | player.ChangeQueue | player.ChangeModes | player.ChangePreferences

func (jb *Jukebox) persist(change player.Change, _ player.State) {
	if !change.Has(persistedChanges) {
		return
	}
	jb.persistLock.Lock()
	defer jb.persistLock.Unlock()
	if jb.resetting.Load() {
		return
	}

	// Read under the lock, a save that had to wait writes the latest state.
	st := jb.store.State()
	if err := jb.save(st); err != nil {
		log.Errorf("Could not persist player state: %v", err)
	}
}

func (jb *Jukebox) save(st player.State) error {
	queue, err := json.Marshal(st.Snapshot())
	if err != nil {
		return err
	}
	if err := jb.kv.Set(KeyQueue, queue); err != nil {
		return err
	}
	if st.CurrentTrack == nil {
		return jb.kv.Delete(KeyCurrentTrack)
	}
	current, err := json.Marshal(st.CurrentTrack)
	if err != nil {
		return err
	}
	return jb.kv.Set(KeyCurrentTrack, current)
}

func (jb *Jukebox) rehydrate() {
	snap, ok, err := jb.load()
	if err != nil {
		log.Warnf("Discarding unreadable player state: %v", err)
		if err := jb.kv.Delete(KeyQueue, KeyCurrentTrack); err != nil {
			log.Errorf("Could not clear player state: %v", err)
		}
		return
	}
	if !ok {
		return
	}
	jb.store.Restore(snap)
	st := jb.store.State()
	log.WithFields(log.Fields{
		"queue":   len(st.Queue),
		"history": len(st.History),
		"index":   st.CurrentIndex,
	}).Info("Restored player state")
}

func (jb *Jukebox) load() (player.Snapshot, bool, error) {
	var snap player.Snapshot
	data, ok, err := jb.kv.Get(KeyQueue)
	if err != nil || !ok {
		return snap, false, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, false, fmt.Errorf("%s: %w", KeyQueue, err)
	}

	data, ok, err = jb.kv.Get(KeyCurrentTrack)
	if err != nil {
		return snap, false, err
	}
	if !ok {
		snap.CurrentIndex = -1
		return snap, true, nil
	}
	var current library.Track
	if err := json.Unmarshal(data, &current); err != nil {
		return snap, false, fmt.Errorf("%s: %w", KeyCurrentTrack, err)
	}
	i := snap.CurrentIndex
	if i < 0 || i >= len(snap.Queue) || snap.Queue[i].ID != current.ID {
		snap.CurrentIndex = -1
		for j, t := range snap.Queue {
			if t.ID == current.ID {
				snap.CurrentIndex = j
				break
			}
		}
	}
	return snap, true, nil
}
