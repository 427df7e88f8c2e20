// Package playback binds the player state to a real audio output.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"fanplay/src/player"
	"fanplay/src/util"
)

// NoticeKind classifies a message for the user.
type NoticeKind string

const (
	// NoticeUnauthorized is published when the marketplace denied access to
	// the current track.
	NoticeUnauthorized NoticeKind = "unauthorized"
	// NoticePlayback is published when the audio output failed.
	NoticePlayback NoticeKind = "playback"
	// NoticeError is published for all other failures.
	NoticeError NoticeKind = "error"
)

// A Notice is a message meant to be shown to the user. It is emitted by the
// Controller.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	TrackID string     `json:"track_id"`
	Message string     `json:"message"`
	Err     error      `json:"-"`
}

func noticeFor(trackID string, err error) Notice {
	kind := NoticeError
	switch {
	case errors.Is(err, player.ErrUnauthorized):
		kind = NoticeUnauthorized
	case errors.Is(err, player.ErrElementPlayback):
		kind = NoticePlayback
	}
	return Notice{
		Kind:    kind,
		TrackID: trackID,
		Message: player.UserMessage(err),
		Err:     err,
	}
}

// The Controller is the only component operating the audio Element.
//
// It follows the Store: it resolves and loads the stream of every track
// that becomes current, applies transport commands and preferences and feeds
// the facts reported by the element back into the Store.
type Controller struct {
	util.Emitter

	store    *player.Store
	element  player.Element
	resolver player.Resolver

	// elementLock serializes all operations on the element. It is always
	// acquired before lock.
	elementLock sync.Mutex

	lock sync.Mutex
	// generation is the binding the element is currently dedicated to.
	generation uint64
	// loaded is set once the source of generation was loaded.
	loaded bool
	// stale is set while the element may still hold the source of a
	// superseded binding.
	stale bool
	// failure is the reason the source of generation could not be loaded.
	failure   error
	cancel    context.CancelFunc
	closed    bool
	resolving sync.WaitGroup
}

// NewController attaches a new Controller to the store and element.
//
// If the store already has a current track, its stream is resolved right
// away.
func NewController(store *player.Store, element player.Element, resolver player.Resolver) *Controller {
	ctrl := &Controller{
		store:    store,
		element:  element,
		resolver: resolver,
	}
	element.Attach(elementHandler{ctrl: ctrl})
	store.Observe(ctrl.observe)
	ctrl.applyPreferences()
	ctrl.bind()
	return ctrl
}

// Events implements util.Eventer.
func (ctrl *Controller) Events() *util.Emitter {
	return &ctrl.Emitter
}

// Store returns the store the controller follows.
func (ctrl *Controller) Store() *player.Store {
	return ctrl.store
}

// Close cancels pending resolutions and closes the element.
func (ctrl *Controller) Close() error {
	ctrl.lock.Lock()
	ctrl.closed = true
	if ctrl.cancel != nil {
		ctrl.cancel()
		ctrl.cancel = nil
	}
	ctrl.lock.Unlock()
	ctrl.resolving.Wait()

	// Operations on the element that start after this point see closed.
	ctrl.elementLock.Lock()
	ctrl.elementLock.Unlock()
	return ctrl.element.Close()
}

// wait blocks until all pending resolutions have finished.
func (ctrl *Controller) wait() {
	ctrl.resolving.Wait()
}

// Seek moves the position of the current track. It is a no-op when no track
// is loaded.
func (ctrl *Controller) Seek(t time.Duration) {
	ctrl.store.Seek(t)
}

// SeekBy moves the position of the current track relative to the current
// position.
func (ctrl *Controller) SeekBy(delta time.Duration) {
	st := ctrl.store.State()
	if st.CurrentTrack == nil {
		return
	}
	ctrl.store.Seek(st.CurrentTime + delta)
}

// TogglePlay pauses or resumes playback. It is a no-op when no track is
// bound. A track of which the stream could not be loaded is not resumed.
func (ctrl *Controller) TogglePlay() {
	st := ctrl.store.State()
	if err := ctrl.failureOf(st.Generation); err != nil && !st.IsPlaying && st.CurrentTrack != nil {
		ctrl.Emit(noticeFor(st.CurrentTrack.ID, err))
		return
	}
	ctrl.store.TogglePlaying()
}

func (ctrl *Controller) failureOf(generation uint64) error {
	ctrl.lock.Lock()
	defer ctrl.lock.Unlock()
	if ctrl.generation != generation {
		return nil
	}
	return ctrl.failure
}

func (ctrl *Controller) observe(change player.Change, _ player.State) {
	if change.Has(player.ChangeTrack) {
		ctrl.bind()
	}
	if change.Has(player.ChangePreferences) {
		ctrl.applyPreferences()
	}
	if change.Has(player.ChangeRestart) {
		ctrl.withElement(func(st player.State) error {
			if err := ctrl.element.Seek(0); err != nil {
				return err
			}
			return ctrl.element.Play()
		})
	} else if change.Has(player.ChangeSeek) {
		ctrl.withElement(func(st player.State) error {
			return ctrl.element.Seek(st.CurrentTime)
		})
	}
	if change.Has(player.ChangeTransport) && !change.Has(player.ChangeTrack|player.ChangeRestart) {
		ctrl.withElement(func(st player.State) error {
			if st.IsPlaying {
				return ctrl.element.Play()
			}
			return ctrl.element.Pause()
		})
	}
}

// withElement runs fn with the latest state if the element holds the source
// of the current track.
func (ctrl *Controller) withElement(fn func(st player.State) error) {
	ctrl.elementLock.Lock()
	st := ctrl.store.State()
	ctrl.lock.Lock()
	ok := ctrl.loaded && ctrl.generation == st.Generation && !ctrl.closed
	ctrl.lock.Unlock()
	var err error
	if ok {
		err = fn(st)
	}
	ctrl.elementLock.Unlock()
	if err != nil {
		ctrl.fail(st.Generation, fmt.Errorf("%w: %v", player.ErrElementPlayback, err))
	}
}

func (ctrl *Controller) applyPreferences() {
	ctrl.elementLock.Lock()
	defer ctrl.elementLock.Unlock()
	ctrl.lock.Lock()
	closed := ctrl.closed
	ctrl.lock.Unlock()
	if closed {
		return
	}
	st := ctrl.store.State()
	if err := ctrl.element.SetVolume(st.Volume); err != nil {
		log.Warnf("Could not set volume: %v", err)
	}
	if err := ctrl.element.SetSpeed(st.Speed); err != nil {
		log.Warnf("Could not set playback speed: %v", err)
	}
}

// bind dedicates the element to the current track binding of the store.
func (ctrl *Controller) bind() {
	st := ctrl.store.State()

	ctrl.lock.Lock()
	if ctrl.closed || st.Generation <= ctrl.generation {
		ctrl.lock.Unlock()
		return
	}
	if ctrl.cancel != nil {
		ctrl.cancel()
		ctrl.cancel = nil
	}
	ctrl.generation = st.Generation
	ctrl.stale = ctrl.stale || ctrl.loaded
	ctrl.loaded = false
	ctrl.failure = nil

	if st.CurrentTrack == nil {
		ctrl.lock.Unlock()
		ctrl.unload(true)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ctrl.cancel = cancel
	ctrl.resolving.Add(1)
	ctrl.lock.Unlock()

	ctrl.unload(false)
	trackID := st.CurrentTrack.ID
	go func() {
		defer ctrl.resolving.Done()
		defer cancel()
		ctrl.resolve(ctx, st.Generation, trackID)
	}()
}

// unload drops the source of a superseded binding from the element, unless
// the current binding was loaded in the meantime.
func (ctrl *Controller) unload(force bool) {
	ctrl.elementLock.Lock()
	defer ctrl.elementLock.Unlock()
	ctrl.lock.Lock()
	drop := (force || ctrl.stale) && !ctrl.loaded && !ctrl.closed
	if drop {
		ctrl.stale = false
	}
	ctrl.lock.Unlock()
	if !drop {
		return
	}
	if err := ctrl.element.Load(""); err != nil {
		log.Warnf("Could not unload audio output: %v", err)
	}
}

func (ctrl *Controller) resolve(ctx context.Context, generation uint64, trackID string) {
	stream, err := ctrl.resolver.Resolve(ctx, trackID)
	if ctx.Err() != nil {
		log.WithField("track", trackID).Debug("Discarding superseded stream resolution")
		return
	}
	if err != nil {
		ctrl.fail(generation, err)
		return
	}
	ctrl.store.SetAccess(generation, stream.Tier)

	ctrl.elementLock.Lock()
	st := ctrl.store.State()
	ctrl.lock.Lock()
	current := ctrl.generation == generation && st.Generation == generation && !ctrl.closed
	ctrl.lock.Unlock()
	if !current {
		ctrl.elementLock.Unlock()
		log.WithField("track", trackID).Debug("Discarding stale stream")
		return
	}
	loaded, err := ctrl.load(st, generation, stream.URL)
	ctrl.elementLock.Unlock()
	if loaded {
		ctrl.store.SetLoaded(generation)
	}
	if err != nil {
		ctrl.fail(generation, fmt.Errorf("%w: %v", player.ErrElementPlayback, err))
		return
	}
	if !loaded {
		log.WithField("track", trackID).Debug("Stream was superseded while loading")
		return
	}
	log.WithFields(log.Fields{
		"track": trackID,
		"tier":  stream.Tier,
	}).Info("Loaded stream")
}

// load must be called with elementLock held. It reports whether the element
// holds the stream of the still current binding.
func (ctrl *Controller) load(st player.State, generation uint64, url string) (bool, error) {
	if err := ctrl.element.Load(url); err != nil {
		return false, err
	}
	ctrl.lock.Lock()
	current := ctrl.generation == generation
	ctrl.loaded = current
	ctrl.stale = !current
	ctrl.lock.Unlock()
	if !current {
		return false, nil
	}

	if err := ctrl.element.SetVolume(st.Volume); err != nil {
		log.Warnf("Could not set volume: %v", err)
	}
	if err := ctrl.element.SetSpeed(st.Speed); err != nil {
		log.Warnf("Could not set playback speed: %v", err)
	}
	if st.CurrentTime > 0 {
		if err := ctrl.element.Seek(st.CurrentTime); err != nil {
			return true, err
		}
	}
	if st.IsPlaying {
		return true, ctrl.element.Play()
	}
	return true, nil
}

// fail reports a failure of the binding with the specified generation to
// the user and stops playback. Failures of superseded bindings are dropped.
func (ctrl *Controller) fail(generation uint64, err error) {
	st := ctrl.store.State()
	if st.Generation != generation || st.CurrentTrack == nil {
		return
	}
	log.WithField("track", st.CurrentTrack.ID).Errorf("Playback failed: %v", err)
	ctrl.lock.Lock()
	if ctrl.generation == generation && !ctrl.loaded {
		ctrl.failure = err
	}
	ctrl.lock.Unlock()
	ctrl.store.SetIsPlaying(false)
	ctrl.Emit(noticeFor(st.CurrentTrack.ID, err))
}

func (ctrl *Controller) isLoaded() (uint64, bool) {
	ctrl.lock.Lock()
	defer ctrl.lock.Unlock()
	return ctrl.generation, ctrl.loaded && !ctrl.closed
}

type elementHandler struct {
	ctrl *Controller
}

func (h elementHandler) OnMetadata(duration time.Duration) {
	if _, ok := h.ctrl.isLoaded(); ok {
		h.ctrl.store.SetDuration(duration)
	}
}

func (h elementHandler) OnTimeUpdate(t time.Duration) {
	if _, ok := h.ctrl.isLoaded(); ok {
		h.ctrl.store.SetCurrentTime(t)
	}
}

func (h elementHandler) OnEnded() {
	if _, ok := h.ctrl.isLoaded(); !ok {
		return
	}
	if h.ctrl.store.State().Repeat == player.RepeatOne {
		h.ctrl.store.Restart()
	} else {
		h.ctrl.store.PlayNext()
	}
}

func (h elementHandler) OnError(err error) {
	generation, ok := h.ctrl.isLoaded()
	if !ok {
		log.Debugf("Ignoring audio output error without a loaded source: %v", err)
		return
	}
	h.ctrl.fail(generation, fmt.Errorf("%w: %v", player.ErrElementPlayback, err))
}
