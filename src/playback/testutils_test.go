package playback

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"fanplay/src/library"
	"fanplay/src/player"
)

type elementState struct {
	url     string
	loads   []string
	playing bool
	pos     time.Duration
	seeks   []time.Duration
	volume  float64
	speed   float64
	closed  bool
}

type fakeElement struct {
	lock    sync.Mutex
	handler player.ElementHandler
	state   elementState
	playErr error
}

func (el *fakeElement) Load(url string) error {
	el.lock.Lock()
	defer el.lock.Unlock()
	el.state.url = url
	el.state.loads = append(el.state.loads, url)
	el.state.playing = false
	el.state.pos = 0
	return nil
}

func (el *fakeElement) Play() error {
	el.lock.Lock()
	defer el.lock.Unlock()
	if el.playErr != nil {
		return el.playErr
	}
	el.state.playing = true
	return nil
}

func (el *fakeElement) Pause() error {
	el.lock.Lock()
	defer el.lock.Unlock()
	el.state.playing = false
	return nil
}

func (el *fakeElement) Seek(t time.Duration) error {
	el.lock.Lock()
	defer el.lock.Unlock()
	el.state.pos = t
	el.state.seeks = append(el.state.seeks, t)
	return nil
}

func (el *fakeElement) SetVolume(vol float64) error {
	el.lock.Lock()
	defer el.lock.Unlock()
	el.state.volume = vol
	return nil
}

func (el *fakeElement) SetSpeed(speed float64) error {
	el.lock.Lock()
	defer el.lock.Unlock()
	el.state.speed = speed
	return nil
}

func (el *fakeElement) Attach(h player.ElementHandler) {
	el.lock.Lock()
	defer el.lock.Unlock()
	el.handler = h
}

func (el *fakeElement) Close() error {
	el.lock.Lock()
	defer el.lock.Unlock()
	el.state.closed = true
	return nil
}

func (el *fakeElement) setPlayErr(err error) {
	el.lock.Lock()
	defer el.lock.Unlock()
	el.playErr = err
}

func (el *fakeElement) snapshot() elementState {
	el.lock.Lock()
	defer el.lock.Unlock()
	st := el.state
	st.loads = append([]string(nil), el.state.loads...)
	st.seeks = append([]time.Duration(nil), el.state.seeks...)
	return st
}

func (el *fakeElement) events() player.ElementHandler {
	el.lock.Lock()
	defer el.lock.Unlock()
	return el.handler
}

// fakeResolver hands out streams for any track. Resolution of a gated track
// blocks until the gate is closed or, unless ignoreCtx is set, the context is
// canceled.
type fakeResolver struct {
	ignoreCtx bool

	lock   sync.Mutex
	tiers  map[string]player.Tier
	errs   map[string]error
	gates  map[string]chan struct{}
	called []string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		tiers: map[string]player.Tier{},
		errs:  map[string]error{},
		gates: map[string]chan struct{}{},
	}
}

func (res *fakeResolver) gate(trackID string) chan struct{} {
	res.lock.Lock()
	defer res.lock.Unlock()
	ch := make(chan struct{})
	res.gates[trackID] = ch
	return ch
}

func (res *fakeResolver) Resolve(ctx context.Context, trackID string) (player.Stream, error) {
	res.lock.Lock()
	res.called = append(res.called, trackID)
	gate := res.gates[trackID]
	err := res.errs[trackID]
	tier, ok := res.tiers[trackID]
	res.lock.Unlock()

	if gate != nil {
		if res.ignoreCtx {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return player.Stream{}, fmt.Errorf("%w: %v", player.ErrNetwork, ctx.Err())
			}
		}
	}
	if err != nil {
		return player.Stream{}, err
	}
	if !ok {
		tier = player.TierFree
	}
	return player.Stream{URL: streamURL(trackID), Tier: tier}, nil
}

func streamURL(trackID string) string {
	return fmt.Sprintf("https://cdn.example.com/%s.mp3", trackID)
}

func testTracks(ids ...string) []library.Track {
	tracks := make([]library.Track, len(ids))
	for i, id := range ids {
		tracks[i] = library.Track{ID: id, Title: "Title " + id, Duration: 3 * time.Minute}
	}
	return tracks
}

func newTestController(t *testing.T) (*Controller, *player.Store, *fakeElement, *fakeResolver) {
	t.Helper()
	store := player.NewStore(player.Options{})
	el := &fakeElement{}
	res := newFakeResolver()
	ctrl := NewController(store, el, res)
	t.Cleanup(func() {
		if err := ctrl.Close(); err != nil {
			t.Errorf("Unexpected error closing controller: %v", err)
		}
	})
	return ctrl, store, el, res
}

func waitNotice(t *testing.T, l <-chan interface{}) Notice {
	t.Helper()
	for {
		select {
		case msg := <-l:
			if notice, ok := msg.(Notice); ok {
				return notice
			}
		case <-time.After(time.Second):
			t.Fatalf("No notice was emitted")
		}
	}
}
