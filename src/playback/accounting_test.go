package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"fanplay/src/player"
)

type loggedStream struct {
	trackID     string
	playThrough string
	played      time.Duration
}

type fakeStreamLogger struct {
	err    error
	lock   sync.Mutex
	calls  []loggedStream
	notify chan loggedStream
}

func newFakeStreamLogger() *fakeStreamLogger {
	return &fakeStreamLogger{notify: make(chan loggedStream, 16)}
}

func (lg *fakeStreamLogger) LogStream(ctx context.Context, trackID, playThrough string, played time.Duration) error {
	call := loggedStream{trackID: trackID, playThrough: playThrough, played: played}
	lg.lock.Lock()
	lg.calls = append(lg.calls, call)
	lg.lock.Unlock()
	lg.notify <- call
	return lg.err
}

func (lg *fakeStreamLogger) count() int {
	lg.lock.Lock()
	defer lg.lock.Unlock()
	return len(lg.calls)
}

func (lg *fakeStreamLogger) waitCall(t *testing.T) loggedStream {
	t.Helper()
	select {
	case call := <-lg.notify:
		return call
	case <-time.After(time.Second):
		t.Fatalf("No stream was logged")
		return loggedStream{}
	}
}

func (lg *fakeStreamLogger) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case call := <-lg.notify:
		t.Fatalf("Unexpected stream logged: %#v", call)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestAccounting(t *testing.T, policy AccountingPolicy) (*player.Store, *clock.Mock, *fakeStreamLogger) {
	t.Helper()
	store := player.NewStore(player.Options{})
	mock := clock.NewMock()
	logger := newFakeStreamLogger()
	acc := NewAccounting(store, logger, AccountingOptions{Policy: policy, Clock: mock})
	t.Cleanup(acc.Close)
	return store, mock, logger
}

// markLoaded stands in for a controller that loaded the current stream.
func markLoaded(store *player.Store) {
	store.SetLoaded(store.State().Generation)
}

func TestAccountingContinuousPlay(t *testing.T) {
	for _, policy := range []AccountingPolicy{PolicyCumulative, PolicyReset} {
		t.Run(string(policy), func(t *testing.T) {
			store, mock, logger := newTestAccounting(t, policy)
			tracks := testTracks("a")
			store.PlayTrack(tracks[0], tracks)
			markLoaded(store)
			pt := store.State().PlayThrough

			mock.Add(29 * time.Second)
			logger.expectNoCall(t)
			mock.Add(2 * time.Second)
			call := logger.waitCall(t)
			if call.trackID != "a" || call.playThrough != pt {
				t.Fatalf("Unexpected call: %#v", call)
			}
			if call.played < 30*time.Second || call.played > 31*time.Second {
				t.Fatalf("Unexpected played time: %v", call.played)
			}

			mock.Add(5 * time.Minute)
			logger.expectNoCall(t)
			if n := logger.count(); n != 1 {
				t.Fatalf("Unexpected number of calls: %d", n)
			}
		})
	}
}

func TestAccountingPauseCumulative(t *testing.T) {
	store, mock, logger := newTestAccounting(t, PolicyCumulative)
	tracks := testTracks("a")
	store.PlayTrack(tracks[0], tracks)
	markLoaded(store)

	mock.Add(29 * time.Second)
	store.SetIsPlaying(false)
	mock.Add(time.Hour)
	logger.expectNoCall(t)

	store.SetIsPlaying(true)
	mock.Add(2 * time.Second)
	logger.waitCall(t)

	for i := 0; i < 5; i++ {
		store.SetIsPlaying(false)
		store.SetIsPlaying(true)
		mock.Add(time.Minute)
	}
	logger.expectNoCall(t)
	if n := logger.count(); n != 1 {
		t.Fatalf("Unexpected number of calls: %d", n)
	}
}

func TestAccountingPauseReset(t *testing.T) {
	store, mock, logger := newTestAccounting(t, PolicyReset)
	tracks := testTracks("a")
	store.PlayTrack(tracks[0], tracks)
	markLoaded(store)

	mock.Add(29 * time.Second)
	store.SetIsPlaying(false)
	store.SetIsPlaying(true)
	mock.Add(2 * time.Second)
	logger.expectNoCall(t)

	mock.Add(28 * time.Second)
	logger.waitCall(t)
	for i := 0; i < 5; i++ {
		store.SetIsPlaying(false)
		store.SetIsPlaying(true)
		mock.Add(time.Minute)
	}
	logger.expectNoCall(t)
	if n := logger.count(); n != 1 {
		t.Fatalf("Unexpected number of calls: %d", n)
	}
}

func TestAccountingTrackChangeCancels(t *testing.T) {
	store, mock, logger := newTestAccounting(t, PolicyCumulative)
	tracks := testTracks("a", "b")
	store.PlayTrack(tracks[0], tracks)
	markLoaded(store)
	mock.Add(20 * time.Second)
	store.PlayNext()
	markLoaded(store)
	mock.Add(20 * time.Second)
	logger.expectNoCall(t)

	mock.Add(10 * time.Second)
	if call := logger.waitCall(t); call.trackID != "b" {
		t.Fatalf("Unexpected track logged: %q", call.trackID)
	}
}

func TestAccountingNewPlayThrough(t *testing.T) {
	store, mock, logger := newTestAccounting(t, PolicyCumulative)
	tracks := testTracks("a")
	store.PlayTrack(tracks[0], tracks)
	markLoaded(store)
	mock.Add(31 * time.Second)
	first := logger.waitCall(t)

	store.Restart()
	mock.Add(31 * time.Second)
	second := logger.waitCall(t)
	if first.trackID != second.trackID || first.playThrough == second.playThrough {
		t.Fatalf("Unexpected calls: %#v %#v", first, second)
	}
}

func TestAccountingFailureIsSwallowed(t *testing.T) {
	store, mock, logger := newTestAccounting(t, PolicyCumulative)
	logger.err = errors.New("service unavailable")
	tracks := testTracks("a")
	store.PlayTrack(tracks[0], tracks)
	markLoaded(store)
	mock.Add(31 * time.Second)
	logger.waitCall(t)

	mock.Add(time.Minute)
	logger.expectNoCall(t)
	if !store.State().IsPlaying {
		t.Fatalf("Logging failure interrupted playback")
	}
}

func TestAccountingWaitsForStream(t *testing.T) {
	store, mock, logger := newTestAccounting(t, PolicyCumulative)
	tracks := testTracks("a", "b")
	store.PlayTrack(tracks[0], tracks)
	mock.Add(time.Minute)
	logger.expectNoCall(t)

	markLoaded(store)
	mock.Add(29 * time.Second)
	logger.expectNoCall(t)
	mock.Add(2 * time.Second)
	logger.waitCall(t)

	store.PlayNext()
	mock.Add(time.Minute)
	logger.expectNoCall(t)
}

func TestAccountingUnauthorizedTrack(t *testing.T) {
	store := player.NewStore(player.Options{})
	el := &fakeElement{}
	res := newFakeResolver()
	res.errs["b"] = fmt.Errorf("%w: nft gated", player.ErrUnauthorized)
	ctrl := NewController(store, el, res)
	defer ctrl.Close()
	mock := clock.NewMock()
	logger := newFakeStreamLogger()
	acc := NewAccounting(store, logger, AccountingOptions{Clock: mock})
	defer acc.Close()
	l := ctrl.Events().Listen()
	defer ctrl.Events().Unlisten(l)

	tracks := testTracks("b")
	store.PlayTrack(tracks[0], tracks)
	waitNotice(t, l)
	ctrl.wait()

	ctrl.TogglePlay()
	if notice := waitNotice(t, l); notice.Kind != NoticeUnauthorized {
		t.Fatalf("Unexpected notice: %#v", notice)
	}
	if store.State().IsPlaying {
		t.Fatalf("Playback of an unauthorized track was resumed")
	}

	store.SetIsPlaying(true)
	mock.Add(31 * time.Second)
	logger.expectNoCall(t)
	if st := el.snapshot(); len(st.loads) != 0 || st.playing {
		t.Fatalf("Unexpected element state: %#v", st)
	}
}

func TestParseAccountingPolicy(t *testing.T) {
	if p, err := ParseAccountingPolicy(""); err != nil || p != PolicyCumulative {
		t.Fatalf("Unexpected default policy: %q, %v", p, err)
	}
	if p, err := ParseAccountingPolicy("reset"); err != nil || p != PolicyReset {
		t.Fatalf("Unexpected policy: %q, %v", p, err)
	}
	if _, err := ParseAccountingPolicy("forever"); err == nil {
		t.Fatalf("Invalid policy was accepted")
	}
}
