package jukebox

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"fanplay/src/library"
	"fanplay/src/player"
	"fanplay/src/storage"
)

type nopElement struct{}

func (nopElement) Load(url string) error { return nil }
func (nopElement) Play() error { return nil }
func (nopElement) Pause() error { return nil }
func (nopElement) Seek(t time.Duration) error { return nil }
func (nopElement) SetVolume(vol float64) error { return nil }
func (nopElement) SetSpeed(speed float64) error { return nil }
func (nopElement) Attach(h player.ElementHandler) {}
func (nopElement) Close() error { return nil }

type instantResolver struct{}

func (instantResolver) Resolve(ctx context.Context, trackID string) (player.Stream, error) {
	return player.Stream{URL: "https://cdn.example.com/" + trackID, Tier: player.TierFree}, nil
}

type nopLogger struct{}

func (nopLogger) LogStream(ctx context.Context, trackID, playThrough string, played time.Duration) error {
	return nil
}

type memoryLikes map[string]bool

func (m memoryLikes) IsLiked(ctx context.Context, trackID string) (bool, error) {
	return m[trackID], nil
}

func (m memoryLikes) SetLiked(ctx context.Context, trackID string, liked bool) error {
	m[trackID] = liked
	return nil
}

func testTracks(ids ...string) []library.Track {
	tracks := make([]library.Track, len(ids))
	for i, id := range ids {
		tracks[i] = library.Track{ID: id, Title: "Title " + id, Duration: time.Minute}
	}
	return tracks
}

func newTestJukebox(t *testing.T, kv storage.KV) *Jukebox {
	t.Helper()
	jb := New(kv, nopElement{}, instantResolver{}, nopLogger{}, memoryLikes{}, Options{})
	t.Cleanup(func() { jb.Close() })
	return jb
}

func openTestStorage(t *testing.T, dir string) storage.KV {
	t.Helper()
	kv, err := storage.OpenFile(dir)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return kv
}

func TestPersistAndRehydrate(t *testing.T) {
	dir := t.TempDir()
	jb := newTestJukebox(t, openTestStorage(t, dir))
	tracks := testTracks("a", "b", "c")
	jb.Store().PlayTrack(tracks[0], tracks)
	jb.Store().PlayNext()
	jb.Store().ToggleRepeat()
	jb.Store().SetVolume(0.5)
	jb.Close()

	restored := newTestJukebox(t, openTestStorage(t, dir))
	st := restored.Store().State()
	if st.CurrentTrack == nil || st.CurrentTrack.ID != "b" || st.CurrentIndex != 1 {
		t.Fatalf("Unexpected current track: %v at %d", st.CurrentTrack, st.CurrentIndex)
	}
	if st.IsPlaying {
		t.Fatalf("Restored player is playing")
	}
	if got := library.IDs(st.Queue); len(got) != 3 {
		t.Fatalf("Unexpected queue: %v", got)
	}
	if got := library.IDs(st.History); len(got) != 1 || got[0] != "a" {
		t.Fatalf("Unexpected history: %v", got)
	}
	if st.Repeat != player.RepeatAll || st.Volume != 0.5 {
		t.Fatalf("Unexpected modes: %v %v", st.Repeat, st.Volume)
	}
}

// gatedKV blocks the first write until release is closed.
type gatedKV struct {
	storage.KV
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (kv *gatedKV) Set(key string, value []byte) error {
	first := false
	kv.once.Do(func() { first = true })
	if first {
		close(kv.entered)
		<-kv.release
	}
	return kv.KV.Set(key, value)
}

func TestPersistConcurrentUpdates(t *testing.T) {
	dir := t.TempDir()
	kv := &gatedKV{
		KV:      openTestStorage(t, dir),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	jb := newTestJukebox(t, kv)
	tracks := testTracks("a", "b")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		jb.Store().PlayTrack(tracks[0], tracks[:1])
	}()
	<-kv.entered
	go func() {
		defer wg.Done()
		jb.Store().AddToQueue(tracks[1])
	}()
	deadline := time.Now().Add(time.Second)
	for len(jb.Store().State().Queue) != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Track was not added")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(kv.release)
	wg.Wait()
	jb.Close()

	restored := newTestJukebox(t, openTestStorage(t, dir))
	if got := library.IDs(restored.Store().State().Queue); len(got) != 2 || got[1] != "b" {
		t.Fatalf("Unexpected persisted queue: %v", got)
	}
}

func TestRehydrateLocatesCurrentTrack(t *testing.T) {
	kv := openTestStorage(t, t.TempDir())
	snap := player.Snapshot{Queue: testTracks("a", "b", "c"), CurrentIndex: 0, Volume: 1, Speed: 1}
	data, _ := json.Marshal(snap)
	kv.Set(KeyQueue, data)
	current, _ := json.Marshal(testTracks("c")[0])
	kv.Set(KeyCurrentTrack, current)

	jb := newTestJukebox(t, kv)
	if st := jb.Store().State(); st.CurrentIndex != 2 {
		t.Fatalf("Unexpected current index: %d", st.CurrentIndex)
	}
}

func TestRehydrateDiscardsCorruptState(t *testing.T) {
	kv := openTestStorage(t, t.TempDir())
	kv.Set(KeyQueue, []byte("{not json"))
	kv.Set(KeyCurrentTrack, []byte(`{"id": "a"}`))

	jb := newTestJukebox(t, kv)
	if st := jb.Store().State(); st.CurrentTrack != nil || len(st.Queue) != 0 {
		t.Fatalf("Corrupt state was restored")
	}
	if _, ok, _ := kv.Get(KeyQueue); ok {
		t.Fatalf("Corrupt state was not cleared")
	}
}

func TestReset(t *testing.T) {
	kv := openTestStorage(t, t.TempDir())
	kv.Set("unrelated", []byte("1"))
	jb := newTestJukebox(t, kv)
	tracks := testTracks("a", "b")
	jb.Store().PlayTrack(tracks[0], tracks)
	if _, ok, _ := kv.Get(KeyCurrentTrack); !ok {
		t.Fatalf("Current track was not persisted")
	}

	if err := jb.Reset(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for _, key := range []string{KeyQueue, KeyCurrentTrack} {
		if _, ok, _ := kv.Get(key); ok {
			t.Fatalf("Key %q was not cleared", key)
		}
	}
	if _, ok, _ := kv.Get("unrelated"); !ok {
		t.Fatalf("Unrelated key was cleared")
	}
	if st := jb.Store().State(); st.CurrentTrack != nil || len(st.Queue) != 0 {
		t.Fatalf("Store was not reset")
	}
}

func TestLikes(t *testing.T) {
	jb := newTestJukebox(t, openTestStorage(t, t.TempDir()))
	ctx := context.Background()
	if err := jb.SetLiked(ctx, "a", true); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if liked, err := jb.IsLiked(ctx, "a"); err != nil || !liked {
		t.Fatalf("Unexpected like state: %v, %v", liked, err)
	}

	noLikes := New(openTestStorage(t, t.TempDir()), nopElement{}, instantResolver{}, nopLogger{}, nil, Options{})
	defer noLikes.Close()
	if _, err := noLikes.IsLiked(ctx, "a"); err != ErrLikesUnavailable {
		t.Fatalf("Unexpected error: %v", err)
	}
}
