package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"fanplay/src/player"
)

// DefaultStreamThreshold is the amount of playing time after which a
// play-through counts as a stream.
const DefaultStreamThreshold = 30 * time.Second

const logStreamTimeout = 10 * time.Second

// AccountingPolicy determines what happens to the progress towards the
// threshold when playback is paused.
type AccountingPolicy string

const (
	// PolicyCumulative keeps the progress across pauses.
	PolicyCumulative AccountingPolicy = "cumulative"
	// PolicyReset discards the progress when playback is paused.
	PolicyReset AccountingPolicy = "reset"
)

// ParseAccountingPolicy validates the name of an accounting policy. The
// empty string yields the default policy.
func ParseAccountingPolicy(str string) (AccountingPolicy, error) {
	switch policy := AccountingPolicy(str); policy {
	case "":
		return PolicyCumulative, nil
	case PolicyCumulative, PolicyReset:
		return policy, nil
	default:
		return "", fmt.Errorf("unknown accounting policy: %q", str)
	}
}

// A StreamLogger reports streams to the marketplace.
type StreamLogger interface {
	// LogStream reports that a play-through of the track qualified as a
	// stream. The play-through ID is unique for each play-through.
	LogStream(ctx context.Context, trackID, playThrough string, played time.Duration) error
}

// AccountingOptions configure an Accounting.
type AccountingOptions struct {
	Threshold time.Duration
	Policy    AccountingPolicy
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// Accounting logs at most one stream for every play-through of a track that
// was playing for at least the threshold. Only time during which the audio
// output held the stream counts.
type Accounting struct {
	store  *player.Store
	logger StreamLogger
	opts   AccountingOptions

	lock        sync.Mutex
	playThrough string
	trackID     string
	logged      bool
	// played is the progress made before the countdown that is running.
	played  time.Duration
	started time.Time
	timer   *clock.Timer
	// seq invalidates timers that fire after they were stopped.
	seq    uint64
	closed bool

	pending sync.WaitGroup
}

// NewAccounting starts following the store.
func NewAccounting(store *player.Store, logger StreamLogger, opts AccountingOptions) *Accounting {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultStreamThreshold
	}
	if opts.Policy == "" {
		opts.Policy = PolicyCumulative
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	acc := &Accounting{
		store:  store,
		logger: logger,
		opts:   opts,
	}
	store.Observe(acc.observe)
	acc.update()
	return acc
}

func (acc *Accounting) observe(change player.Change, _ player.State) {
	if change.Has(player.ChangeTrack | player.ChangeRestart | player.ChangeTransport | player.ChangeLoaded) {
		acc.update()
	}
}

func (acc *Accounting) update() {
	st := acc.store.State()

	acc.lock.Lock()
	defer acc.lock.Unlock()
	if acc.closed {
		return
	}

	if st.PlayThrough != acc.playThrough {
		acc.stop()
		acc.playThrough = st.PlayThrough
		acc.trackID = ""
		if st.CurrentTrack != nil {
			acc.trackID = st.CurrentTrack.ID
		}
		acc.logged = false
		acc.played = 0
	}

	running := acc.timer != nil
	shouldRun := st.IsPlaying && st.Loaded && st.CurrentTrack != nil && !acc.logged
	switch {
	case shouldRun && !running:
		acc.start()
	case !shouldRun && running:
		acc.stop()
	}
}

// start must be called with the lock held.
func (acc *Accounting) start() {
	acc.seq++
	seq := acc.seq
	acc.started = acc.opts.Clock.Now()
	acc.timer = acc.opts.Clock.AfterFunc(acc.opts.Threshold-acc.played, func() {
		acc.fire(seq)
	})
}

// stop must be called with the lock held.
func (acc *Accounting) stop() {
	if acc.timer == nil {
		return
	}
	acc.timer.Stop()
	acc.timer = nil
	acc.seq++
	if acc.opts.Policy == PolicyCumulative {
		acc.played += acc.opts.Clock.Since(acc.started)
	} else {
		acc.played = 0
	}
}

func (acc *Accounting) fire(seq uint64) {
	acc.lock.Lock()
	if seq != acc.seq || acc.logged || acc.closed {
		acc.lock.Unlock()
		return
	}
	acc.logged = true
	acc.timer = nil
	played := acc.played + acc.opts.Clock.Since(acc.started)
	trackID, playThrough := acc.trackID, acc.playThrough
	acc.pending.Add(1)
	acc.lock.Unlock()
	defer acc.pending.Done()

	if st := acc.store.State(); st.PlayThrough == playThrough && st.CurrentTime > 0 {
		played = st.CurrentTime
	}

	ctx, cancel := context.WithTimeout(context.Background(), logStreamTimeout)
	defer cancel()
	entry := log.WithFields(log.Fields{
		"track":        trackID,
		"play_through": playThrough,
	})
	if err := acc.logger.LogStream(ctx, trackID, playThrough, played); err != nil {
		entry.Warn(fmt.Errorf("%w: %v", player.ErrLogging, err))
		return
	}
	entry.Debugf("Logged stream after %v", played)
}

// Close stops the running countdown and waits for pending logging calls.
func (acc *Accounting) Close() {
	acc.lock.Lock()
	acc.stop()
	acc.closed = true
	acc.lock.Unlock()
	acc.pending.Wait()
}
