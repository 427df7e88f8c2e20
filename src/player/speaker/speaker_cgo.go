//go:build cgo

package speaker

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	log "github.com/sirupsen/logrus"

	"fanplay/src/player"
)

// Available indicates whether audio playback is supported in this build.
const Available = true

var initOnce sync.Once
var initErr error

func initSpeaker() error {
	initOnce.Do(func() {
		sr := beep.SampleRate(SampleRate)
		initErr = speaker.Init(sr, sr.N(time.Second/10))
	})
	return initErr
}

// Element is a player.Element playing on the local sound card.
type Element struct {
	client *http.Client

	mu      sync.Mutex
	handler player.ElementHandler
	// source is incremented for every loaded source so callbacks of
	// previous sources can be told apart.
	source    uint64
	streamer  beep.StreamSeekCloser
	format    beep.Format
	ctrl      *beep.Ctrl
	resampler *beep.Resampler
	volume    *effects.Volume
	vol       float64
	speed     float64
	stop      chan struct{}
}

// New creates a speaker element. The sound card is initialized on first
// use.
func New(client *http.Client) (*Element, error) {
	if client == nil {
		client = http.DefaultClient
	}
	return &Element{client: client, vol: 1, speed: 1}, nil
}

// Attach implements player.Element.
func (el *Element) Attach(h player.ElementHandler) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.handler = h
}

// Load implements player.Element.
func (el *Element) Load(url string) error {
	el.mu.Lock()
	el.unloadLocked()
	el.source++
	source := el.source
	el.mu.Unlock()
	if url == "" {
		return nil
	}

	data, err := download(context.Background(), el.client, url)
	if err != nil {
		return err
	}
	streamer, format, err := mp3.Decode(nopCloser{bytes.NewReader(data)})
	if err != nil {
		return err
	}
	if err := initSpeaker(); err != nil {
		streamer.Close()
		return err
	}
	log.WithField("format", format).Debug("Decoded stream")

	el.mu.Lock()
	defer el.mu.Unlock()
	if source != el.source {
		// Another source was loaded while this one was downloading.
		streamer.Close()
		return nil
	}
	el.streamer = streamer
	el.format = format
	el.resampler = beep.ResampleRatio(4, el.ratio(), streamer)
	g, silent := gain(el.vol)
	el.volume = &effects.Volume{Streamer: el.resampler, Base: 2, Volume: g, Silent: silent}
	el.ctrl = &beep.Ctrl{Streamer: el.volume, Paused: true}
	el.stop = make(chan struct{})

	speaker.Play(beep.Seq(el.ctrl, beep.Callback(func() {
		// Run in a separate goroutine to avoid deadlocking the speaker
		// when the handler operates the element.
		go el.ended(source)
	})))
	go el.report(source, el.stop, format.SampleRate.D(streamer.Len()))
	return nil
}

func (el *Element) ratio() float64 {
	return float64(el.format.SampleRate) / float64(SampleRate) * el.speed
}

// unloadLocked must be called with mu held.
func (el *Element) unloadLocked() {
	if el.ctrl != nil {
		speaker.Lock()
		el.ctrl.Paused = true
		el.ctrl.Streamer = nil
		speaker.Unlock()
	}
	if el.stop != nil {
		close(el.stop)
		el.stop = nil
	}
	if el.streamer != nil {
		el.streamer.Close()
		el.streamer = nil
	}
	el.ctrl = nil
	el.resampler = nil
	el.volume = nil
}

var errNoSource = errors.New("no source loaded")

func (el *Element) setPaused(paused bool) error {
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.ctrl == nil {
		return errNoSource
	}
	speaker.Lock()
	el.ctrl.Paused = paused
	speaker.Unlock()
	return nil
}

// Play implements player.Element.
func (el *Element) Play() error {
	return el.setPaused(false)
}

// Pause implements player.Element.
func (el *Element) Pause() error {
	return el.setPaused(true)
}

// Seek implements player.Element.
func (el *Element) Seek(t time.Duration) error {
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.streamer == nil {
		return nil
	}
	speaker.Lock()
	defer speaker.Unlock()
	n := el.format.SampleRate.N(t)
	if n >= el.streamer.Len() {
		n = el.streamer.Len() - 1
	}
	return el.streamer.Seek(max(n, 0))
}

// SetVolume implements player.Element.
func (el *Element) SetVolume(vol float64) error {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.vol = player.ClampVolume(vol)
	if el.volume != nil {
		g, silent := gain(el.vol)
		speaker.Lock()
		el.volume.Volume, el.volume.Silent = g, silent
		speaker.Unlock()
	}
	return nil
}

// SetSpeed implements player.Element.
func (el *Element) SetSpeed(speed float64) error {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.speed = speed
	if el.resampler != nil {
		speaker.Lock()
		el.resampler.SetRatio(el.ratio())
		speaker.Unlock()
	}
	return nil
}

// Close implements player.Element.
func (el *Element) Close() error {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.unloadLocked()
	el.source++
	return nil
}

func (el *Element) current(source uint64) (player.ElementHandler, bool) {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.handler, el.source == source && el.handler != nil
}

func (el *Element) ended(source uint64) {
	if h, ok := el.current(source); ok {
		h.OnEnded()
	}
}

// report publishes the duration and the position of a source until it is
// unloaded.
func (el *Element) report(source uint64, stop <-chan struct{}, duration time.Duration) {
	if h, ok := el.current(source); ok {
		h.OnMetadata(duration)
	}
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		el.mu.Lock()
		if el.source != source || el.ctrl == nil {
			el.mu.Unlock()
			return
		}
		speaker.Lock()
		paused := el.ctrl.Paused
		pos := el.format.SampleRate.D(el.streamer.Position())
		speaker.Unlock()
		handler := el.handler
		el.mu.Unlock()

		if !paused && handler != nil {
			handler.OnTimeUpdate(pos)
		}
	}
}
