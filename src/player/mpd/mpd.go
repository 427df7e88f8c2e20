// Package mpd implements an audio output on top of a Music Player Daemon.
//
// The element takes exclusive ownership of the MPD queue: loading a source
// replaces whatever MPD was playing with a single stream.
package mpd

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	log "github.com/sirupsen/logrus"

	"fanplay/src/player"
)

const pollInterval = 500 * time.Millisecond

// Element is a player.Element backed by MPD.
type Element struct {
	network, address, passwd string

	// Running the idle routine on the same connection as the main connection
	// will fuck things up badly.
	watcher *mpd.Watcher

	lock     sync.Mutex
	handler  player.ElementHandler
	url      string
	playing  bool
	duration time.Duration

	stop chan struct{}
	done sync.WaitGroup
}

// Connect sets up an Element using the specified MPD server.
func Connect(network, address string, mpdPassword *string) (*Element, error) {
	var passwd string
	if mpdPassword != nil {
		passwd = *mpdPassword
	}

	watcher, err := mpd.NewWatcher(network, address, passwd, "player")
	if err != nil {
		return nil, fmt.Errorf("could not connect to MPD at %s: %w", address, err)
	}

	el := &Element{
		network: network,
		address: address,
		passwd:  passwd,
		watcher: watcher,
		stop:    make(chan struct{}),
	}
	el.done.Add(2)
	go el.eventLoop()
	go el.pollLoop()
	return el, nil
}

// do runs fn on a fresh connection to MPD.
func (el *Element) do(fn func(mpdc *mpd.Client) error) error {
	client, err := mpd.DialAuthenticated(el.network, el.address, el.passwd)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

// Attach implements player.Element.
func (el *Element) Attach(h player.ElementHandler) {
	el.lock.Lock()
	defer el.lock.Unlock()
	el.handler = h
}

// Load implements player.Element.
func (el *Element) Load(url string) error {
	el.lock.Lock()
	el.url = url
	el.playing = false
	el.duration = 0
	el.lock.Unlock()

	return el.do(func(mpdc *mpd.Client) error {
		if err := mpdc.Clear(); err != nil {
			return err
		}
		if url == "" {
			return nil
		}
		return mpdc.Add(url)
	})
}

// Play implements player.Element.
func (el *Element) Play() error {
	err := el.do(func(mpdc *mpd.Client) error {
		status, err := mpdc.Status()
		if err != nil {
			return err
		}
		if status["state"] == "stop" {
			return mpdc.Play(0)
		}
		return mpdc.Pause(false)
	})
	if err != nil {
		return err
	}
	el.lock.Lock()
	el.playing = true
	el.lock.Unlock()
	return nil
}

// Pause implements player.Element.
func (el *Element) Pause() error {
	el.lock.Lock()
	el.playing = false
	el.lock.Unlock()
	return el.do(func(mpdc *mpd.Client) error {
		return mpdc.Pause(true)
	})
}

// Seek implements player.Element.
func (el *Element) Seek(t time.Duration) error {
	return el.do(func(mpdc *mpd.Client) error {
		status, err := mpdc.Status()
		if err != nil {
			return err
		}
		if _, ok := status["songid"]; !ok {
			// No track is currently being played.
			return nil
		}
		return mpdc.SeekCur(t, false)
	})
}

// SetVolume implements player.Element.
func (el *Element) SetVolume(vol float64) error {
	return el.do(func(mpdc *mpd.Client) error {
		return mpdc.SetVolume(int(player.ClampVolume(vol) * 100))
	})
}

// SetSpeed implements player.Element. MPD only plays at the normal rate.
func (el *Element) SetSpeed(speed float64) error {
	if speed != 1 {
		return fmt.Errorf("MPD does not support a playback speed of %v", speed)
	}
	return nil
}

// Close stops watching MPD.
func (el *Element) Close() error {
	close(el.stop)
	err := el.watcher.Close()
	el.done.Wait()
	return err
}

func (el *Element) eventLoop() {
	defer el.done.Done()
	for {
		select {
		case <-el.stop:
			return
		case _, ok := <-el.watcher.Event:
			if !ok {
				return
			}
			if err := el.checkStatus(); err != nil {
				log.Errorf("Could not check MPD status: %v", err)
			}
		case err, ok := <-el.watcher.Error:
			if !ok {
				return
			}
			log.Errorf("MPD watcher: %v", err)
		}
	}
}

func (el *Element) pollLoop() {
	defer el.done.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-el.stop:
			return
		case <-ticker.C:
			el.lock.Lock()
			playing := el.playing
			el.lock.Unlock()
			if !playing {
				continue
			}
			if err := el.checkStatus(); err != nil {
				log.Debugf("Could not poll MPD status: %v", err)
			}
		}
	}
}

// checkStatus reports the facts of the MPD status to the handler.
func (el *Element) checkStatus() error {
	var status mpd.Attrs
	err := el.do(func(mpdc *mpd.Client) error {
		var err error
		status, err = mpdc.Status()
		return err
	})
	if err != nil {
		return err
	}
	facts := parseStatus(status)

	el.lock.Lock()
	handler := el.handler
	loaded := el.url != ""
	var ended, newDuration bool
	if loaded && facts.duration > 0 && facts.duration != el.duration {
		el.duration = facts.duration
		newDuration = true
	}
	if loaded && el.playing && facts.state == "stop" {
		el.playing = false
		ended = true
	}
	el.lock.Unlock()

	if handler == nil || !loaded {
		return nil
	}
	if facts.err != "" {
		handler.OnError(fmt.Errorf("MPD: %s", facts.err))
		return nil
	}
	if newDuration {
		handler.OnMetadata(facts.duration)
	}
	if ended {
		handler.OnEnded()
	} else if facts.state == "play" {
		handler.OnTimeUpdate(facts.elapsed)
	}
	return nil
}

type statusFacts struct {
	state    string
	elapsed  time.Duration
	duration time.Duration
	err      string
}

func parseStatus(status mpd.Attrs) statusFacts {
	return statusFacts{
		state:    status["state"],
		elapsed:  parseSeconds(status["elapsed"]),
		duration: parseSeconds(status["duration"]),
		err:      status["error"],
	}
}

func parseSeconds(str string) time.Duration {
	if str == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(str, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(math.Round(secs*1000)) * time.Millisecond
}
