//go:build !cgo

package speaker

import (
	"errors"
	"net/http"
	"time"

	"fanplay/src/player"
)

// Available indicates whether audio playback is supported in this build.
// Audio requires cgo for native sound libraries.
const Available = false

var errUnavailable = errors.New("the speaker output requires a build with cgo enabled")

// Element is a no-op audio output for builds without cgo.
type Element struct{}

// New fails when cgo is disabled.
func New(client *http.Client) (*Element, error) {
	return nil, errUnavailable
}

func (el *Element) Attach(h player.ElementHandler) {}
func (el *Element) Load(url string) error { return errUnavailable }
func (el *Element) Play() error { return errUnavailable }
func (el *Element) Pause() error { return nil }
func (el *Element) Seek(t time.Duration) error { return nil }
func (el *Element) SetVolume(vol float64) error { return nil }
func (el *Element) SetSpeed(speed float64) error { return nil }
func (el *Element) Close() error { return nil }
