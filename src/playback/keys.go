package playback

import (
	"math"
	"time"
)

const (
	// SeekStep is how far the arrow keys move the position.
	SeekStep = 10 * time.Second
	// VolumeStep is how much the arrow keys change the volume.
	VolumeStep = 0.1
)

// Names of the keys the controller responds to.
const (
	KeySpace = "space"
	KeyLeft  = "left"
	KeyRight = "right"
	KeyUp    = "up"
	KeyDown  = "down"
	KeyNext  = "n"
	KeyPrev  = "p"
	KeyShuf  = "s"
	KeyRep   = "r"
)

// A KeyEvent is a key press on any surface.
type KeyEvent struct {
	Key string `json:"key"`
	// InTextInput is set when the key was pressed while typing into a text
	// field. Such presses never control playback.
	InTextInput bool `json:"text_input"`
}

var keyBindings = map[string]func(ctrl *Controller){
	KeySpace: func(ctrl *Controller) { ctrl.TogglePlay() },
	KeyLeft:  func(ctrl *Controller) { ctrl.SeekBy(-SeekStep) },
	KeyRight: func(ctrl *Controller) { ctrl.SeekBy(SeekStep) },
	KeyUp:    func(ctrl *Controller) { ctrl.stepVolume(VolumeStep) },
	KeyDown:  func(ctrl *Controller) { ctrl.stepVolume(-VolumeStep) },
	KeyNext:  func(ctrl *Controller) { ctrl.store.PlayNext() },
	KeyPrev:  func(ctrl *Controller) { ctrl.store.PlayPrevious() },
	KeyShuf:  func(ctrl *Controller) { ctrl.store.ToggleShuffle() },
	KeyRep:   func(ctrl *Controller) { ctrl.store.ToggleRepeat() },
}

func (ctrl *Controller) stepVolume(delta float64) {
	vol := ctrl.store.State().Volume + delta
	ctrl.store.SetVolume(math.Round(vol*100) / 100)
}

// HandleKey applies the shortcut bound to the key. It reports whether the key
// was handled.
func (ctrl *Controller) HandleKey(ev KeyEvent) bool {
	if ev.InTextInput {
		return false
	}
	fn, ok := keyBindings[ev.Key]
	if !ok {
		return false
	}
	fn(ctrl)
	return true
}
