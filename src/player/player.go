// Package player holds the state of the one global player: the track that is
// bound to the audio output, the play queue with its history and the
// preferences that apply regardless of what is playing.
//
// Nothing in this package performs I/O. Binding the state to real audio is
// the job of the playback package.
package player

import (
	"fmt"
	"math"
	"time"

	"github.com/samber/lo"
)

// RepeatMode controls what happens when the end of a track or the queue is
// reached.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatAll
	RepeatOne
)

// ParseRepeatMode converts the name of a repeat mode back into its value.
func ParseRepeatMode(str string) (RepeatMode, error) {
	switch str {
	case "off":
		return RepeatOff, nil
	case "all":
		return RepeatAll, nil
	case "one":
		return RepeatOne, nil
	default:
		return RepeatOff, fmt.Errorf("invalid repeat mode: %q", str)
	}
}

func (mode RepeatMode) String() string {
	switch mode {
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "off"
	}
}

// Next returns the mode that follows in the off -> all -> one cycle.
func (mode RepeatMode) Next() RepeatMode {
	switch mode {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

// MarshalText implements encoding.TextMarshaler.
func (mode RepeatMode) MarshalText() ([]byte, error) {
	return []byte(mode.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (mode *RepeatMode) UnmarshalText(text []byte) error {
	m, err := ParseRepeatMode(string(text))
	if err != nil {
		return err
	}
	*mode = m
	return nil
}

// PlaybackSpeeds is the allow-list of playback rates.
var PlaybackSpeeds = []float64{0.5, 0.75, 1, 1.25, 1.5, 2}

// MaxCrossfade is the upper bound of the crossfade preference.
const MaxCrossfade = 12 * time.Second

// ValidSpeed reports whether the playback rate is in the allow-list.
func ValidSpeed(speed float64) bool {
	return lo.Contains(PlaybackSpeeds, speed)
}

// ClampVolume limits a volume to the [0, 1] range.
func ClampVolume(vol float64) float64 {
	return math.Max(0, math.Min(1, vol))
}
