package mpd

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fhs/gompd/v2/mpd"
)

func TestParseStatus(t *testing.T) {
	facts := parseStatus(mpd.Attrs{
		"state":    "play",
		"elapsed":  "12.500",
		"duration": "180.042",
	})
	if facts.state != "play" {
		t.Fatalf("Unexpected state: %q", facts.state)
	}
	if facts.elapsed != 12500*time.Millisecond {
		t.Fatalf("Unexpected elapsed: %v", facts.elapsed)
	}
	if facts.duration != 180042*time.Millisecond {
		t.Fatalf("Unexpected duration: %v", facts.duration)
	}
	if facts.err != "" {
		t.Fatalf("Unexpected error: %q", facts.err)
	}
}

func TestParseStatusMissingFields(t *testing.T) {
	facts := parseStatus(mpd.Attrs{"state": "stop", "elapsed": "bogus", "error": "decoder failed"})
	if facts.elapsed != 0 || facts.duration != 0 {
		t.Fatalf("Unexpected times: %v %v", facts.elapsed, facts.duration)
	}
	if facts.err != "decoder failed" {
		t.Fatalf("Unexpected error: %q", facts.err)
	}
}

func TestSetSpeed(t *testing.T) {
	el := &Element{}
	if err := el.SetSpeed(1); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := el.SetSpeed(1.5); err == nil {
		t.Fatalf("Unsupported speed was accepted")
	}
}

func TestDoUnreachable(t *testing.T) {
	el := &Element{network: "unix", address: filepath.Join(t.TempDir(), "mpd.sock")}
	called := false
	err := el.do(func(mpdc *mpd.Client) error {
		called = true
		return nil
	})
	if err == nil || called {
		t.Fatalf("Unexpected result: err=%v, called=%v", err, called)
	}
}
