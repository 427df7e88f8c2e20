package library

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTrackJSONSeconds(t *testing.T) {
	track := Track{
		ID:       "t1",
		Title:    "Intro",
		Duration: 180 * time.Second,
		Album:    AlbumRef{ID: "a1", Title: "First"},
		Artist:   ArtistRef{ID: "r1", Name: "Someone", Verified: true},
	}
	b, err := json.Marshal(track)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["duration"] != float64(180) {
		t.Fatalf("Unexpected wire duration: %v", raw["duration"])
	}

	var decoded Track
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded != track {
		t.Fatalf("Unexpected decoded track: %#v", decoded)
	}
}

func TestTrackJSONRejectsNegativeDuration(t *testing.T) {
	var track Track
	if err := json.Unmarshal([]byte(`{"id":"x","duration":-1}`), &track); err == nil {
		t.Fatalf("A negative duration should be rejected")
	}
}

func TestIDs(t *testing.T) {
	ids := IDs([]Track{{ID: "a"}, {ID: "b"}, {ID: "a"}})
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "a" {
		t.Fatalf("Unexpected ids: %v", ids)
	}
}
