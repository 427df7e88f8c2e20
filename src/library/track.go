package library

import (
	"encoding/json"
	"fmt"
	"time"
)

// AlbumRef references the album a track belongs to.
type AlbumRef struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Cover string `json:"cover_image,omitempty"`
}

// ArtistRef references the artist that owns a track.
type ArtistRef struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Verified bool   `json:"verified"`
}

// Track holds all information associated with a single piece of music.
//
// Tracks are treated as immutable values once they are handed to the player.
type Track struct {
	ID       string        `json:"id"`
	Title    string        `json:"title,omitempty"`
	Duration time.Duration `json:"duration"`
	Album    AlbumRef      `json:"album"`
	Artist   ArtistRef     `json:"artist"`
}

// wireTrack is the JSON shape used by the marketplace API: the duration is
// expressed in whole seconds.
type wireTrack struct {
	ID       string    `json:"id"`
	Title    string    `json:"title,omitempty"`
	Duration int       `json:"duration"`
	Album    AlbumRef  `json:"album"`
	Artist   ArtistRef `json:"artist"`
}

// MarshalJSON implements json.Marshaler.
func (track Track) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireTrack{
		ID:       track.ID,
		Title:    track.Title,
		Duration: int(track.Duration / time.Second),
		Album:    track.Album,
		Artist:   track.Artist,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (track *Track) UnmarshalJSON(b []byte) error {
	var w wireTrack
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.Duration < 0 {
		return fmt.Errorf("invalid track duration: %d", w.Duration)
	}
	*track = Track{
		ID:       w.ID,
		Title:    w.Title,
		Duration: time.Duration(w.Duration) * time.Second,
		Album:    w.Album,
		Artist:   w.Artist,
	}
	return nil
}

// Same reports whether both tracks refer to the same catalog entry.
func (track Track) Same(other Track) bool {
	return track.ID == other.ID
}

func (track Track) String() string {
	return fmt.Sprintf("%s - %s (%v)", track.Artist.Name, track.Title, track.Duration)
}

// IDs returns the identifiers of the specified tracks in order.
func IDs(tracks []Track) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}
