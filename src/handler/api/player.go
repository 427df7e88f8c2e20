package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fanplay/src/jukebox"
	"fanplay/src/library"
	"fanplay/src/playback"
	"fanplay/src/player"
)

// historyLimit is the number of recently played tracks shown by default.
const historyLimit = 10

func jsonTracks(tracks []library.Track) []library.Track {
	if tracks == nil {
		return []library.Track{}
	}
	return tracks
}

func jsonState(st player.State) interface{} {
	return map[string]interface{}{
		"current":     st.CurrentTrack,
		"index":       st.CurrentIndex,
		"queue":       jsonTracks(st.Queue),
		"upcoming":    jsonTracks(st.Upcoming()),
		"history":     jsonTracks(st.RecentHistory(historyLimit)),
		"playing":     st.IsPlaying,
		"time":        seconds(st.CurrentTime),
		"duration":    seconds(st.Duration),
		"volume":      st.Volume,
		"speed":       st.Speed,
		"crossfade":   seconds(st.Crossfade),
		"shuffle":     st.Shuffle,
		"repeat":      st.Repeat,
		"access":      st.Access,
		"playthrough": st.PlayThrough,
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}

// API contains the state that is accessible over the REST API.
type API struct {
	jukebox *jukebox.Jukebox
}

func (api *API) store() *player.Store {
	return api.jukebox.Store()
}

func (api *API) writeState(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(jsonState(api.store().State()))
}

func (api *API) playerState(w http.ResponseWriter, r *http.Request) {
	api.writeState(w)
}

func (api *API) playerPlay(w http.ResponseWriter, r *http.Request) {
	var data struct {
		Track   *library.Track  `json:"track"`
		Context []library.Track `json:"context"`
	}
	if err := decodeBody(r, &data); err != nil {
		WriteError(w, r, err)
		return
	}
	if data.Track == nil || data.Track.ID == "" {
		WriteError(w, r, fmt.Errorf("no track specified"))
		return
	}
	api.store().PlayTrack(*data.Track, data.Context)
	api.writeState(w)
}

func (api *API) playerSetCurrent(w http.ResponseWriter, r *http.Request) {
	var data struct {
		Index int `json:"index"`
	}
	if err := decodeBody(r, &data); err != nil {
		WriteError(w, r, err)
		return
	}
	api.store().PlayIndex(data.Index)
	api.writeState(w)
}

func (api *API) queueContents(w http.ResponseWriter, r *http.Request) {
	st := api.store().State()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"current":  st.CurrentIndex,
		"tracks":   jsonTracks(st.Queue),
		"upcoming": jsonTracks(st.Upcoming()),
	})
}

func (api *API) queueAdd(w http.ResponseWriter, r *http.Request) {
	var data struct {
		Track *library.Track `json:"track"`
	}
	if err := decodeBody(r, &data); err != nil {
		WriteError(w, r, err)
		return
	}
	if data.Track == nil || data.Track.ID == "" {
		WriteError(w, r, fmt.Errorf("no track specified"))
		return
	}
	api.store().AddToQueue(*data.Track)
	api.writeState(w)
}

func (api *API) queueMove(w http.ResponseWriter, r *http.Request) {
	var data struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if err := decodeBody(r, &data); err != nil {
		WriteError(w, r, err)
		return
	}
	api.store().ReorderUpcoming(data.From, data.To)
	api.writeState(w)
}

func (api *API) queueRemove(w http.ResponseWriter, r *http.Request) {
	api.store().RemoveFromQueue(chi.URLParam(r, "trackID"))
	api.writeState(w)
}

func (api *API) queueClear(w http.ResponseWriter, r *http.Request) {
	api.store().ClearQueue()
	api.writeState(w)
}

func (api *API) historyContents(w http.ResponseWriter, r *http.Request) {
	limit := historyLimit
	if str := r.FormValue("limit"); str != "" {
		n, err := strconv.Atoi(str)
		if err != nil || n < 0 {
			WriteError(w, r, fmt.Errorf("invalid history limit: %q", str))
			return
		}
		limit = n
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tracks": jsonTracks(api.store().State().RecentHistory(limit)),
	})
}

func (api *API) historyPlay(w http.ResponseWriter, r *http.Request) {
	var data struct {
		Index int `json:"index"`
	}
	if err := decodeBody(r, &data); err != nil {
		WriteError(w, r, err)
		return
	}
	api.store().PlayFromHistory(data.Index)
	api.writeState(w)
}

func (api *API) playerStop(w http.ResponseWriter, r *http.Request) {
	api.store().Stop()
	api.writeState(w)
}

func (api *API) playerNext(w http.ResponseWriter, r *http.Request) {
	api.store().PlayNext()
	api.writeState(w)
}

func (api *API) playerPrevious(w http.ResponseWriter, r *http.Request) {
	api.store().PlayPrevious()
	api.writeState(w)
}

func (api *API) playerToggle(w http.ResponseWriter, r *http.Request) {
	api.jukebox.Controller().TogglePlay()
	api.writeState(w)
}

func (api *API) playerShuffle(w http.ResponseWriter, r *http.Request) {
	api.store().ToggleShuffle()
	api.writeState(w)
}

func (api *API) playerRepeat(w http.ResponseWriter, r *http.Request) {
	var data struct {
		Mode *player.RepeatMode `json:"mode"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &data); err != nil {
			WriteError(w, r, err)
			return
		}
	}
	if data.Mode != nil {
		api.store().SetRepeat(*data.Mode)
	} else {
		api.store().ToggleRepeat()
	}
	api.writeState(w)
}

func (api *API) playerSeek(w http.ResponseWriter, r *http.Request) {
	var data struct {
		Time float64 `json:"time"`
	}
	if err := decodeBody(r, &data); err != nil {
		WriteError(w, r, err)
		return
	}
	api.jukebox.Controller().Seek(time.Duration(data.Time * float64(time.Second)))
	api.writeState(w)
}

func (api *API) playerSettings(w http.ResponseWriter, r *http.Request) {
	var data struct {
		Volume    *float64 `json:"volume"`
		Speed     *float64 `json:"speed"`
		Crossfade *float64 `json:"crossfade"`
	}
	if err := decodeBody(r, &data); err != nil {
		WriteError(w, r, err)
		return
	}
	if data.Speed != nil && !player.ValidSpeed(*data.Speed) {
		WriteError(w, r, fmt.Errorf("unsupported playback speed %v, expected one of %v", *data.Speed, player.PlaybackSpeeds))
		return
	}
	store := api.store()
	if data.Volume != nil {
		store.SetVolume(*data.Volume)
	}
	if data.Speed != nil {
		store.SetPlaybackSpeed(*data.Speed)
	}
	if data.Crossfade != nil {
		store.SetCrossfade(time.Duration(*data.Crossfade * float64(time.Second)))
	}
	api.writeState(w)
}

func (api *API) playerKey(w http.ResponseWriter, r *http.Request) {
	var ev playback.KeyEvent
	if err := decodeBody(r, &ev); err != nil {
		WriteError(w, r, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"handled": api.jukebox.Controller().HandleKey(ev),
	})
}

func (api *API) likeGet(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "trackID")
	liked, err := api.jukebox.IsLiked(r.Context(), trackID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"track_id": trackID,
		"liked":    liked,
	})
}

func (api *API) likeSet(liked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trackID := chi.URLParam(r, "trackID")
		if err := api.jukebox.SetLiked(r.Context(), trackID, liked); err != nil {
			WriteError(w, r, err)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"track_id": trackID,
			"liked":    liked,
		})
	}
}
