package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"fanplay/src/jukebox"
	"fanplay/src/playback"
	"fanplay/src/player"
	"fanplay/src/util/eventsource"
)

// InitRouter attaches all API routes to the specified router.
func InitRouter(r chi.Router, jb *jukebox.Jukebox) {
	api := API{jukebox: jb}
	r.Route("/player", func(r chi.Router) {
		r.Use(boundary(jb.Reset))
		r.Get("/events", api.playerEvents)
		r.Group(func(r chi.Router) {
			r.Use(jsonCtx)
			r.Get("/", api.playerState)
			r.Post("/play", api.playerPlay)
			r.Post("/current", api.playerSetCurrent)
			r.Route("/queue", func(r chi.Router) {
				r.Get("/", api.queueContents)
				r.Post("/", api.queueAdd)
				r.Patch("/", api.queueMove)
				r.Delete("/{trackID}", api.queueRemove)
				r.Post("/clear", api.queueClear)
			})
			r.Get("/history", api.historyContents)
			r.Post("/history", api.historyPlay)
			r.Post("/stop", api.playerStop)
			r.Post("/next", api.playerNext)
			r.Post("/previous", api.playerPrevious)
			r.Post("/toggle", api.playerToggle)
			r.Post("/shuffle", api.playerShuffle)
			r.Post("/repeat", api.playerRepeat)
			r.Post("/seek", api.playerSeek)
			r.Put("/settings", api.playerSettings)
			r.Post("/keys", api.playerKey)
		})
	})

	r.Route("/tracks/{trackID}/like", func(r chi.Router) {
		r.Use(jsonCtx)
		r.Get("/", api.likeGet)
		r.Post("/", api.likeSet(true))
		r.Delete("/", api.likeSet(false))
	})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, player.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, player.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, player.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, jukebox.ErrLikesUnavailable):
		return http.StatusNotImplemented
	default:
		return http.StatusBadRequest
	}
}

// WriteError writes an error to the client.
//
// An attempt is made to tune the response format to the requestor.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, errorStatus(err), err)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	log.Errorf("Error serving %s: %v", r.RemoteAddr, err)
	w.WriteHeader(status)

	if r.Header.Get("X-Requested-With") == "" {
		w.Write([]byte(err.Error()))
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   err.Error(),
		"message": player.UserMessage(err),
	})
}

// boundary recovers from panics in the player routes. The player is reset
// so the next request starts from a clean state.
func boundary(reset func() error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				} else if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.WithField("stack", string(debug.Stack())).Errorf("Panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				if err := reset(); err != nil {
					log.Error(err)
				}
				writeError(w, r, http.StatusInternalServerError, fmt.Errorf("player failure: %v", rec))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func seconds(d time.Duration) float64 {
	return d.Seconds()
}

func sendEvent(es *eventsource.EventSource, event interface{}) error {
	var eventStr string
	var eventObj interface{}
	switch t := event.(type) {
	case player.TrackEvent:
		eventStr, eventObj = "track", map[string]interface{}{
			"index":    t.Index,
			"track_id": t.TrackID,
		}
	case player.QueueEvent:
		eventStr, eventObj = "queue", map[string]interface{}{
			"length": t.Length,
			"index":  t.Index,
		}
	case player.PlayStateEvent:
		eventStr, eventObj = "playstate", map[string]interface{}{
			"playing": t.Playing,
		}
	case player.TimeEvent:
		eventStr, eventObj = "time", map[string]interface{}{
			"time": seconds(t.Time),
		}
	case player.DurationEvent:
		eventStr, eventObj = "duration", map[string]interface{}{
			"duration": seconds(t.Duration),
		}
	case player.ModeEvent:
		eventStr, eventObj = "mode", map[string]interface{}{
			"shuffle": t.Shuffle,
			"repeat":  t.Repeat,
		}
	case player.PreferencesEvent:
		eventStr, eventObj = "preferences", map[string]interface{}{
			"volume":    t.Volume,
			"speed":     t.Speed,
			"crossfade": seconds(t.Crossfade),
		}
	case player.AccessEvent:
		eventStr, eventObj = "access", map[string]interface{}{
			"tier": t.Tier,
		}
	case playback.Notice:
		eventStr, eventObj = "notice", t
	default:
		log.Debugf("Unmapped event %#v", event)
		return nil
	}
	return es.EventJSON(eventStr, eventObj)
}

func (api *API) playerEvents(w http.ResponseWriter, r *http.Request) {
	storeEvents := api.jukebox.Store().Events()
	ctrlEvents := api.jukebox.Controller().Events()
	fromStore := storeEvents.Listen()
	defer storeEvents.Unlisten(fromStore)
	fromCtrl := ctrlEvents.Listen()
	defer ctrlEvents.Unlisten(fromCtrl)

	es, err := eventsource.Begin(w, r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if err := es.EventJSON("state", jsonState(api.jukebox.Store().State())); err != nil {
		return
	}
	for {
		var event interface{}
		select {
		case <-r.Context().Done():
			return
		case event = <-fromStore:
		case event = <-fromCtrl:
		}
		if err := sendEvent(es, event); err != nil {
			log.Debugf("Closing event stream: %v", err)
			return
		}
	}
}

func jsonCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
