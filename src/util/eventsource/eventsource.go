// Package eventsource writes Server-Sent Events.
package eventsource

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

type EventSource struct {
	lock    sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	id      int
}

func Begin(w http.ResponseWriter, r *http.Request) (*EventSource, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("could not start event source: streaming is not supported")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &EventSource{w: w, flusher: flusher}, nil
}

func (es *EventSource) Event(event, body string) error {
	es.lock.Lock()
	defer es.lock.Unlock()
	es.id++
	var b strings.Builder
	fmt.Fprintf(&b, "id: %d\nevent: %s\n", es.id, event)
	for _, line := range strings.Split(body, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	if _, err := es.w.Write([]byte(b.String())); err != nil {
		return err
	}
	es.flusher.Flush()
	return nil
}

func (es *EventSource) EventJSON(event string, body interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		log.Errorf("Could not marshal event %q: %v", event, err)
		return nil
	}
	return es.Event(event, string(b))
}
