package util

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// listenerBuffer is the number of events that may be pending for a single
// listener before new events for that listener are dropped.
const listenerBuffer = 64

// An Eventer is a type that publishes events through an Emitter.
type Eventer interface {
	Events() *Emitter
}

// An Emitter fans events out to any number of listeners.
//
// Events are delivered to each listener in the order they were emitted. A
// listener that does not keep up loses events rather than blocking the
// emitter.
type Emitter struct {
	// The release attribute determines how much time the event should be
	// buffered to prevent the emission of duplicate events.
	// A zero value will disable buffering. Events must be comparable when
	// buffering is enabled.
	Release time.Duration

	listeners map[<-chan interface{}]chan interface{}
	lock      sync.RWMutex

	releaseLock sync.Mutex
	release     map[interface{}]struct{}
}

func (emitter *Emitter) init() {
	emitter.lock.RLock()
	shouldInit := emitter.listeners == nil
	emitter.lock.RUnlock()
	if shouldInit {
		emitter.lock.Lock()
		if emitter.listeners == nil {
			emitter.listeners = map[<-chan interface{}]chan interface{}{}
		}
		emitter.lock.Unlock()
	}
}

func (emitter *Emitter) broadcast(event interface{}) {
	emitter.lock.RLock()
	defer emitter.lock.RUnlock()
	for _, listener := range emitter.listeners {
		select {
		case listener <- event:
		default:
			log.Debugf("Dropped event %T for a slow listener", event)
		}
	}
}

// Emit publishes an event to all current listeners.
func (emitter *Emitter) Emit(event interface{}) {
	emitter.init()

	if emitter.Release == 0 {
		emitter.broadcast(event)
		return
	}

	// Check wether the event is already scheduled.
	emitter.releaseLock.Lock()
	if emitter.release == nil {
		emitter.release = map[interface{}]struct{}{}
	}
	if _, ok := emitter.release[event]; ok {
		emitter.releaseLock.Unlock()
		return
	}
	emitter.release[event] = struct{}{}
	emitter.releaseLock.Unlock()

	time.AfterFunc(emitter.Release, func() {
		emitter.broadcast(event)
		emitter.releaseLock.Lock()
		delete(emitter.release, event)
		emitter.releaseLock.Unlock()
	})
}

// Listen registers a new listener. The caller must call Unlisten once it is
// no longer interested in events.
func (emitter *Emitter) Listen() <-chan interface{} {
	emitter.init()

	emitter.lock.Lock()
	defer emitter.lock.Unlock()

	ch := make(chan interface{}, listenerBuffer)
	emitter.listeners[ch] = ch
	return ch
}

// Unlisten removes a listener and closes its channel.
func (emitter *Emitter) Unlisten(ch <-chan interface{}) {
	emitter.init()

	emitter.lock.Lock()
	defer emitter.lock.Unlock()

	if listener, ok := emitter.listeners[ch]; ok {
		close(listener)
		delete(emitter.listeners, ch)
	}
}
