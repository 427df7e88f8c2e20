package util

import (
	"reflect"
	"testing"
	"time"
)

// TestEventEmission asserts that the trigger function causes the specified
// events to be emitted by the Eventer in the order given. Other events may
// be emitted in between.
func TestEventEmission(t *testing.T, ev Eventer, trigger func(), events ...interface{}) {
	t.Helper()
	l := ev.Events().Listen()
	defer ev.Events().Unlisten(l)
	trigger()

	timeout := time.After(time.Second)
	for len(events) > 0 {
		select {
		case msg, ok := <-l:
			if !ok {
				t.Fatalf("Listener closed while waiting for %#v", events[0])
			}
			if reflect.DeepEqual(msg, events[0]) {
				events = events[1:]
			}
		case <-timeout:
			t.Fatalf("Event %#v was not emitted", events[0])
		}
	}
}
