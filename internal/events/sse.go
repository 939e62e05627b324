package events

import (
	"fmt"
	"strings"

	"github.com/kelindar/event"

	"github.com/smazurov/audionode/internal/metrics"
)

// SubscribeToChannel forwards events of type T into ch for SSE handlers
// that select on a channel. The send never blocks the publisher: an event
// that does not fit is dropped and counted.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			metrics.RecordDroppedEvent(eventName(e))
		}
	})
}

// eventName is the Go type name without the package, e.g.
// "StreamReinitEvent".
func eventName(e Event) string {
	name := fmt.Sprintf("%T", e)
	return name[strings.LastIndexByte(name, '.')+1:]
}
