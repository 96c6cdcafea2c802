package pubsub

import (
	"livesession/pkg/interfaces"
	"livesession/pkg/types"
)

// Fanout publishes every event to each notifier in order.
type Fanout []interfaces.Notifier

// NewFanout drops nil notifiers
func NewFanout(notifiers ...interfaces.Notifier) Fanout {
	f := make(Fanout, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			f = append(f, n)
		}
	}
	return f
}

// Publish implements interfaces.Notifier
func (f Fanout) Publish(event types.SessionEvent) {
	for _, n := range f {
		n.Publish(event)
	}
}
