package events

import (
	"github.com/kelindar/event"
)

// Bus routes lifecycle events to typed subscribers. A nil *Bus drops
// everything, so components can run without one.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates an event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish delivers ev to the subscribers of its concrete type. Delivery is
// asynchronous; Publish never waits for handlers.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case StateChangedEvent:
		event.Publish(b.dispatcher, e)
	case OutputReceivedEvent:
		event.Publish(b.dispatcher, e)
	case SessionReadyEvent:
		event.Publish(b.dispatcher, e)
	case InstancesLoadedEvent:
		event.Publish(b.dispatcher, e)
	case EngineStateChangedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler, a func taking one of the event types, e.g.
//
//	unsub := bus.Subscribe(func(e events.SessionReadyEvent) { ... })
//
// Handlers of any other shape are ignored. The returned func unsubscribes.
func (b *Bus) Subscribe(handler any) func() {
	if b == nil {
		return func() {}
	}
	switch h := handler.(type) {
	case func(StateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(OutputReceivedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionReadyEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(InstancesLoadedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(EngineStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
