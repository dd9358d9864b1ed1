package outbox

import "context"

// Event is any domain event with a name identifier.
type Event interface {
	EventName() string
}

// AggregateEvent is implemented by events that concern a single aggregate;
// the id is attached to delivery logs.
type AggregateEvent interface {
	Event
	AggregateID() string
}

// Handler processes a published event.
type Handler func(ctx context.Context, e Event) error

// Publisher hands events to interested subscribers after the state change
// that produced them has been persisted.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}

// Bus is a Publisher that also accepts subscriptions.
type Bus interface {
	Publisher
	Subscriber
}
