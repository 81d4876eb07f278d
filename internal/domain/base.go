package domain

import (
	"time"
)

type Event interface {
	Type() string
	PublishedAt() time.Time
}

// Aggregate accumulates domain events until storage collects them
// inside a unit of work.
type Aggregate struct {
	events []Event
}

func (a *Aggregate) PushEvent(e Event) {
	a.events = append(a.events, e)
}

func (a *Aggregate) PopEvents() []Event {
	events := a.events
	a.events = nil
	return events
}
