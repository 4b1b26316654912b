package crafter

import "time"

type EventKind string

const (
	EventStart      EventKind = "START"
	EventTransition EventKind = "TRANSITION"
	EventFatal      EventKind = "FATAL"
	EventFinish     EventKind = "FINISH"
	EventInterrupt  EventKind = "INTERRUPT"
)

// Event is one journal entry. From/To hold phase names.
type Event struct {
	Session  string    `json:"session"`
	Seq      int       `json:"seq"`
	At       time.Time `json:"at"`
	Kind     EventKind `json:"kind"`
	From     string    `json:"from,omitempty"`
	To       string    `json:"to,omitempty"`
	SlotItem int       `json:"slot_item,omitempty"`
	Progress float64   `json:"progress"`
	Message  string    `json:"message,omitempty"`
}

// Journals fans an event out to several journals.
type Journals []Journal

func (js Journals) Record(ev Event) {
	for _, j := range js {
		if j != nil {
			j.Record(ev)
		}
	}
}
