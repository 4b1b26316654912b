package runlog

import (
	"fmt"

	"furnacebot.ai/internal/crafter"
)

// Report summarizes a verified journal.
type Report struct {
	Session     string
	Events      int
	Transitions int
	Batches     int
	FinalPhase  string
	Ended       crafter.EventKind
}

// Verify replays a session's events and checks that they describe a run the
// controller could have produced: one START first, contiguous sequence
// numbers, legal phase transitions chained from the previous phase, and
// nothing after the terminal event.
func Verify(events []crafter.Event) (Report, error) {
	var rep Report
	if len(events) == 0 {
		return rep, fmt.Errorf("empty journal")
	}
	if events[0].Kind != crafter.EventStart {
		return rep, fmt.Errorf("seq %d: first event is %s, want %s", events[0].Seq, events[0].Kind, crafter.EventStart)
	}
	rep.Session = events[0].Session
	phase, ok := crafter.ParsePhase(events[0].To)
	if !ok {
		return rep, fmt.Errorf("seq %d: unknown start phase %q", events[0].Seq, events[0].To)
	}

	for i, ev := range events {
		rep.Events++
		if ev.Session != rep.Session {
			return rep, fmt.Errorf("seq %d: session %q in journal of %q", ev.Seq, ev.Session, rep.Session)
		}
		if i > 0 && ev.Seq != events[i-1].Seq+1 {
			return rep, fmt.Errorf("seq gap: %d after %d", ev.Seq, events[i-1].Seq)
		}
		if rep.Ended != "" {
			return rep, fmt.Errorf("seq %d: %s after terminal %s", ev.Seq, ev.Kind, rep.Ended)
		}
		switch ev.Kind {
		case crafter.EventStart:
			if i != 0 {
				return rep, fmt.Errorf("seq %d: repeated %s", ev.Seq, ev.Kind)
			}
		case crafter.EventTransition:
			from, ok1 := crafter.ParsePhase(ev.From)
			to, ok2 := crafter.ParsePhase(ev.To)
			if !ok1 || !ok2 {
				return rep, fmt.Errorf("seq %d: unknown phase in %q -> %q", ev.Seq, ev.From, ev.To)
			}
			if from != phase {
				return rep, fmt.Errorf("seq %d: transition from %s but controller was in %s", ev.Seq, from, phase)
			}
			if !crafter.LegalTransition(from, to) {
				return rep, fmt.Errorf("seq %d: illegal transition %s -> %s", ev.Seq, from, to)
			}
			if from == crafter.Bank {
				rep.Batches++
			}
			rep.Transitions++
			phase = to
		case crafter.EventFinish, crafter.EventFatal, crafter.EventInterrupt:
			rep.Ended = ev.Kind
		default:
			return rep, fmt.Errorf("seq %d: unknown event kind %q", ev.Seq, ev.Kind)
		}
	}
	rep.FinalPhase = phase.String()
	return rep, nil
}
