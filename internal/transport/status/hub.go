// Package status serves the bot's live state to local watchers over HTTP and
// a websocket stream.
package status

import (
	"encoding/json"
	"sync"
	"time"

	"furnacebot.ai/internal/crafter"
)

const Version = "1.0"

const (
	TypeStatus = "STATUS"
	TypeLog    = "LOG"
)

// Status is the latest known controller state.
type Status struct {
	SessionID   string    `json:"session_id"`
	Recipe      string    `json:"recipe,omitempty"`
	Phase       string    `json:"phase"`
	Progress    float64   `json:"progress"`
	Running     bool      `json:"running"`
	LoggedOut   bool      `json:"logged_out"`
	Transitions uint64    `json:"transitions"`
	Batches     uint64    `json:"batches"`
	LastLog     string    `json:"last_log,omitempty"`
	Stopped     string    `json:"stopped,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type StatusMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Status          Status `json:"status"`
}

type LogMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	At              time.Time `json:"at"`
	Text            string    `json:"text"`
}

// Hub tracks the controller state and fans updates out to watchers. It
// implements crafter.Host and crafter.Journal. Slow watchers lose messages.
type Hub struct {
	now func() time.Time

	mu       sync.Mutex
	st       Status
	logLines uint64
	watchers map[uint64]chan []byte
	nextID   uint64
	dropped  uint64
}

func NewHub(sessionID, recipe string) *Hub {
	return &Hub{
		now:      time.Now,
		st:       Status{SessionID: sessionID, Recipe: recipe, Phase: crafter.PreCraft.String()},
		watchers: map[uint64]chan []byte{},
	}
}

func (h *Hub) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.st
}

// Subscribe registers a watcher and returns its channel, primed with the
// current status, and a cancel func.
func (h *Hub) Subscribe(buffer int) (<-chan []byte, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan []byte, buffer)
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.watchers[id] = ch
	ch <- h.statusMsgLocked()
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.watchers, id)
			h.mu.Unlock()
		})
	}
}

func (h *Hub) LogMessage(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.st.LastLog = text
	h.logLines++
	b, _ := json.Marshal(LogMsg{Type: TypeLog, ProtocolVersion: Version, At: h.now().UTC(), Text: text})
	h.broadcastLocked(b)
}

func (h *Hub) UpdateProgress(fraction float64) {
	h.update(func(st *Status) {
		st.Progress = fraction
		st.Running = fraction < 1
	})
}

func (h *Hub) Logout() {
	h.update(func(st *Status) { st.LoggedOut = true })
}

func (h *Hub) Stop() {
	h.update(func(st *Status) { st.Running = false })
}

// Record follows controller events to keep the phase and counters current.
func (h *Hub) Record(ev crafter.Event) {
	h.update(func(st *Status) {
		switch ev.Kind {
		case crafter.EventStart:
			st.Running = true
			st.Phase = ev.To
		case crafter.EventTransition:
			st.Transitions++
			if ev.From == crafter.Bank.String() {
				st.Batches++
			}
			st.Phase = ev.To
		case crafter.EventFinish:
			st.Stopped = string(crafter.ReasonFinished)
		case crafter.EventFatal:
			st.Stopped = string(crafter.ReasonFatal)
		case crafter.EventInterrupt:
			st.Stopped = string(crafter.ReasonInterrupted)
		}
	})
}

func (h *Hub) update(fn func(*Status)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.st)
	h.st.UpdatedAt = h.now().UTC()
	h.broadcastLocked(h.statusMsgLocked())
}

func (h *Hub) statusMsgLocked() []byte {
	b, _ := json.Marshal(StatusMsg{Type: TypeStatus, ProtocolVersion: Version, Status: h.st})
	return b
}

func (h *Hub) broadcastLocked(b []byte) {
	for _, ch := range h.watchers {
		select {
		case ch <- b:
		default:
			h.dropped++
		}
	}
}

type hubCounters struct {
	logLines uint64
	dropped  uint64
	watchers int
}

func (h *Hub) counters() hubCounters {
	h.mu.Lock()
	defer h.mu.Unlock()
	return hubCounters{logLines: h.logLines, dropped: h.dropped, watchers: len(h.watchers)}
}
