package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"furnacebot.ai/internal/crafter"
	"furnacebot.ai/internal/persistence/index"
)

// SessionLister is the read side of the session index.
type SessionLister interface {
	RecentSessions(ctx context.Context, limit int) ([]index.SessionRow, error)
	EventCounts(ctx context.Context, sessionID string) (map[crafter.EventKind]int, error)
}

// SessionEvents is the /v1/sessions/events response.
type SessionEvents struct {
	SessionID string                    `json:"session_id"`
	Counts    map[crafter.EventKind]int `json:"counts"`
}

type Server struct {
	hub      *Hub
	sessions SessionLister
	// indexStats is optional and feeds the queue metrics.
	indexStats func() index.Stats
	log        *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, sessions SessionLister, indexStats func() index.Stats, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		hub:        hub,
		sessions:   sessions,
		indexStats: indexStats,
		log:        logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok\n"))
	}))
	mux.HandleFunc("/metrics", s.loopbackOnly(s.handleMetrics))
	mux.HandleFunc("/v1/status", s.loopbackOnly(s.handleStatus))
	mux.HandleFunc("/v1/sessions", s.loopbackOnly(s.handleSessions))
	mux.HandleFunc("/v1/sessions/events", s.loopbackOnly(s.handleSessionEvents))
	mux.HandleFunc("/v1/ws", s.loopbackOnly(s.handleWS))
	return mux
}

func (s *Server) loopbackOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		next(rw, r)
	}
}

func (s *Server) handleStatus(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(rw, s.hub.Status())
}

func (s *Server) handleSessions(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.sessions == nil {
		http.Error(rw, "session index disabled", http.StatusServiceUnavailable)
		return
	}
	limit := 20
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(rw, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	rows, err := s.sessions.RecentSessions(ctx, limit)
	if err != nil {
		s.log.Printf("sessions query: %v", err)
		http.Error(rw, "query failed", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []index.SessionRow{}
	}
	writeJSON(rw, rows)
}

func (s *Server) handleSessionEvents(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.sessions == nil {
		http.Error(rw, "session index disabled", http.StatusServiceUnavailable)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("session"))
	if id == "" {
		id = s.hub.Status().SessionID
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	counts, err := s.sessions.EventCounts(ctx, id)
	if err != nil {
		s.log.Printf("event counts query: %v", err)
		http.Error(rw, "query failed", http.StatusInternalServerError)
		return
	}
	if counts == nil {
		counts = map[crafter.EventKind]int{}
	}
	writeJSON(rw, SessionEvents{SessionID: id, Counts: counts})
}

func (s *Server) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	st := s.hub.Status()
	c := s.hub.counters()
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(rw, "# HELP furnacebot_progress Fraction of the running time elapsed (0..1).\n")
	fmt.Fprintf(rw, "# TYPE furnacebot_progress gauge\n")
	fmt.Fprintf(rw, "furnacebot_progress %g\n", st.Progress)

	fmt.Fprintf(rw, "# HELP furnacebot_running Whether the crafting loop is running.\n")
	fmt.Fprintf(rw, "# TYPE furnacebot_running gauge\n")
	fmt.Fprintf(rw, "furnacebot_running %d\n", boolInt(st.Running))

	fmt.Fprintf(rw, "# HELP furnacebot_phase Current controller phase.\n")
	fmt.Fprintf(rw, "# TYPE furnacebot_phase gauge\n")
	fmt.Fprintf(rw, "furnacebot_phase{phase=%q} 1\n", st.Phase)

	fmt.Fprintf(rw, "# HELP furnacebot_transitions_total Phase transitions.\n")
	fmt.Fprintf(rw, "# TYPE furnacebot_transitions_total counter\n")
	fmt.Fprintf(rw, "furnacebot_transitions_total %d\n", st.Transitions)

	fmt.Fprintf(rw, "# HELP furnacebot_batches_total Completed bank trips.\n")
	fmt.Fprintf(rw, "# TYPE furnacebot_batches_total counter\n")
	fmt.Fprintf(rw, "furnacebot_batches_total %d\n", st.Batches)

	fmt.Fprintf(rw, "# HELP furnacebot_log_lines_total Log lines emitted by the controller.\n")
	fmt.Fprintf(rw, "# TYPE furnacebot_log_lines_total counter\n")
	fmt.Fprintf(rw, "furnacebot_log_lines_total %d\n", c.logLines)

	fmt.Fprintf(rw, "# HELP furnacebot_watchers Connected status watchers.\n")
	fmt.Fprintf(rw, "# TYPE furnacebot_watchers gauge\n")
	fmt.Fprintf(rw, "furnacebot_watchers %d\n", c.watchers)

	fmt.Fprintf(rw, "# HELP furnacebot_watcher_dropped_total Messages dropped for slow watchers.\n")
	fmt.Fprintf(rw, "# TYPE furnacebot_watcher_dropped_total counter\n")
	fmt.Fprintf(rw, "furnacebot_watcher_dropped_total %d\n", c.dropped)

	if s.indexStats != nil {
		is := s.indexStats()
		fmt.Fprintf(rw, "# HELP furnacebot_index_queue_depth Session index writer queue depth.\n")
		fmt.Fprintf(rw, "# TYPE furnacebot_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "furnacebot_index_queue_depth %d\n", is.QueueDepth)

		fmt.Fprintf(rw, "# HELP furnacebot_index_dropped_total Index writes dropped because the queue was full.\n")
		fmt.Fprintf(rw, "# TYPE furnacebot_index_dropped_total counter\n")
		fmt.Fprintf(rw, "furnacebot_index_dropped_total %d\n", is.DropEventTotal+is.DropSessionTotal)
	}
}

func (s *Server) handleWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	out, cancelSub := s.hub.Subscribe(64)
	defer cancelSub()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: watchers only listen; any read error ends the stream.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case b := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
