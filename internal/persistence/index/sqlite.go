// Package index keeps a queryable SQLite history of crafting sessions and
// their controller events. The runlog journal stays the source of truth.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"furnacebot.ai/internal/catalog"
	"furnacebot.ai/internal/crafter"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEvent   atomic.Uint64
	dropSession atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqSessionEnd
)

type req struct {
	kind    reqKind
	event   crafter.Event
	summary crafter.Summary
}

// SessionRow is one crafting session as stored in the index.
type SessionRow struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at,omitempty"`
	Recipe     string    `json:"recipe"`
	Minutes    int       `json:"minutes"`
	Reason     string    `json:"reason,omitempty"`
	Iterations int       `json:"iterations"`
	Batches    int       `json:"batches"`
}

type Stats struct {
	QueueDepth       int    `json:"queue_depth"`
	QueueCapacity    int    `json:"queue_capacity"`
	DropEventTotal   uint64 `json:"drop_event_total"`
	DropSessionTotal uint64 `json:"drop_session_total"`
}

const (
	commitEvery   = 256
	commitMaxWait = 500 * time.Millisecond
)

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS recipes (
			name TEXT PRIMARY KEY,
			item_id INTEGER NOT NULL,
			materials_json TEXT NOT NULL,
			digest TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			recipe TEXT NOT NULL,
			minutes INTEGER NOT NULL,
			reason TEXT,
			iterations INTEGER NOT NULL DEFAULT 0,
			batches INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);`,
		`CREATE TABLE IF NOT EXISTS events (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			at TEXT NOT NULL,
			kind TEXT NOT NULL,
			from_phase TEXT,
			to_phase TEXT,
			slot_item INTEGER,
			progress REAL NOT NULL,
			message TEXT,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind, session_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
		DropEventTotal:   s.dropEvent.Load(),
		DropSessionTotal: s.dropSession.Load(),
	}
}

// UpsertRecipes stores the catalog in use so sessions can be matched to it.
func (s *SQLiteIndex) UpsertRecipes(ctx context.Context, cat *catalog.Catalog) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO recipes(name,item_id,materials_json,digest,updated_at) VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range cat.Recipes() {
		mats, _ := json.Marshal(r.Materials())
		if _, err := stmt.ExecContext(ctx, r.Item.Name, r.Item.ID, string(mats), cat.Digest, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// BeginSession records a session row synchronously so later events have a parent.
func (s *SQLiteIndex) BeginSession(ctx context.Context, row SessionRow) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions(id,started_at,recipe,minutes) VALUES(?,?,?,?)`,
		row.ID, row.StartedAt.UTC().Format(time.RFC3339Nano), row.Recipe, row.Minutes)
	return err
}

// Record implements crafter.Journal. Events are dropped if the writer falls behind.
func (s *SQLiteIndex) Record(ev crafter.Event) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqEvent, event: ev}:
	default:
		s.dropEvent.Add(1)
	}
}

// EndSession queues the final summary of a session.
func (s *SQLiteIndex) EndSession(sum crafter.Summary) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSessionEnd, summary: sum}:
	default:
		s.dropSession.Add(1)
	}
}

// RecentSessions returns up to limit sessions, newest first.
func (s *SQLiteIndex) RecentSessions(ctx context.Context, limit int) ([]SessionRow, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, COALESCE(ended_at,''), recipe, minutes, COALESCE(reason,''), iterations, batches
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		var started, ended string
		if err := rows.Scan(&r.ID, &started, &ended, &r.Recipe, &r.Minutes, &r.Reason, &r.Iterations, &r.Batches); err != nil {
			return out, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if ended != "" {
			r.EndedAt, _ = time.Parse(time.RFC3339Nano, ended)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EventCounts tallies stored events per kind for one session.
func (s *SQLiteIndex) EventCounts(ctx context.Context, sessionID string) (map[crafter.EventKind]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM events WHERE session_id = ? GROUP BY kind`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[crafter.EventKind]int{}
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return out, err
		}
		out[crafter.EventKind(k)] = n
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(session_id,seq,at,kind,from_phase,to_phase,slot_item,progress,message) VALUES(?,?,?,?,?,?,?,?,?)`)
	updateSession, _ := s.db.Prepare(`UPDATE sessions SET ended_at=?, reason=?, iterations=?, batches=? WHERE id=?`)
	defer func() {
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
		if updateSession != nil {
			_ = updateSession.Close()
		}
	}()

	var (
		tx      *sql.Tx
		opCount int
		// requests applied to the open tx, counted as dropped if it fails
		pendingEvents, pendingSessions uint64
	)
	lose := func(kind reqKind) {
		switch kind {
		case reqEvent:
			s.dropEvent.Add(1)
		case reqSessionEnd:
			s.dropSession.Add(1)
		}
	}
	reset := func() {
		tx = nil
		opCount = 0
		pendingEvents, pendingSessions = 0, 0
	}
	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		reset()
		tx = txx
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.dropEvent.Add(pendingEvents)
			s.dropSession.Add(pendingSessions)
		}
		reset()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.dropEvent.Add(pendingEvents)
		s.dropSession.Add(pendingSessions)
		reset()
	}

	// Readers share the single connection, so an open tx is committed on a timer too.
	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		var ok bool
		select {
		case r, ok = <-s.ch:
			if !ok {
				commit()
				return
			}
		case <-ticker.C:
			commit()
			continue
		}

		begin()
		if tx == nil {
			lose(r.kind)
			continue
		}
		switch r.kind {
		case reqEvent:
			ev := r.event
			if insertEvent == nil {
				lose(r.kind)
				continue
			}
			if _, err := tx.Stmt(insertEvent).Exec(
				ev.Session,
				ev.Seq,
				ev.At.UTC().Format(time.RFC3339Nano),
				string(ev.Kind),
				ev.From,
				ev.To,
				ev.SlotItem,
				ev.Progress,
				ev.Message,
			); err != nil {
				rollback()
				lose(r.kind)
				continue
			}
			opCount++
			pendingEvents++

		case reqSessionEnd:
			sum := r.summary
			if updateSession == nil {
				lose(r.kind)
				continue
			}
			if _, err := tx.Stmt(updateSession).Exec(
				sum.EndedAt.UTC().Format(time.RFC3339Nano),
				string(sum.Reason),
				sum.Iterations,
				sum.Batches,
				sum.SessionID,
			); err != nil {
				rollback()
				lose(r.kind)
				continue
			}
			opCount++
			pendingSessions++
		}
		if opCount >= commitEvery {
			commit()
		}
	}
}
