package gamestate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestInventorySkipsEmptySlots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inv" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[
		  {"id":2357,"quantity":1},
		  {"id":-1,"quantity":0},
		  {"id":1637,"quantity":1},
		  {"id":6512,"quantity":0}
		]`))
	}))
	defer srv.Close()

	inv, err := New(Config{BaseURL: srv.URL}).Inventory(context.Background())
	if err != nil {
		t.Fatalf("Inventory: %v", err)
	}
	if len(inv) != 2 {
		t.Fatalf("expected 2 occupied slots got %+v", inv)
	}
	s, ok := inv.Slot(2)
	if !ok || s.ID != 1637 {
		t.Fatalf("slot 2=%+v ok=%v", s, ok)
	}
	if _, ok := inv.Slot(1); ok {
		t.Fatalf("expected empty slot 1 to be absent")
	}
	if _, ok := inv.Slot(3); ok {
		t.Fatalf("expected placeholder slot 3 to be absent")
	}
}

func TestInventoryHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not logged in", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := New(Config{BaseURL: srv.URL}).Inventory(context.Background()); err == nil {
		t.Fatalf("expected error for 503")
	}
}

func TestIsPlayerIdle(t *testing.T) {
	body := atomic.Value{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body.Load().(string)))
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL + "/"})

	cases := []struct {
		doc  string
		idle bool
	}{
		{`{"animation":-1,"animation pose":808}`, true},
		{`{"animation":-1,"animation pose":813}`, true},
		{`{"animation":899,"animation pose":808}`, false},
		{`{"animation":-1,"animation pose":819}`, false},
	}
	for _, tc := range cases {
		body.Store(tc.doc)
		got, err := c.IsPlayerIdle(context.Background())
		if err != nil {
			t.Fatalf("IsPlayerIdle(%s): %v", tc.doc, err)
		}
		if got != tc.idle {
			t.Fatalf("IsPlayerIdle(%s)=%v want %v", tc.doc, got, tc.idle)
		}
	}
}

func TestIsPlayerIdleWindowSeesAnimation(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			_, _ = w.Write([]byte(`{"animation":-1,"animation pose":808}`))
			return
		}
		_, _ = w.Write([]byte(`{"animation":899,"animation pose":808}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, IdleWindow: time.Second, IdleStep: 10 * time.Millisecond})
	idle, err := c.IsPlayerIdle(context.Background())
	if err != nil {
		t.Fatalf("IsPlayerIdle: %v", err)
	}
	if idle {
		t.Fatalf("expected busy once an animation shows up inside the window")
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 samples got %d", calls.Load())
	}
}
