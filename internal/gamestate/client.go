// Package gamestate queries the RuneLite Morg HTTP plugin for inventory and
// player animation state.
package gamestate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultURL = "http://127.0.0.1:8081"

// Item ids the plugin reports for an empty inventory slot.
var emptyIDs = map[int]struct{}{-1: {}, 6512: {}}

// Standing poses; any other pose (or a running animation) means busy.
var idlePoses = map[int]struct{}{808: {}, 813: {}}

type Slot struct {
	Index    int `json:"index"`
	ID       int `json:"id"`
	Quantity int `json:"quantity"`
}

// Snapshot is the occupied inventory at one instant, ordered by slot index.
type Snapshot []Slot

// Slot returns the occupant of index, if any.
func (s Snapshot) Slot(index int) (Slot, bool) {
	for _, sl := range s {
		if sl.Index == index {
			return sl, true
		}
	}
	return Slot{}, false
}

type Config struct {
	BaseURL string
	// IdleWindow is how long the player must look idle; zero samples once.
	IdleWindow time.Duration
	IdleStep   time.Duration
	Timeout    time.Duration
}

type Client struct {
	baseURL    string
	idleWindow time.Duration
	idleStep   time.Duration
	httpClient *http.Client
}

func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	step := cfg.IdleStep
	if step <= 0 {
		step = 100 * time.Millisecond
	}
	return &Client{
		baseURL:    base,
		idleWindow: cfg.IdleWindow,
		idleStep:   step,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type invEntry struct {
	ID       int `json:"id"`
	Quantity int `json:"quantity"`
}

type eventsDoc struct {
	Animation     int `json:"animation"`
	AnimationPose int `json:"animation pose"`
}

// Inventory fetches the current inventory; positions in the plugin's array are slot indexes.
func (c *Client) Inventory(ctx context.Context) (Snapshot, error) {
	var raw []invEntry
	if err := c.get(ctx, "/inv", &raw); err != nil {
		return nil, err
	}
	out := make(Snapshot, 0, len(raw))
	for i, e := range raw {
		if _, empty := emptyIDs[e.ID]; empty {
			continue
		}
		out = append(out, Slot{Index: i, ID: e.ID, Quantity: e.Quantity})
	}
	return out, nil
}

// IsPlayerIdle reports whether the player stayed idle for the whole idle window.
func (c *Client) IsPlayerIdle(ctx context.Context) (bool, error) {
	start := time.Now()
	for {
		var ev eventsDoc
		if err := c.get(ctx, "/events", &ev); err != nil {
			return false, err
		}
		if !isIdle(ev) {
			return false, nil
		}
		if time.Since(start) >= c.idleWindow {
			return true, nil
		}
		t := time.NewTimer(c.idleStep)
		select {
		case <-ctx.Done():
			t.Stop()
			return false, ctx.Err()
		case <-t.C:
		}
	}
}

func isIdle(ev eventsDoc) bool {
	if ev.Animation != -1 {
		return false
	}
	_, ok := idlePoses[ev.AnimationPose]
	return ok
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("game state %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("game state %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("game state %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("game state %s: decode: %w", path, err)
	}
	return nil
}
