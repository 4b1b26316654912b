package crafter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"furnacebot.ai/internal/catalog"
	"furnacebot.ai/internal/clock"
	"furnacebot.ai/internal/gamestate"
	"furnacebot.ai/internal/options"
)

// world is a tiny furnace simulation keyed on the designated slot.
type world struct {
	slot     int
	slotItem int
	target   catalog.Item
	craftFor int // idle polls remaining until the batch completes
	crafting int

	furnaceOK bool
	bankOK    bool
	withdraw  map[string]bool
	invErr    error
	// hideOn empties the designated slot at a point in the cycle:
	// "begin" after crafting starts, "bank" once the bank opens,
	// "crafted" on the second read of a finished batch.
	hideOn      string
	targetReads int

	furnaceClicks int
	begins        int
	bankClicks    int
	deposits      []int
	withdrawals   []string
	exits         int
	tabs          int
}

func newWorld(target catalog.Item, start int, slot int) *world {
	return &world{slot: slot, slotItem: start, target: target, craftFor: 3, furnaceOK: true, bankOK: true}
}

func (w *world) SelectInventoryTab(context.Context) bool { w.tabs++; return true }

func (w *world) ClickFurnace(context.Context) bool {
	w.furnaceClicks++
	return w.furnaceOK
}

func (w *world) BeginCrafting(_ context.Context, item catalog.Item) bool {
	w.begins++
	if item.ID != w.target.ID {
		return false
	}
	w.crafting = w.craftFor
	if w.hideOn == "begin" {
		w.slotItem = 0
	}
	return true
}

func (w *world) ClickBank(context.Context) bool {
	w.bankClicks++
	if w.bankOK && w.hideOn == "bank" {
		w.slotItem = 0
	}
	return w.bankOK
}

func (w *world) ClickInventorySlot(_ context.Context, index int) bool {
	w.deposits = append(w.deposits, index)
	if index == w.slot {
		w.slotItem = 0
	}
	return true
}

func (w *world) Withdraw(_ context.Context, m catalog.Item) bool {
	w.withdrawals = append(w.withdrawals, m.Name)
	if ok, set := w.withdraw[m.Name]; set && !ok {
		return false
	}
	w.slotItem = m.ID
	return true
}

func (w *world) ExitBank(context.Context) { w.exits++ }

func (w *world) Inventory(context.Context) (gamestate.Snapshot, error) {
	if w.invErr != nil {
		return nil, w.invErr
	}
	if w.hideOn == "crafted" && w.slotItem == w.target.ID {
		w.targetReads++
		if w.targetReads == 2 {
			w.slotItem = 0
		}
	}
	if w.slotItem == 0 {
		return gamestate.Snapshot{}, nil
	}
	return gamestate.Snapshot{{Index: w.slot, ID: w.slotItem, Quantity: 1}}, nil
}

func (w *world) IsPlayerIdle(context.Context) (bool, error) {
	if w.crafting > 0 {
		w.crafting--
		if w.crafting == 0 {
			w.slotItem = w.target.ID
		}
		return false, nil
	}
	return true, nil
}

type fakeHost struct {
	logs     []string
	progress []float64
	logouts  int
	stops    int
	calls    []string
}

func (h *fakeHost) LogMessage(text string)    { h.logs = append(h.logs, text) }
func (h *fakeHost) UpdateProgress(f float64) { h.progress = append(h.progress, f) }

func (h *fakeHost) Logout() {
	h.logouts++
	h.calls = append(h.calls, "logout")
}

func (h *fakeHost) Stop() {
	h.stops++
	h.calls = append(h.calls, "stop")
}

// lifecycle is the ordered list of logout/stop calls.
func (h *fakeHost) lifecycle() string { return strings.Join(h.calls, ",") }

func (h *fakeHost) count(text string) int {
	n := 0
	for _, l := range h.logs {
		if l == text {
			n++
		}
	}
	return n
}

type memJournal struct{ events []Event }

func (j *memJournal) Record(ev Event) { j.events = append(j.events, ev) }

func session(t *testing.T, name string, minutes int) options.Session {
	t.Helper()
	r, ok := catalog.Builtin().Lookup(name)
	if !ok {
		t.Fatalf("missing builtin recipe %q", name)
	}
	return options.Session{RunningTime: minutes, Recipe: r, Ready: true}
}

func newController(w *world, h *fakeHost, j *memJournal, sess options.Session) (*Controller, *clock.Fake) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	d := Deps{Actions: w, GameState: w, Host: h, Clock: clk}
	if j != nil {
		d.Journal = j
	}
	return New(d, Config{SessionID: "s1", Session: sess}), clk
}

func TestDesignatedSlot(t *testing.T) {
	cases := []struct {
		m    int
		tool bool
		want int
	}{
		{1, true, 26},
		{2, false, 13},
		{2, true, 12},
		{1, false, 27},
		{28, false, 0},
	}
	for _, tc := range cases {
		got, err := DesignatedSlot(tc.m, tc.tool)
		if err != nil || got != tc.want {
			t.Fatalf("DesignatedSlot(%d,%v)=%d,%v want %d", tc.m, tc.tool, got, err, tc.want)
		}
	}
	if _, err := DesignatedSlot(0, false); err == nil {
		t.Fatalf("expected error for zero materials")
	}
	if _, err := DesignatedSlot(28, true); err == nil {
		t.Fatalf("expected error when nothing fits")
	}
}

func TestPhaseString(t *testing.T) {
	if PreCraft.String() != "pre-craft" || Bank.String() != "bank" {
		t.Fatalf("unexpected names %s %s", PreCraft, Bank)
	}
	if Phase(9).Valid() || !Craft.Valid() {
		t.Fatalf("Valid mismatch")
	}
	var zero Phase
	if zero != PreCraft {
		t.Fatalf("zero phase must be pre-craft")
	}
}

func TestPreCraftWithFinishedBatchSkipsFurnace(t *testing.T) {
	sess := session(t, catalog.SapphireRingName, 30)
	w := newWorld(sess.Recipe.Item, sess.Recipe.Item.ID, 13)
	c, _ := newController(w, &fakeHost{}, nil, sess)
	c.slot = 13

	next, err := c.step(context.Background(), PreCraft, sess.Recipe.Item.ID)
	if err != nil || next != PostCraft {
		t.Fatalf("next=%s err=%v", next, err)
	}
	if w.furnaceClicks != 0 {
		t.Fatalf("furnace must not be clicked, got %d", w.furnaceClicks)
	}
}

func TestPreCraftStaysWhenCraftMenuMissing(t *testing.T) {
	sess := session(t, catalog.SapphireRingName, 30)
	other := catalog.Item{Name: "Other", ID: 1}
	w := newWorld(other, catalog.GoldBarID, 13)
	c, _ := newController(w, &fakeHost{}, nil, sess)

	next, err := c.step(context.Background(), PreCraft, catalog.GoldBarID)
	if err != nil || next != PreCraft {
		t.Fatalf("next=%s err=%v", next, err)
	}
	if w.furnaceClicks != 1 || w.begins != 1 {
		t.Fatalf("furnace=%d begins=%d", w.furnaceClicks, w.begins)
	}
}

func TestCraftIdleReturnsToPreCraft(t *testing.T) {
	sess := session(t, catalog.GoldAmuletUName, 30)
	w := newWorld(sess.Recipe.Item, catalog.GoldBarID, 26)
	c, _ := newController(w, &fakeHost{}, nil, sess)

	next, err := c.step(context.Background(), Craft, catalog.GoldBarID)
	if err != nil || next != PreCraft {
		t.Fatalf("next=%s err=%v", next, err)
	}

	w.crafting = 5
	next, err = c.step(context.Background(), Craft, catalog.GoldBarID)
	if err != nil || next != Craft {
		t.Fatalf("busy player: next=%s err=%v", next, err)
	}
}

func TestBankWithdrawsEveryMaterialInOrder(t *testing.T) {
	sess := session(t, catalog.SapphireRingName, 30)
	w := newWorld(sess.Recipe.Item, sess.Recipe.Item.ID, 13)
	c, clk := newController(w, &fakeHost{}, nil, sess)
	c.slot = 13

	next, err := c.step(context.Background(), Bank, sess.Recipe.Item.ID)
	if err != nil || next != PreCraft {
		t.Fatalf("next=%s err=%v", next, err)
	}
	if len(w.deposits) != 1 || w.deposits[0] != 13 {
		t.Fatalf("deposits=%v", w.deposits)
	}
	if strings.Join(w.withdrawals, ",") != "Gold bar,Sapphire" {
		t.Fatalf("withdrawals=%v", w.withdrawals)
	}
	if w.exits != 1 {
		t.Fatalf("exits=%d", w.exits)
	}
	if slept, n := clk.Slept(); slept != 3*time.Second || n != 3 {
		t.Fatalf("slept %v in %d calls", slept, n)
	}
}

func TestRunFinishesAfterBudget(t *testing.T) {
	sess := session(t, catalog.SapphireRingName, 30)
	w := newWorld(sess.Recipe.Item, catalog.SapphireID, 13)
	h := &fakeHost{}
	j := &memJournal{}
	c, clk := newController(w, h, j, sess)

	sum, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Reason != ReasonFinished || sum.Batches == 0 {
		t.Fatalf("summary %+v", sum)
	}
	if clk.Now().Sub(sum.StartedAt) < 30*time.Minute {
		t.Fatalf("stopped early at %v", clk.Now().Sub(sum.StartedAt))
	}
	if len(h.progress) == 0 || h.progress[len(h.progress)-1] != 1 {
		t.Fatalf("last progress must be 1, got %v", h.progress)
	}
	for _, p := range h.progress {
		if p < 0 || p > 1 {
			t.Fatalf("progress out of range: %v", p)
		}
	}
	if h.lifecycle() != "logout,stop" || h.count("Finished.") != 1 {
		t.Fatalf("lifecycle=%q finished=%d", h.lifecycle(), h.count("Finished."))
	}
	if h.count("Max craftable: 14") != 1 || w.tabs != 1 {
		t.Fatalf("expected inventory tab selection and max craftable log, logs=%v", h.logs)
	}
	for _, d := range w.deposits {
		if d != 13 {
			t.Fatalf("deposit clicked slot %d", d)
		}
	}
	if len(j.events) < 3 || j.events[0].Kind != EventStart || j.events[len(j.events)-1].Kind != EventFinish {
		t.Fatalf("unexpected journal %+v", j.events)
	}
	for i, ev := range j.events {
		if ev.Seq != i+1 || ev.Session != "s1" {
			t.Fatalf("event %d: %+v", i, ev)
		}
	}
}

func TestRunMissingSlotIsFatal(t *testing.T) {
	sess := session(t, catalog.GoldAmuletUName, 30)
	w := newWorld(sess.Recipe.Item, 0, 26)
	h := &fakeHost{}
	c, _ := newController(w, h, &memJournal{}, sess)

	sum, err := c.Run(context.Background())
	var fe *FatalError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FatalError, got %v", err)
	}
	if sum.Reason != ReasonFatal || fe.Phase != PreCraft {
		t.Fatalf("summary %+v phase %s", sum, fe.Phase)
	}
	if h.lifecycle() != "logout,stop" {
		t.Fatalf("lifecycle=%q", h.lifecycle())
	}
	if w.furnaceClicks != 0 {
		t.Fatalf("no action expected after fatal read")
	}
}

func TestRunSlotLostMidCycleIsFatal(t *testing.T) {
	cases := []struct {
		hideOn string
		want   Phase
	}{
		{"begin", Craft},
		{"crafted", PostCraft},
		{"bank", Bank},
	}
	for _, tc := range cases {
		sess := session(t, catalog.GoldAmuletUName, 30)
		w := newWorld(sess.Recipe.Item, catalog.GoldBarID, 26)
		w.hideOn = tc.hideOn
		h := &fakeHost{}
		j := &memJournal{}
		c, _ := newController(w, h, j, sess)

		sum, err := c.Run(context.Background())
		var fe *FatalError
		if !errors.As(err, &fe) {
			t.Fatalf("%s: expected FatalError, got %v", tc.hideOn, err)
		}
		if fe.Phase != tc.want || sum.Reason != ReasonFatal || sum.Phase != tc.want.String() {
			t.Fatalf("%s: fatal in %s want %s (summary %+v)", tc.hideOn, fe.Phase, tc.want, sum)
		}
		if h.logouts != 1 || h.lifecycle() != "logout,stop" {
			t.Fatalf("%s: lifecycle=%q", tc.hideOn, h.lifecycle())
		}
		last := j.events[len(j.events)-1]
		if last.Kind != EventFatal || last.From != tc.want.String() {
			t.Fatalf("%s: last event %+v", tc.hideOn, last)
		}
	}
}

func TestRunInventoryErrorIsFatal(t *testing.T) {
	sess := session(t, catalog.GoldAmuletUName, 30)
	w := newWorld(sess.Recipe.Item, catalog.GoldBarID, 26)
	boom := errors.New("connection refused")
	w.invErr = boom
	h := &fakeHost{}
	c, _ := newController(w, h, nil, sess)

	_, err := c.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped inventory error, got %v", err)
	}
	if h.lifecycle() != "logout,stop" {
		t.Fatalf("lifecycle=%q", h.lifecycle())
	}
}

func TestRunFurnaceNotFoundIsFatal(t *testing.T) {
	sess := session(t, catalog.GoldAmuletUName, 30)
	w := newWorld(sess.Recipe.Item, catalog.GoldBarID, 26)
	w.furnaceOK = false
	h := &fakeHost{}
	c, _ := newController(w, h, nil, sess)

	_, err := c.Run(context.Background())
	var fe *FatalError
	if !errors.As(err, &fe) || fe.Reason != "Furnace not found." {
		t.Fatalf("unexpected error %v", err)
	}
	if h.count("Furnace not found.") != 1 || h.lifecycle() != "logout,stop" {
		t.Fatalf("logs=%v lifecycle=%q", h.logs, h.lifecycle())
	}
}

func TestRunMissingMaterialIsFatal(t *testing.T) {
	sess := session(t, catalog.SapphireRingName, 30)
	w := newWorld(sess.Recipe.Item, sess.Recipe.Item.ID, 13)
	w.withdraw = map[string]bool{catalog.SapphireName: false}
	h := &fakeHost{}
	c, _ := newController(w, h, nil, sess)

	sum, err := c.Run(context.Background())
	var fe *FatalError
	if !errors.As(err, &fe) || fe.Phase != Bank {
		t.Fatalf("unexpected error %v", err)
	}
	if sum.Batches != 0 || h.lifecycle() != "logout,stop" {
		t.Fatalf("summary %+v lifecycle=%q", sum, h.lifecycle())
	}
}

func TestRunNotReady(t *testing.T) {
	w := newWorld(catalog.Item{}, 0, 0)
	h := &fakeHost{}
	c, _ := newController(w, h, nil, options.Session{})

	if _, err := c.Run(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if w.tabs != 0 || h.stops != 0 || h.logouts != 0 {
		t.Fatalf("nothing should run when not ready")
	}
}

func TestRunCanceledStopsWithoutLogout(t *testing.T) {
	sess := session(t, catalog.GoldAmuletUName, 30)
	w := newWorld(sess.Recipe.Item, catalog.GoldBarID, 26)
	h := &fakeHost{}
	j := &memJournal{}
	c, _ := newController(w, h, j, sess)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := c.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sum.Reason != ReasonInterrupted || h.lifecycle() != "stop" {
		t.Fatalf("summary %+v lifecycle=%q", sum, h.lifecycle())
	}
	if j.events[len(j.events)-1].Kind != EventInterrupt {
		t.Fatalf("expected interrupt event, got %+v", j.events)
	}
}

func TestJournalsFanOut(t *testing.T) {
	a, b := &memJournal{}, &memJournal{}
	Journals{a, nil, b}.Record(Event{Kind: EventStart})
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("fan-out failed")
	}
}

func TestParsePhaseAndLegalTransitions(t *testing.T) {
	for p := PreCraft; p <= Bank; p++ {
		got, ok := ParsePhase(p.String())
		if !ok || got != p {
			t.Fatalf("ParsePhase(%q)=%v,%v", p.String(), got, ok)
		}
	}
	if _, ok := ParsePhase("smelting"); ok {
		t.Fatalf("unexpected phase parsed")
	}
	if !LegalTransition(Bank, PreCraft) || LegalTransition(Bank, Craft) || LegalTransition(PostCraft, PreCraft) {
		t.Fatalf("transition table mismatch")
	}
	if LegalTransition(Phase(9), PreCraft) || LegalTransition(Bank, Phase(-1)) {
		t.Fatalf("out-of-range phases must not transition")
	}
}
