// Package crafter runs the furnace crafting loop: craft a full inventory at
// the furnace, bank the output, withdraw materials, repeat until the time
// budget is spent.
package crafter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"furnacebot.ai/internal/catalog"
	"furnacebot.ai/internal/clock"
	"furnacebot.ai/internal/gamestate"
	"furnacebot.ai/internal/options"
)

var ErrNotReady = errors.New("session options not set")

type Actions interface {
	SelectInventoryTab(ctx context.Context) bool
	ClickFurnace(ctx context.Context) bool
	BeginCrafting(ctx context.Context, item catalog.Item) bool
	ClickBank(ctx context.Context) bool
	ClickInventorySlot(ctx context.Context, index int) bool
	Withdraw(ctx context.Context, material catalog.Item) bool
	ExitBank(ctx context.Context)
}

type GameState interface {
	Inventory(ctx context.Context) (gamestate.Snapshot, error)
	IsPlayerIdle(ctx context.Context) (bool, error)
}

// Host is the bot lifecycle the controller reports to.
type Host interface {
	LogMessage(text string)
	UpdateProgress(fraction float64)
	Logout()
	Stop()
}

// Journal receives controller events. Implementations must not block.
type Journal interface {
	Record(ev Event)
}

type Deps struct {
	Actions   Actions
	GameState GameState
	Host      Host
	Clock     clock.Clock
	Journal   Journal
}

type Config struct {
	SessionID string
	Session   options.Session
	// ToolReserved is set when a mould occupies the last inventory slot.
	ToolReserved bool

	PollInterval time.Duration
	BankSettle   time.Duration
	WithdrawWait time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BankSettle <= 0 {
		c.BankSettle = 10 * time.Second
	}
	if c.WithdrawWait <= 0 {
		c.WithdrawWait = time.Second
	}
}

// FatalError ends a run after logout.
type FatalError struct {
	Phase  Phase
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Phase, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Phase, e.Reason)
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatal(p Phase, reason string, err error) *FatalError {
	return &FatalError{Phase: p, Reason: reason, Err: err}
}

type StopReason string

const (
	ReasonFinished    StopReason = "finished"
	ReasonFatal       StopReason = "fatal"
	ReasonInterrupted StopReason = "interrupted"
)

type Summary struct {
	SessionID  string     `json:"session_id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    time.Time  `json:"ended_at"`
	Iterations int        `json:"iterations"`
	Batches    int        `json:"batches"`
	Phase      string     `json:"phase"`
	Reason     StopReason `json:"reason"`
	Progress   float64    `json:"progress"`
}

type Controller struct {
	d   Deps
	cfg Config

	slot       int
	seq        int
	iterations int
	batches    int
	progress   float64
	stopped    bool
}

func New(d Deps, cfg Config) *Controller {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	cfg.applyDefaults()
	return &Controller{d: d, cfg: cfg}
}

// Run drives the loop until the running time elapses, a fatal condition
// occurs or ctx is canceled. A fatal condition returns a *FatalError.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	sess := c.cfg.Session
	if !sess.Ready {
		c.d.Host.LogMessage("Options not set. Refusing to start.")
		return Summary{SessionID: c.cfg.SessionID}, ErrNotReady
	}
	slot, err := DesignatedSlot(sess.Recipe.MaterialsPerCraft(), c.cfg.ToolReserved)
	if err != nil {
		c.d.Host.LogMessage(fmt.Sprintf("Cannot craft %s: %v", sess.Recipe.Item.Name, err))
		return Summary{SessionID: c.cfg.SessionID}, fmt.Errorf("designated slot: %w", err)
	}
	c.slot = slot

	start := c.d.Clock.Now()
	budget := sess.Budget()
	sum := Summary{SessionID: c.cfg.SessionID, StartedAt: start}
	phase := PreCraft

	c.d.Host.LogMessage("Selecting inventory...")
	if !c.d.Actions.SelectInventoryTab(ctx) {
		c.d.Host.LogMessage("Could not select inventory tab.")
	}
	c.d.Host.LogMessage(fmt.Sprintf("Max craftable: %d", slot+1))
	c.record(Event{Kind: EventStart, To: phase.String(), Message: sess.Recipe.Item.Name})

	for c.d.Clock.Now().Sub(start) < budget {
		if ctx.Err() != nil {
			return c.interrupt(sum, phase, ctx.Err())
		}
		c.d.Host.LogMessage(fmt.Sprintf("State: %s", phase))

		itemID, ferr := c.designatedItem(ctx, phase)
		if ferr != nil {
			if ctx.Err() != nil {
				return c.interrupt(sum, phase, ctx.Err())
			}
			return c.fail(sum, ferr)
		}

		next, err := c.step(ctx, phase, itemID)
		if err != nil {
			if ctx.Err() != nil {
				return c.interrupt(sum, phase, ctx.Err())
			}
			var fe *FatalError
			if !errors.As(err, &fe) {
				fe = fatal(phase, "controller error", err)
			}
			return c.fail(sum, fe)
		}
		if next != phase {
			if phase == Bank {
				c.batches++
			}
			c.record(Event{Kind: EventTransition, From: phase.String(), To: next.String(), SlotItem: itemID})
		}
		phase = next
		c.iterations++

		if err := c.d.Clock.Sleep(ctx, c.cfg.PollInterval); err != nil {
			return c.interrupt(sum, phase, err)
		}
		c.reportProgress(start, budget)
	}

	c.progress = 1
	c.d.Host.UpdateProgress(1)
	c.record(Event{Kind: EventFinish, From: phase.String(), Message: "Finished."})
	c.shutdown("Finished.", true)
	return c.summarize(sum, phase, ReasonFinished), nil
}

// designatedItem reads the item id in the designated slot. A missing slot
// means progress cannot be judged, which is fatal.
func (c *Controller) designatedItem(ctx context.Context, phase Phase) (int, *FatalError) {
	inv, err := c.d.GameState.Inventory(ctx)
	if err != nil {
		return 0, fatal(phase, "Could not read inventory.", err)
	}
	last, ok := inv.Slot(c.slot)
	if !ok {
		return 0, fatal(phase, fmt.Sprintf("Last item not found in slot %d.", c.slot), nil)
	}
	c.d.Host.LogMessage(fmt.Sprintf("Last item id: %d", last.ID))
	return last.ID, nil
}

// step performs one phase's work and returns the next phase.
func (c *Controller) step(ctx context.Context, phase Phase, itemID int) (Phase, error) {
	target := c.cfg.Session.Recipe.Item

	switch phase {
	case PreCraft:
		if itemID == target.ID {
			c.d.Host.LogMessage("Crafting complete. Moving to bank.")
			return PostCraft, nil
		}
		if !c.d.Actions.ClickFurnace(ctx) {
			return phase, fatal(phase, "Furnace not found.", nil)
		}
		if c.d.Actions.BeginCrafting(ctx, target) {
			return Craft, nil
		}
		return PreCraft, nil

	case Craft:
		if itemID == target.ID {
			c.d.Host.LogMessage("Crafting complete. Moving to bank.")
			return PostCraft, nil
		}
		c.d.Host.LogMessage("Crafting...")
		idle, err := c.d.GameState.IsPlayerIdle(ctx)
		if err != nil {
			c.d.Host.LogMessage(fmt.Sprintf("Idle check failed: %v", err))
			return Craft, nil
		}
		if idle {
			// Re-clicks the furnace even if this was a short pause mid-batch.
			c.d.Host.LogMessage("Player is idle.")
			return PreCraft, nil
		}
		return Craft, nil

	case PostCraft:
		if !c.d.Actions.ClickBank(ctx) {
			return phase, fatal(phase, "Bank not found.", nil)
		}
		c.d.Host.LogMessage("Moving to bank...")
		if err := c.d.Clock.Sleep(ctx, c.cfg.BankSettle); err != nil {
			return phase, err
		}
		return Bank, nil

	case Bank:
		if !c.d.Actions.ClickInventorySlot(ctx, c.slot) {
			c.d.Host.LogMessage("Deposit click failed.")
		}
		if err := c.d.Clock.Sleep(ctx, c.cfg.WithdrawWait); err != nil {
			return phase, err
		}
		for _, m := range c.cfg.Session.Recipe.Materials() {
			if !c.d.Actions.Withdraw(ctx, m) {
				return phase, fatal(phase, fmt.Sprintf("Material %s not found.", m.Name), nil)
			}
			if err := c.d.Clock.Sleep(ctx, c.cfg.WithdrawWait); err != nil {
				return phase, err
			}
		}
		c.d.Actions.ExitBank(ctx)
		return PreCraft, nil

	default:
		return phase, fmt.Errorf("unknown phase %s", phase)
	}
}

func (c *Controller) reportProgress(start time.Time, budget time.Duration) {
	p := float64(c.d.Clock.Now().Sub(start)) / float64(budget)
	if p > 1 {
		p = 1
	}
	if p < 0 {
		p = 0
	}
	c.progress = p
	c.d.Host.UpdateProgress(p)
}

func (c *Controller) fail(sum Summary, fe *FatalError) (Summary, error) {
	c.record(Event{Kind: EventFatal, From: fe.Phase.String(), Message: fe.Error()})
	c.shutdown(fe.Reason, true)
	return c.summarize(sum, fe.Phase, ReasonFatal), fe
}

func (c *Controller) interrupt(sum Summary, phase Phase, err error) (Summary, error) {
	c.record(Event{Kind: EventInterrupt, From: phase.String(), Message: err.Error()})
	c.shutdown("Interrupted.", false)
	return c.summarize(sum, phase, ReasonInterrupted), err
}

// shutdown logs msg, optionally logs out and stops the host. It runs once per controller.
func (c *Controller) shutdown(msg string, logout bool) {
	if c.stopped {
		return
	}
	c.stopped = true
	c.d.Host.LogMessage(msg)
	if logout {
		c.d.Host.Logout()
	}
	c.d.Host.Stop()
}

func (c *Controller) summarize(sum Summary, phase Phase, reason StopReason) Summary {
	sum.EndedAt = c.d.Clock.Now()
	sum.Iterations = c.iterations
	sum.Batches = c.batches
	sum.Phase = phase.String()
	sum.Reason = reason
	sum.Progress = c.progress
	return sum
}

func (c *Controller) record(ev Event) {
	if c.d.Journal == nil {
		return
	}
	c.seq++
	ev.Session = c.cfg.SessionID
	ev.Seq = c.seq
	ev.At = c.d.Clock.Now()
	ev.Progress = c.progress
	c.d.Journal.Record(ev)
}
