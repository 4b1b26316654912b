// Package action implements the locate-and-click primitives the crafting
// controller is built from. Each primitive performs at most one confirmed click.
package action

import (
	"context"
	"log"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"furnacebot.ai/internal/catalog"
	"furnacebot.ai/internal/clock"
	"furnacebot.ai/internal/geom"
	"furnacebot.ai/internal/retry"
)

// Color names a marker or text color; the host owns the RGB palette.
type Color string

const (
	Pink      Color = "PINK"
	Red       Color = "RED"
	Green     Color = "GREEN"
	OffWhite  Color = "OFF_WHITE"
	OffOrange Color = "OFF_ORANGE"
)

// Tag colors per object class.
const (
	FurnaceTag     = Pink
	BankTag        = Red
	CraftButtonTag = Green
)

const inventoryTab = 3

type Detector interface {
	NearestTag(ctx context.Context, c Color) (geom.Rect, bool, error)
	HoverText(ctx context.Context, contains string, c Color) (bool, error)
}

type ImageFinder interface {
	FindImage(ctx context.Context, path string, region geom.Rect, confidence float64) (geom.Rect, bool, error)
}

type Pointer interface {
	MoveTo(ctx context.Context, p geom.Point) error
	Click(ctx context.Context) error
}

type Camera interface {
	Rotate(ctx context.Context, degrees int) error
}

type Timing struct {
	FindTimeout        time.Duration
	VerifyTimeout      time.Duration
	RetryInterval      time.Duration
	CameraStep         int
	WithdrawConfidence float64
}

func DefaultTiming() Timing {
	return Timing{
		FindTimeout:        15 * time.Second,
		VerifyTimeout:      15 * time.Second,
		RetryInterval:      retry.Interval,
		CameraStep:         90,
		WithdrawConfidence: 0.5,
	}
}

type Deps struct {
	Detector Detector
	Images   ImageFinder
	Pointer  Pointer
	Camera   Camera
	Layout   geom.Layout
	Clock    clock.Clock
	Logger   *log.Logger
	// ImagesDir holds items/<Name>.png templates for withdrawals.
	ImagesDir string
	Rand      *rand.Rand
}

type Actions struct {
	d      Deps
	timing Timing
}

func New(d Deps, t Timing) *Actions {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Logger == nil {
		d.Logger = log.New(log.Writer(), "[action] ", log.LstdFlags|log.Lmicroseconds)
	}
	if d.Rand == nil {
		d.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if t.RetryInterval <= 0 {
		t.RetryInterval = retry.Interval
	}
	return &Actions{d: d, timing: t}
}

func (a *Actions) retryRect(ctx context.Context, probe retry.Probe[geom.Rect], onFailure retry.Recovery, timeout time.Duration) (geom.Rect, bool) {
	return retry.DoEvery(ctx, a.d.Clock, probe, onFailure, timeout, a.timing.RetryInterval)
}

func (a *Actions) retryOK(ctx context.Context, probe retry.Probe[bool], timeout time.Duration) bool {
	_, ok := retry.DoEvery(ctx, a.d.Clock, probe, nil, timeout, a.timing.RetryInterval)
	return ok
}

func (a *Actions) findTag(ctx context.Context, c Color) retry.Probe[geom.Rect] {
	return func() (geom.Rect, bool) {
		r, ok, err := a.d.Detector.NearestTag(ctx, c)
		if err != nil {
			a.d.Logger.Printf("nearest tag %s: %v", c, err)
			return geom.Rect{}, false
		}
		return r, ok && !r.Empty()
	}
}

// hoverProbe moves the pointer onto obj and checks the hover text.
func (a *Actions) hoverProbe(ctx context.Context, obj geom.Rect, contains string, c Color) retry.Probe[bool] {
	return func() (bool, bool) {
		if err := a.d.Pointer.MoveTo(ctx, obj.RandomPoint(a.d.Rand)); err != nil {
			a.d.Logger.Printf("move pointer: %v", err)
			return false, false
		}
		match, err := a.d.Detector.HoverText(ctx, contains, c)
		if err != nil {
			a.d.Logger.Printf("hover text %q: %v", contains, err)
			return false, false
		}
		return match, match
	}
}

func (a *Actions) rotateCamera(ctx context.Context) {
	if err := a.d.Camera.Rotate(ctx, a.timing.CameraStep); err != nil {
		a.d.Logger.Printf("rotate camera: %v", err)
	}
}

func (a *Actions) click(ctx context.Context) bool {
	if err := a.d.Pointer.Click(ctx); err != nil {
		a.d.Logger.Printf("click: %v", err)
		return false
	}
	return true
}

// clickTagged finds a tagged object (rotating the camera between misses),
// verifies its hover text and clicks it.
func (a *Actions) clickTagged(ctx context.Context, label string, tag Color, hover string) bool {
	notFound := func() { a.d.Logger.Printf("%s obj not found... Trying again.", label) }
	obj, ok := a.retryRect(ctx, a.findTag(ctx, tag), retry.Recoveries(notFound, func() { a.rotateCamera(ctx) }), a.timing.FindTimeout)
	if !ok {
		return false
	}
	if !a.retryOK(ctx, a.hoverProbe(ctx, obj, hover, OffWhite), a.timing.VerifyTimeout) {
		a.d.Logger.Printf("Could not find %s.", strings.ToLower(label))
		return false
	}
	return a.click(ctx)
}

// ClickFurnace clicks the furnace once its "Smelt" hover text is confirmed.
func (a *Actions) ClickFurnace(ctx context.Context) bool {
	return a.clickTagged(ctx, "Furnace", FurnaceTag, "Smelt")
}

// ClickBank clicks the bank once its "Bank" hover text is confirmed.
func (a *Actions) ClickBank(ctx context.Context) bool {
	return a.clickTagged(ctx, "Bank", BankTag, "Bank")
}

// BeginCrafting clicks the craft button for item. The button lookup is a
// single attempt; only the hover check is retried.
func (a *Actions) BeginCrafting(ctx context.Context, item catalog.Item) bool {
	a.d.Logger.Printf("Crafting %s.", item.Name)

	btn, ok := a.findTag(ctx, CraftButtonTag)()
	if !ok {
		a.d.Logger.Printf("Craft button for %s not found.", item.Name)
		return false
	}
	if !a.retryOK(ctx, a.hoverProbe(ctx, btn, item.Name, OffOrange), a.timing.VerifyTimeout) {
		a.d.Logger.Printf("Failed to click craft button for %s.", item.Name)
		return false
	}
	return a.click(ctx)
}

// CloseBankButton is the bank UI close icon relative to the game view.
func CloseBankButton(gameView geom.Rect) geom.Rect {
	return gameView.Offset(485, 10, 20, 20)
}

// ExitBank clicks the bank close icon without verification.
func (a *Actions) ExitBank(ctx context.Context) {
	a.clickAt(ctx, CloseBankButton(a.d.Layout.GameView))
}

// SelectInventoryTab opens the inventory tab of the control panel.
func (a *Actions) SelectInventoryTab(ctx context.Context) bool {
	tab, ok := a.d.Layout.ControlTab(inventoryTab)
	if !ok {
		a.d.Logger.Printf("control tab %d missing from layout", inventoryTab)
		return false
	}
	return a.clickAt(ctx, tab)
}

// ClickInventorySlot clicks slot index (a deposit while the bank is open).
func (a *Actions) ClickInventorySlot(ctx context.Context, index int) bool {
	slot, ok := a.d.Layout.InventorySlot(index)
	if !ok {
		a.d.Logger.Printf("inventory slot %d missing from layout", index)
		return false
	}
	return a.clickAt(ctx, slot)
}

// MaterialImage returns the template path for a material icon.
func MaterialImage(imagesDir string, material catalog.Item) string {
	return filepath.Join(imagesDir, "items", strings.ReplaceAll(material.Name, " ", "_")+".png")
}

// Withdraw clicks a material icon found in the open bank. The withdrawal is
// not verified afterwards.
func (a *Actions) Withdraw(ctx context.Context, material catalog.Item) bool {
	img := MaterialImage(a.d.ImagesDir, material)
	a.d.Logger.Printf("Searching for %s... (%s)", material.Name, filepath.Base(img))
	match, ok, err := a.d.Images.FindImage(ctx, img, a.d.Layout.GameView, a.timing.WithdrawConfidence)
	if err != nil {
		a.d.Logger.Printf("find image %s: %v", filepath.Base(img), err)
		return false
	}
	if !ok || match.Empty() {
		return false
	}
	return a.clickAt(ctx, match)
}

func (a *Actions) clickAt(ctx context.Context, r geom.Rect) bool {
	if err := a.d.Pointer.MoveTo(ctx, r.RandomPoint(a.d.Rand)); err != nil {
		a.d.Logger.Printf("move pointer: %v", err)
		return false
	}
	return a.click(ctx)
}
