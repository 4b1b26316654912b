// Package geom holds screen-space value types shared by the action layer and the host link.
package geom

import "math/rand"

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X < r.Left+r.Width && p.Y >= r.Top && p.Y < r.Top+r.Height
}

// Offset returns a rect of the given size positioned relative to r's top-left corner.
func (r Rect) Offset(dx, dy, w, h int) Rect {
	return Rect{Left: r.Left + dx, Top: r.Top + dy, Width: w, Height: h}
}

// RandomPoint picks a uniformly random pixel inside r.
func (r Rect) RandomPoint(rng *rand.Rand) Point {
	if r.Empty() {
		return Point{X: r.Left, Y: r.Top}
	}
	return Point{X: r.Left + rng.Intn(r.Width), Y: r.Top + rng.Intn(r.Height)}
}

// Layout describes the game client window as measured by the host.
type Layout struct {
	GameView       Rect   `json:"game_view"`
	InventorySlots []Rect `json:"inventory_slots"`
	ControlTabs    []Rect `json:"control_tabs"`
}

// InventorySlot returns the rect of slot i, if the layout has it.
func (l Layout) InventorySlot(i int) (Rect, bool) {
	if i < 0 || i >= len(l.InventorySlots) {
		return Rect{}, false
	}
	return l.InventorySlots[i], true
}

func (l Layout) ControlTab(i int) (Rect, bool) {
	if i < 0 || i >= len(l.ControlTabs) {
		return Rect{}, false
	}
	return l.ControlTabs[i], true
}
