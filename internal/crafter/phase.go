package crafter

import "fmt"

// Phase is the controller state. PreCraft is the zero value and the initial phase.
type Phase int

const (
	PreCraft Phase = iota
	Craft
	PostCraft
	Bank
)

func (p Phase) String() string {
	switch p {
	case PreCraft:
		return "pre-craft"
	case Craft:
		return "craft"
	case PostCraft:
		return "post-craft"
	case Bank:
		return "bank"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (p Phase) Valid() bool {
	return p >= PreCraft && p <= Bank
}

// InventorySize is the number of inventory slots in the game client.
const InventorySize = 28

// DesignatedSlot is the inventory index that holds the last crafted item of a
// full batch: (available slots / materials per craft) - 1, where a reserved
// tool (the mould) takes one slot away.
func DesignatedSlot(materialsPerCraft int, toolReserved bool) (int, error) {
	if materialsPerCraft <= 0 {
		return 0, fmt.Errorf("recipe has no materials")
	}
	available := InventorySize
	if toolReserved {
		available--
	}
	maxCraftable := available / materialsPerCraft
	if maxCraftable < 1 {
		return 0, fmt.Errorf("%d materials per craft do not fit in %d slots", materialsPerCraft, available)
	}
	return maxCraftable - 1, nil
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(s string) (Phase, bool) {
	for p := PreCraft; p <= Bank; p++ {
		if p.String() == s {
			return p, true
		}
	}
	return 0, false
}

var legalNext = map[Phase][]Phase{
	PreCraft:  {Craft, PostCraft},
	Craft:     {PreCraft, PostCraft},
	PostCraft: {Bank},
	Bank:      {PreCraft},
}

// LegalTransition reports whether the controller can move from one phase to another in one step.
func LegalTransition(from, to Phase) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	for _, n := range legalNext[from] {
		if n == to {
			return true
		}
	}
	return false
}
