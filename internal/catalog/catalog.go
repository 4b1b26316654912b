package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Item ids as reported by the game-state API.
const (
	GoldBarID      = 2357
	SapphireID     = 1607
	GoldAmuletUID  = 1673
	SapphireRingID = 1637
)

const (
	GoldBarName      = "Gold bar"
	SapphireName     = "Sapphire"
	GoldAmuletUName  = "Gold amulet (u)"
	SapphireRingName = "Sapphire ring"
)

// Item is an in-game item identified by display name and numeric id.
type Item struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// Recipe is a craftable target and the ordered materials one craft consumes.
// The materials slice is never exposed directly; callers get copies.
type Recipe struct {
	Item      Item
	materials []Item
}

// Materials returns a copy of the required materials in recipe order.
func (r Recipe) Materials() []Item {
	out := make([]Item, len(r.materials))
	copy(out, r.materials)
	return out
}

// MaterialsPerCraft is the number of inventory slots one craft consumes.
func (r Recipe) MaterialsPerCraft() int { return len(r.materials) }

// Known reports whether the catalog had materials for the target.
func (r Recipe) Known() bool { return len(r.materials) > 0 }

type Catalog struct {
	names     []string
	targets   map[string]Item
	materials map[int][]Item
	byID      map[int]string
	Digest    string
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		targets:   map[string]Item{},
		materials: map[int][]Item{},
		byID:      map[int]string{},
	}
}

// Builtin returns the furnace recipes shipped with the bot.
func Builtin() *Catalog {
	c := New()
	goldBar := Item{Name: GoldBarName, ID: GoldBarID}
	sapphire := Item{Name: SapphireName, ID: SapphireID}
	c.add(Item{Name: GoldAmuletUName, ID: GoldAmuletUID}, goldBar)
	c.add(Item{Name: SapphireRingName, ID: SapphireRingID}, goldBar, sapphire)
	c.Digest = sha256Hex([]byte(strings.Join(c.names, "\n")))
	return c
}

// Add registers (or replaces) a target and its materials. Declaration order
// of new targets is kept for Names. A name keeps the id it was first added
// with and an id belongs to a single name.
func (c *Catalog) Add(target Item, materials ...Item) error {
	if err := c.checkBinding(target); err != nil {
		return err
	}
	c.add(target, materials...)
	return nil
}

func (c *Catalog) checkBinding(target Item) error {
	if name, ok := c.byID[target.ID]; ok && name != target.Name {
		return fmt.Errorf("item id %d already belongs to %q, cannot reuse it for %q", target.ID, name, target.Name)
	}
	if prev, ok := c.targets[target.Name]; ok && prev.ID != target.ID {
		return fmt.Errorf("%q already has id %d, got %d", target.Name, prev.ID, target.ID)
	}
	return nil
}

func (c *Catalog) add(target Item, materials ...Item) {
	if _, ok := c.targets[target.Name]; !ok {
		c.names = append(c.names, target.Name)
	}
	c.targets[target.Name] = target
	mats := make([]Item, len(materials))
	copy(mats, materials)
	c.materials[target.ID] = mats
	c.byID[target.ID] = target.Name
}

// NewRecipe builds a recipe for target, resolving materials by target id.
// An unknown id yields a recipe with no materials.
func (c *Catalog) NewRecipe(target Item) Recipe {
	return Recipe{Item: target, materials: append([]Item(nil), c.materials[target.ID]...)}
}

// Lookup resolves a target display name to its recipe.
func (c *Catalog) Lookup(name string) (Recipe, bool) {
	target, ok := c.targets[name]
	if !ok {
		return Recipe{}, false
	}
	return c.NewRecipe(target), true
}

// Names lists target names in declaration order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Recipes lists every target's recipe in declaration order.
func (c *Catalog) Recipes() []Recipe {
	out := make([]Recipe, 0, len(c.names))
	for _, n := range c.names {
		out = append(out, c.NewRecipe(c.targets[n]))
	}
	return out
}

// Suggest returns the closest known target name, or "" if nothing is close.
func (c *Catalog) Suggest(name string) string {
	in := strings.ToLower(strings.TrimSpace(name))
	if in == "" {
		return ""
	}
	best, bestDist := "", -1
	for _, n := range c.names {
		d := levenshtein.ComputeDistance(in, strings.ToLower(n))
		if d > suggestLimit(len(n)) {
			continue
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = n, d
		}
	}
	return best
}

func suggestLimit(length int) int {
	switch {
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 4
	}
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
