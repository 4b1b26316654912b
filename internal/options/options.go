// Package options defines the bot's option form and turns saved values into
// an immutable session configuration.
package options

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"furnacebot.ai/internal/catalog"
)

const (
	KeyRunningTime = "running_time"
	KeyCraftItem   = "craft_item"

	MinRunningTime     = 30
	MaxRunningTime     = 720
	DefaultRunningTime = 30
)

type Kind string

const (
	KindSlider   Kind = "slider"
	KindDropdown Kind = "dropdown"
)

// Definition describes one option as shown to the user.
type Definition struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Kind    Kind     `json:"kind"`
	Min     int      `json:"min,omitempty"`
	Max     int      `json:"max,omitempty"`
	Choices []string `json:"choices,omitempty"`
}

// Session is the validated configuration for one run. Build it with Form.Save.
type Session struct {
	RunningTime int
	Recipe      catalog.Recipe
	Ready       bool
}

// Budget is the running time as a duration.
func (s Session) Budget() time.Duration {
	return time.Duration(s.RunningTime) * time.Minute
}

type Form struct {
	cat *catalog.Catalog
	log *log.Logger
}

func NewForm(cat *catalog.Catalog, logger *log.Logger) *Form {
	if logger == nil {
		logger = log.Default()
	}
	return &Form{cat: cat, log: logger}
}

// Definitions lists the options in display order.
func (f *Form) Definitions() []Definition {
	return []Definition{
		{Key: KeyRunningTime, Label: "How long to run (minutes)?", Kind: KindSlider, Min: MinRunningTime, Max: MaxRunningTime},
		{Key: KeyCraftItem, Label: "Craft Item", Kind: KindDropdown, Choices: f.cat.Names()},
	}
}

// Save validates options and returns the resulting session. Any unknown key or
// invalid value leaves the session not ready.
func (f *Form) Save(opts map[string]any) Session {
	s := Session{RunningTime: DefaultRunningTime}
	haveRecipe := false

	// Deterministic order so the first problem reported is stable.
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := opts[k]
		switch k {
		case KeyRunningTime:
			n, err := minutes(v)
			if err != nil {
				f.log.Printf("Invalid %s: %v", KeyRunningTime, err)
				return Session{}
			}
			s.RunningTime = n
		case KeyCraftItem:
			name, ok := v.(string)
			if !ok {
				f.log.Printf("Invalid %s: expected a name, got %T", KeyCraftItem, v)
				return Session{}
			}
			r, ok := f.cat.Lookup(name)
			if !ok {
				if hint := f.cat.Suggest(name); hint != "" {
					f.log.Printf("Unknown craft item: %q (did you mean %q?)", name, hint)
				} else {
					f.log.Printf("Unknown craft item: %q", name)
				}
				return Session{}
			}
			if !r.Known() {
				f.log.Printf("No materials known for %s", name)
				return Session{}
			}
			s.Recipe = r
			haveRecipe = true
		default:
			f.log.Printf("Unknown option: %s", k)
			return Session{}
		}
	}
	if !haveRecipe {
		f.log.Printf("Missing option: %s", KeyCraftItem)
		return Session{}
	}

	f.log.Printf("Running time: %d minutes.", s.RunningTime)
	f.log.Printf("Crafting item: %s (id %d).", s.Recipe.Item.Name, s.Recipe.Item.ID)
	f.log.Printf("Options set successfully.")
	s.Ready = true
	return s
}

// minutes accepts the shapes a slider value arrives in from YAML, JSON or a form.
func minutes(v any) (int, error) {
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%v is not a whole number of minutes", x)
		}
		n = int(x)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", x)
		}
		n = i
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
	if n < MinRunningTime || n > MaxRunningTime {
		return 0, fmt.Errorf("%d outside [%d, %d]", n, MinRunningTime, MaxRunningTime)
	}
	return n, nil
}
