package options

import (
	"bytes"
	"log"
	"strings"
	"testing"
	"time"

	"furnacebot.ai/internal/catalog"
)

func newForm() (*Form, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewForm(catalog.Builtin(), log.New(&buf, "", 0)), &buf
}

func TestDefinitions(t *testing.T) {
	f, _ := newForm()
	defs := f.Definitions()
	if len(defs) != 2 {
		t.Fatalf("expected 2 options got %d", len(defs))
	}
	if defs[0].Key != KeyRunningTime || defs[0].Kind != KindSlider || defs[0].Min != 30 || defs[0].Max != 720 {
		t.Fatalf("unexpected slider: %+v", defs[0])
	}
	if defs[1].Key != KeyCraftItem || defs[1].Kind != KindDropdown || len(defs[1].Choices) != 2 {
		t.Fatalf("unexpected dropdown: %+v", defs[1])
	}
}

func TestSaveReady(t *testing.T) {
	f, buf := newForm()
	s := f.Save(map[string]any{KeyRunningTime: 90, KeyCraftItem: catalog.SapphireRingName})
	if !s.Ready {
		t.Fatalf("expected ready session, log=%s", buf.String())
	}
	if s.RunningTime != 90 || s.Budget() != 90*time.Minute {
		t.Fatalf("unexpected running time %d", s.RunningTime)
	}
	if s.Recipe.Item.ID != catalog.SapphireRingID || s.Recipe.MaterialsPerCraft() != 2 {
		t.Fatalf("unexpected recipe %+v", s.Recipe.Item)
	}
	if !strings.Contains(buf.String(), "Options set successfully.") {
		t.Fatalf("expected success log, got %q", buf.String())
	}
}

func TestSaveAcceptsNumericShapes(t *testing.T) {
	f, _ := newForm()
	for _, v := range []any{float64(45), int64(45), "45"} {
		s := f.Save(map[string]any{KeyRunningTime: v, KeyCraftItem: catalog.GoldAmuletUName})
		if !s.Ready || s.RunningTime != 45 {
			t.Fatalf("value %#v: ready=%v minutes=%d", v, s.Ready, s.RunningTime)
		}
	}
}

func TestSaveUnknownKeyLeavesUnready(t *testing.T) {
	f, buf := newForm()
	s := f.Save(map[string]any{KeyCraftItem: catalog.GoldAmuletUName, "use_mould": true})
	if s.Ready {
		t.Fatalf("expected unready session")
	}
	if !strings.Contains(buf.String(), "Unknown option: use_mould") {
		t.Fatalf("expected unknown option warning, got %q", buf.String())
	}
}

func TestSaveRejectsBadValues(t *testing.T) {
	cases := []map[string]any{
		{KeyRunningTime: 29, KeyCraftItem: catalog.GoldAmuletUName},
		{KeyRunningTime: 721, KeyCraftItem: catalog.GoldAmuletUName},
		{KeyRunningTime: 30.5, KeyCraftItem: catalog.GoldAmuletUName},
		{KeyRunningTime: true, KeyCraftItem: catalog.GoldAmuletUName},
		{KeyRunningTime: 30, KeyCraftItem: "Ruby necklace"},
		{KeyRunningTime: 30, KeyCraftItem: 7},
		{KeyRunningTime: 30},
	}
	f, _ := newForm()
	for _, opts := range cases {
		if s := f.Save(opts); s.Ready {
			t.Fatalf("expected %v to be rejected", opts)
		}
	}
}

func TestSaveSuggestsCloseName(t *testing.T) {
	f, buf := newForm()
	f.Save(map[string]any{KeyCraftItem: "Saphire ring"})
	if !strings.Contains(buf.String(), `did you mean "Sapphire ring"`) {
		t.Fatalf("expected suggestion, got %q", buf.String())
	}
}

func TestSaveRejectsRecipeWithoutMaterials(t *testing.T) {
	cat := catalog.Builtin()
	if err := cat.Add(catalog.Item{Name: "Opal ring", ID: 21081}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	var buf bytes.Buffer
	s := NewForm(cat, log.New(&buf, "", 0)).Save(map[string]any{KeyCraftItem: "Opal ring"})
	if s.Ready {
		t.Fatalf("expected unready session for a recipe without materials")
	}
	if !strings.Contains(buf.String(), "No materials known for Opal ring") {
		t.Fatalf("unexpected log %q", buf.String())
	}
}
