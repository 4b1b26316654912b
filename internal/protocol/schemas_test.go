package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"furnacebot.ai/internal/geom"
	"furnacebot.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	// Round-trip through the Go types so the schemas track the structs.
	validate := func(s *jsonschema.Schema, msg any) {
		t.Helper()
		b, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate %s: %v", b, err)
		}
	}

	validate(compile("hello.schema.json"), protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "furnacebot",
	})

	slots := make([]geom.Rect, 28)
	for i := range slots {
		slots[i] = geom.Rect{Left: 563 + (i%4)*42, Top: 213 + (i/4)*36, Width: 36, Height: 32}
	}
	validate(compile("layout.schema.json"), protocol.LayoutMsg{
		Type:            protocol.TypeLayout,
		ProtocolVersion: protocol.Version,
		Layout: geom.Layout{
			GameView:       geom.Rect{Left: 8, Top: 31, Width: 512, Height: 334},
			InventorySlots: slots,
			ControlTabs:    []geom.Rect{{Left: 530, Top: 170, Width: 33, Height: 36}},
		},
	})

	params, _ := json.Marshal(protocol.NearestTagParams{Color: "PINK"})
	validate(compile("req.schema.json"), protocol.ReqMsg{
		Type:            protocol.TypeReq,
		ProtocolVersion: protocol.Version,
		ID:              "1",
		Method:          protocol.MethodNearestTag,
		Params:          params,
	})

	resSchema := compile("res.schema.json")
	result, _ := json.Marshal(protocol.FoundResult{Found: true, Rect: geom.Rect{Left: 1, Top: 2, Width: 3, Height: 4}})
	validate(resSchema, protocol.ResMsg{
		Type:            protocol.TypeRes,
		ProtocolVersion: protocol.Version,
		ID:              "1",
		OK:              true,
		Result:          result,
	})
	validate(resSchema, protocol.ResMsg{
		Type:            protocol.TypeRes,
		ProtocolVersion: protocol.Version,
		ID:              "2",
		Error:           &protocol.ErrorBody{Code: protocol.ErrUnsupported, Message: "no camera"},
	})
}
