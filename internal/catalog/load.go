package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed recipes.schema.json
var recipesSchema string

const recipesSchemaURL = "recipes.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

type recipeDef struct {
	Item      Item   `json:"item"`
	Materials []Item `json:"materials"`
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(recipesSchemaURL, strings.NewReader(recipesSchema)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(recipesSchemaURL)
	})
	return schema, schemaErr
}

// Load reads a recipes.json file and merges it over the builtin recipes.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Builtin()
	if err := c.Merge(raw); err != nil {
		return nil, fmt.Errorf("recipes.json: %w", err)
	}
	return c, nil
}

// Merge validates raw catalog JSON and adds its recipes.
func (c *Catalog) Merge(raw []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	if err := s.Validate(doc); err != nil {
		return err
	}

	var defs []recipeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return err
	}
	// Check every binding first so a bad file leaves the catalog untouched.
	ids := map[int]string{}
	names := map[string]int{}
	for i, d := range defs {
		if err := c.checkBinding(d.Item); err != nil {
			return fmt.Errorf("recipe %d: %w", i, err)
		}
		if name, ok := ids[d.Item.ID]; ok && name != d.Item.Name {
			return fmt.Errorf("recipe %d: item id %d already belongs to %q, cannot reuse it for %q", i, d.Item.ID, name, d.Item.Name)
		}
		if id, ok := names[d.Item.Name]; ok && id != d.Item.ID {
			return fmt.Errorf("recipe %d: %q already has id %d, got %d", i, d.Item.Name, id, d.Item.ID)
		}
		ids[d.Item.ID] = d.Item.Name
		names[d.Item.Name] = d.Item.ID
	}
	for _, d := range defs {
		c.add(d.Item, d.Materials...)
	}
	c.Digest = sha256Hex(append([]byte(c.Digest), raw...))
	return nil
}
