// Package catalog provides the built-in preset commands.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed commands.yaml
var builtin []byte

// Preset is a named command.
type Preset struct {
	ID      string `yaml:"id" json:"id"`
	Command string `yaml:"command" json:"command"`
}

// Category groups related presets.
type Category struct {
	Name     string   `yaml:"name" json:"name"`
	Commands []Preset `yaml:"commands" json:"commands"`
}

// Catalog is an ordered set of categories with unique preset IDs.
type Catalog struct {
	Categories []Category `yaml:"categories" json:"categories"`
	byID       map[string]Preset
}

// Load parses the built-in catalog.
func Load() (*Catalog, error) {
	return Parse(builtin)
}

// Parse parses a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	c.byID = make(map[string]Preset)
	for _, cat := range c.Categories {
		for _, p := range cat.Commands {
			if p.ID == "" || p.Command == "" {
				return nil, fmt.Errorf("category %q: preset needs id and command", cat.Name)
			}
			if _, dup := c.byID[p.ID]; dup {
				return nil, fmt.Errorf("duplicate preset id %q", p.ID)
			}
			c.byID[p.ID] = p
		}
	}

	return &c, nil
}

// Lookup returns the preset with the given ID.
func (c *Catalog) Lookup(id string) (Preset, error) {
	p, ok := c.byID[id]
	if !ok {
		return Preset{}, fmt.Errorf("unknown preset %q", id)
	}
	return p, nil
}
