package quickchat

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed signals.yaml
var signalsYAML []byte

const (
	CategoryMessage = "message"
	CategoryEmote   = "emote"
)

// Catalog is the closed enumeration of quick signals.
type Catalog struct {
	messages map[string]bool
	emotes   map[string]bool
}

// LoadCatalog parses the embedded signal sets.
func LoadCatalog() (*Catalog, error) {
	var raw struct {
		Messages []string `yaml:"messages"`
		Emotes   []string `yaml:"emotes"`
	}
	if err := yaml.Unmarshal(signalsYAML, &raw); err != nil {
		return nil, fmt.Errorf("parse signals catalog: %w", err)
	}
	c := &Catalog{
		messages: make(map[string]bool, len(raw.Messages)),
		emotes:   make(map[string]bool, len(raw.Emotes)),
	}
	for _, id := range raw.Messages {
		c.messages[id] = true
	}
	for _, id := range raw.Emotes {
		c.emotes[id] = true
	}
	return c, nil
}

// Valid reports whether id belongs to category.
func (c *Catalog) Valid(category, id string) bool {
	switch category {
	case CategoryMessage:
		return c.messages[id]
	case CategoryEmote:
		return c.emotes[id]
	}
	return false
}
