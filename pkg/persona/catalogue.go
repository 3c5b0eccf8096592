// Package persona loads the persona catalogue: a YAML file mapping
// bot id to the protocol.Persona the character agent speaks as.
// Grounded on original_source/agent/agents/character/persona.py, whose
// dataclass fields map directly onto protocol.Persona.
package persona

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/CheKilo/bot-agent/pkg/protocol"
)

// Catalogue is a bot id -> persona map loaded from a single YAML file.
type Catalogue struct {
	personas map[string]protocol.Persona
}

type catalogueFile struct {
	Personas map[string]protocol.Persona `yaml:"personas"`
}

// Empty returns a catalogue with no configured personas, so every bot
// falls back to DefaultPersona — used when no persona_path is configured.
func Empty() *Catalogue {
	return &Catalogue{personas: map[string]protocol.Persona{}}
}

// Load reads a persona catalogue from path.
func Load(path string) (*Catalogue, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona: read %s: %w", path, err)
	}

	var file catalogueFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("persona: parse %s: %w", path, err)
	}

	return &Catalogue{personas: file.Personas}, nil
}

// Get returns the persona registered under botID, or the default
// persona ("小助手" in the original, "Assistant" here) if none was
// configured for that bot.
func (c *Catalogue) Get(botID string) protocol.Persona {
	if p, ok := c.personas[botID]; ok {
		return p
	}
	return DefaultPersona()
}

// DefaultPersona is used when a bot has no configured persona entry.
func DefaultPersona() protocol.Persona {
	return protocol.Persona{
		Name:          "Assistant",
		Traits:        []string{"friendly", "patient", "a little playful"},
		SpeakingStyle: "warm, natural, occasionally witty",
	}
}
