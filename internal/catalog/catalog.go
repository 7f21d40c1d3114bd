// Package catalog loads the YAML seed file that describes the stock agent
// catalog installed by the operator CLI.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Developer is the account that owns the seeded agents.
type Developer struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// SeedAgent is one catalog entry to publish.
type SeedAgent struct {
	Name          string  `yaml:"name"`
	Type          string  `yaml:"type"`
	Description   string  `yaml:"description"`
	PricePerToken float64 `yaml:"price_per_token"`
}

// Catalog is the parsed seed file.
type Catalog struct {
	Developer Developer   `yaml:"developer"`
	Agents    []SeedAgent `yaml:"agents"`
}

// Load reads and validates a catalog seed file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the catalog for the fields seeding requires.
func (c *Catalog) Validate() error {
	if strings.TrimSpace(c.Developer.Username) == "" {
		return fmt.Errorf("catalog: developer.username is required")
	}
	if strings.TrimSpace(c.Developer.Password) == "" {
		return fmt.Errorf("catalog: developer.password is required")
	}
	if len(c.Agents) == 0 {
		return fmt.Errorf("catalog: at least one agent is required")
	}
	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("catalog: agents[%d]: name is required", i)
		}
		if strings.TrimSpace(a.Type) == "" {
			return fmt.Errorf("catalog: agents[%d] (%s): type is required", i, a.Name)
		}
		if a.PricePerToken <= 0 {
			return fmt.Errorf("catalog: agents[%d] (%s): price_per_token must be positive", i, a.Name)
		}
		if seen[a.Type] {
			return fmt.Errorf("catalog: duplicate agent type %q", a.Type)
		}
		seen[a.Type] = true
	}
	return nil
}
