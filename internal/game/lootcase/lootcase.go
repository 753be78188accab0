// Package lootcase provides loot case definitions loaded from YAML and a
// registry of validated outcome tables keyed by case ID.
package lootcase

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/fairplay/internal/game/fairness"
)

// Case defines an openable loot case: a price and an ordered outcome table.
type Case struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Price       float64            `yaml:"price"`
	Outcomes    []fairness.Outcome `yaml:"outcomes"`

	table *fairness.Table
}

// Validate checks the case invariants and builds its outcome table.
//
// Precondition: c must not be nil.
// Postcondition: Returns nil iff ID and Name are non-empty, Price is finite and
// >= 0, every outcome names an item, and the outcomes form a valid
// fairness.Table; Table() is non-nil afterwards.
func (c *Case) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("loot case: id must not be empty")
	}
	if c.Name == "" {
		return fmt.Errorf("loot case %q: name must not be empty", c.ID)
	}
	if math.IsNaN(c.Price) || math.IsInf(c.Price, 0) || c.Price < 0 {
		return fmt.Errorf("loot case %q: price must be a finite value >= 0, got %v", c.ID, c.Price)
	}
	for i, o := range c.Outcomes {
		if o.Item == "" {
			return fmt.Errorf("loot case %q: outcome[%d] must have a non-empty item", c.ID, i)
		}
	}
	table, err := fairness.NewTable(c.Outcomes)
	if err != nil {
		return fmt.Errorf("loot case %q: %w", c.ID, err)
	}
	c.table = table
	return nil
}

// Table returns the validated outcome table, or nil before Validate succeeds.
func (c *Case) Table() *fairness.Table {
	return c.table
}

// ParseCase decodes a single case from raw YAML bytes without validating it.
// Table() is nil until Validate succeeds.
func ParseCase(data []byte) (*Case, error) {
	var c Case
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing case YAML: %w", err)
	}
	return &c, nil
}

// LoadCaseFromBytes parses a single case from raw YAML bytes.
//
// Postcondition: Returns a validated *Case, or an error.
func LoadCaseFromBytes(data []byte) (*Case, error) {
	c, err := ParseCase(data)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadCases reads all *.yaml files in dir and returns the parsed cases.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns all cases or an error on the first parse or validate
// failure; on error, the partial result is discarded.
func LoadCases(dir string) ([]*Case, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading case dir %q: %w", dir, err)
	}

	var cases []*Case
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}

		c, err := LoadCaseFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		cases = append(cases, c)
	}
	return cases, nil
}
