// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

type catalogFile struct {
	Defs     map[string]*Schema `yaml:"defs"`
	Commands []*Command         `yaml:"commands"`
}

// Catalog is the loaded command set.
type Catalog struct {
	byID  map[string]*Command
	order []string
}

// LoadCatalog parses the embedded catalog with strict field checking, so an
// unknown keyword or a misspelled mode fails at startup.
func LoadCatalog() (*Catalog, error) {
	return parseCatalog(catalogYAML)
}

func parseCatalog(raw []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var file catalogFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse command catalog: %w", err)
	}
	if len(file.Commands) == 0 {
		return nil, fmt.Errorf("command catalog is empty")
	}

	c := &Catalog{byID: make(map[string]*Command, len(file.Commands))}
	for _, cmd := range file.Commands {
		if err := checkCommand(cmd); err != nil {
			return nil, fmt.Errorf("command %q: %w", cmd.ID, err)
		}
		if _, dup := c.byID[cmd.ID]; dup {
			return nil, fmt.Errorf("duplicate command id %q", cmd.ID)
		}
		c.byID[cmd.ID] = cmd
		c.order = append(c.order, cmd.ID)
	}
	sort.Strings(c.order)
	return c, nil
}

func checkCommand(cmd *Command) error {
	if cmd.ID == "" {
		return fmt.Errorf("missing id")
	}
	switch cmd.Mode {
	case ModeWorkerDispatch, ModeWorkerSendTask, ModeOrchestratorInput, ModeSystemSync, ModeSystemReview:
	default:
		return fmt.Errorf("unknown mode %q", cmd.Mode)
	}
	switch cmd.Tier {
	case TierLow, TierMedium, TierHigh:
	default:
		return fmt.Errorf("unknown tier %q", cmd.Tier)
	}
	if cmd.Schema == nil || cmd.Schema.Type != "object" {
		return fmt.Errorf("schema must be an object envelope")
	}
	for _, field := range append(append([]string{}, cmd.RequiredNonEmpty...), cmd.RequiredAnyOf...) {
		if _, ok := cmd.Schema.Properties[field]; !ok {
			return fmt.Errorf("predicate field %q not in schema properties", field)
		}
	}
	return nil
}

// Lookup returns a command by id.
func (c *Catalog) Lookup(id string) (*Command, bool) {
	cmd, ok := c.byID[id]
	return cmd, ok
}

// List returns all commands sorted by id.
func (c *Catalog) List() []*Command {
	out := make([]*Command, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Len reports the catalog size.
func (c *Catalog) Len() int { return len(c.byID) }
