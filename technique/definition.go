package technique

import (
	"errors"
	"fmt"
	"io/fs"

	"gotraverse/nat"
)

var ErrNoRules = errors.New("technique declares no rules")

// Definition is a technique as written in the config file.
//
//	- name: Relaying
//	  direct: false
//	  minSetupTime: 5
//	  maxSetupTime: 7
//	  rules:
//	    - dont_care,dont_care,dont_care,dont_care
//	  rulesFile: relaying.rules
type Definition struct {
	Name         string   `yaml:"name"`
	Direct       bool     `yaml:"direct"`
	MinSetupTime Cost     `yaml:"minSetupTime"`
	MaxSetupTime Cost     `yaml:"maxSetupTime"`
	Rules        []string `yaml:"rules"`
	RulesFile    string   `yaml:"rulesFile"`
}

// FromDefinition turns a config entry into a Technique. RulesFile is opened in fsys, and its rules
// are added after the inline ones. Any malformed rule fails the whole definition.
func FromDefinition(def Definition, fsys fs.FS) (Technique, error) {
	rules, err := nat.ParseRuleLines(def.Rules)
	if err != nil {
		return nil, fmt.Errorf("technique %s: %w", def.Name, err)
	}

	if def.RulesFile != "" {
		if fsys == nil {
			return nil, fmt.Errorf("technique %s: no filesystem to read %s from", def.Name, def.RulesFile)
		}
		f, err := fsys.Open(def.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("technique %s: %w", def.Name, err)
		}
		defer f.Close()
		fileRules, err := nat.ParseRules(f)
		if err != nil {
			return nil, fmt.Errorf("technique %s: %s: %w", def.Name, def.RulesFile, err)
		}
		rules = append(rules, fileRules...)
	}

	if len(rules) == 0 {
		return nil, fmt.Errorf("technique %s: %w", def.Name, ErrNoRules)
	}

	meta := Metadata{
		Name:         def.Name,
		Direct:       def.Direct,
		MinSetupTime: def.MinSetupTime,
		MaxSetupTime: def.MaxSetupTime,
		Rules:        rules,
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return New(meta), nil
}

// RegistryFromDefinitions builds a registry from a config file's technique list.
func RegistryFromDefinitions(defs []Definition, fsys fs.FS) (*Registry, error) {
	r := &Registry{byName: make(map[string]Technique)}
	for _, def := range defs {
		t, err := FromDefinition(def, fsys)
		if err != nil {
			return nil, err
		}
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}
