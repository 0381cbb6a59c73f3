// Package config implements the engine-wide configuration surface:
// default page size and backend selection loaded from YAML, plus a
// project-name glob overlay ported from the teacher's config.RuleSet /
// ConfigForPath idiom (config/ruleset.go, config/globmatch.go), generalized
// from file-path rules to project-name rules.
package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Options is the engine-wide configuration, either defaulted or overridden
// by a matching Rule.
type Options struct {
	DefaultPageSize int    `yaml:"default_page_size"`
	CacheBackend    string `yaml:"cache_backend"`
	LogLevel        string `yaml:"log_level"`
}

// DefaultOptions returns the engine's built-in defaults.
func DefaultOptions() Options {
	return Options{
		DefaultPageSize: 250,
		CacheBackend:    "memory",
		LogLevel:        "info",
	}
}

// Apply overlays non-zero fields of partial onto o, returning the result.
func (o Options) Apply(partial Options) Options {
	if partial.DefaultPageSize != 0 {
		o.DefaultPageSize = partial.DefaultPageSize
	}
	if partial.CacheBackend != "" {
		o.CacheBackend = partial.CacheBackend
	}
	if partial.LogLevel != "" {
		o.LogLevel = partial.LogLevel
	}
	return o
}

// Rule overrides Options for projects whose name matches Pattern, applied
// in order when multiple rules match (mirrors the teacher's config.Rule,
// generalized from a file-path glob to a project-name glob).
type Rule struct {
	Name    string  `yaml:"name"`
	Pattern string  `yaml:"pattern"`
	Options Options `yaml:"options"`
}

// RuleSet is an ordered list of Rules layered on top of DefaultOptions.
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// Validate checks that every rule's pattern is non-empty; rules never fail
// to parse like the teacher's PartialConfig.Validate, but an empty pattern
// would match nothing productive.
func (rs RuleSet) Validate() error {
	for _, r := range rs.Rules {
		if r.Pattern == "" {
			return errors.Errorf("config rule %q has an empty pattern", r.Name)
		}
	}
	return nil
}

// OptionsForProject returns the effective Options for a project name:
// DefaultOptions with every matching rule applied in order (spec §4.K).
func (rs RuleSet) OptionsForProject(name string) Options {
	opts := DefaultOptions()
	for _, r := range rs.Rules {
		if GlobMatch(r.Pattern, name) {
			opts = opts.Apply(r.Options)
		}
	}
	return opts
}

// LoadRuleSet parses a RuleSet from YAML data.
func LoadRuleSet(data []byte) (RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, errors.Wrap(err, "yaml.Unmarshal")
	}
	if err := rs.Validate(); err != nil {
		return RuleSet{}, err
	}
	return rs, nil
}

// DefaultPath resolves $XDG_CONFIG_HOME/rowquery/config.yaml, exactly as the
// teacher's app.ConfigPath does for its own config file.
func DefaultPath() (string, error) {
	return xdg.ConfigFile(filepath.Join("rowquery", "config.yaml"))
}
