// Package config models the hierarchical foremon task configuration
// parsed from the [tool.foremon] section of a pyproject-style TOML file.
package config

import (
	"os"
	"sort"
)

// DefaultIgnores is the ignore list applied to every task unless the
// unsafe flag clears it.
var DefaultIgnores = []string{
	".git/*", "__pycache__/*", ".*",
	".tox/*", ".venv/*", ".pytest_cache/*",
}

// Event names a filesystem event kind a task may subscribe to.
type Event string

// Recognized event kinds.
const (
	Created  Event = "created"
	Modified Event = "modified"
	Deleted  Event = "deleted"
	Moved    Event = "moved"
)

// DefaultEvents is the event subscription applied when a config does
// not name one.
var DefaultEvents = []Event{Modified, Deleted}

// ValidEvent reports whether e names a recognized event kind.
func ValidEvent(e Event) bool {
	switch e {
	case Created, Modified, Deleted, Moved:
		return true
	}
	return false
}

// Config describes one task: what to run and what to watch. Nested
// tables in the TOML source become entries in Configs.
type Config struct {
	Alias string

	// Script execution.
	Cwd         string
	Environment map[string]string
	Returncode  int
	Scripts     []string
	TermSignal  int

	// Change monitoring.
	IgnoreCase     bool
	IgnoreDefaults []string
	IgnoreDirs     bool
	Ignore         []string
	Paths          []string
	Patterns       []string
	Recursive      bool
	Events         []Event

	// Lifecycle.
	Skip    bool
	Order   int
	Configs []*Config
}

// New returns a Config populated with defaults.
func New(alias string) *Config {
	cwd, _ := os.Getwd()
	return &Config{
		Alias:          alias,
		Cwd:            cwd,
		Environment:    map[string]string{},
		Returncode:     0,
		Scripts:        nil,
		TermSignal:     defaultTermSignal,
		IgnoreCase:     true,
		IgnoreDefaults: append([]string(nil), DefaultIgnores...),
		IgnoreDirs:     true,
		Paths:          []string{"."},
		Patterns:       []string{"*"},
		Recursive:      true,
		Events:         append([]Event(nil), DefaultEvents...),
	}
}

// Name returns the task alias, defaulting to "default".
func (c *Config) Name() string {
	if c.Alias == "" {
		return "default"
	}
	return c.Alias
}

// GetConfigs returns every config in the subtree rooted at c, in
// ascending Order with ties broken by tree position. Duplicate aliases
// are not deduplicated here; the monitor rejects them.
func (c *Config) GetConfigs() []*Config {
	var all []*Config
	queue := []*Config{c}
	for len(queue) > 0 {
		cfg := queue[0]
		queue = queue[1:]
		all = append(all, cfg)
		queue = append(queue, cfg.Configs...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Order < all[j].Order
	})
	return all
}
