package config

import "time"

// Options is the flattened command-line view. Options merge into the
// root config before task materialization. ExecScripts come from the
// explicit script-list flag and are never rewritten by command
// guessing; Scripts is the trailing positional, which is.
type Options struct {
	Aliases       []string
	ConfigFile    string
	Cwd           string
	DryRun        bool
	Ignore        []string
	Paths         []string
	Patterns      []string
	NoGuess       bool
	ExecScripts   []string
	Scripts       []string
	Unsafe        bool
	UseAll        bool
	Verbose       bool
	AutoReload    bool
	Dwell         time.Duration
	MetricsListen string
}

// NewOptions returns Options with CLI defaults.
func NewOptions() *Options {
	return &Options{
		Aliases:    []string{"default"},
		AutoReload: true,
		Dwell:      200 * time.Millisecond,
	}
}

// ApplyTo merges the options into the root config. The scripts argument
// is the option script list after any command guessing; it extends the
// config's batch rather than replacing it.
func (o *Options) ApplyTo(c *Config, scripts []string) {
	c.Scripts = append(c.Scripts, scripts...)
	if o.Unsafe {
		c.IgnoreDefaults = nil
	}
	if o.Cwd != "" {
		c.Cwd = o.Cwd
	}
	if len(o.Ignore) > 0 {
		c.Ignore = append([]string(nil), o.Ignore...)
	}
	if len(o.Paths) > 0 {
		c.Paths = append([]string(nil), o.Paths...)
	}
	if len(o.Patterns) > 0 {
		c.Patterns = append([]string(nil), o.Patterns...)
	}
}
