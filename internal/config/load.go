package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// EnvPrefix is prepended to upper-cased field names when looking up
// environment defaults (e.g. FOREMON_PATTERNS for a missing patterns
// field).
const EnvPrefix = "FOREMON_"

// Load reads path and parses its [tool.foremon] section. The returned
// config is nil when the file has no such section.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config: %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse parses TOML from raw bytes. The path argument is used only for
// error messages. Any key under [tool.foremon] whose value is itself a
// table becomes a child config aliased by that key, recursively.
// Unknown scalar keys are rejected.
func Parse(data []byte, path string) (*Config, error) {
	var raw map[string]any
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("config parse error in %s: %w", path, err)
	}

	tool, _ := raw["tool"].(map[string]any)
	section, _ := tool["foremon"].(map[string]any)
	if section == nil {
		return nil, nil
	}

	// The order counter restarts on every parse so reloads assign
	// identical (alias, order) pairs.
	p := &parser{pos: keyPositions(md)}
	cfg, err := p.build("", "tool.foremon", section)
	if err != nil {
		return nil, fmt.Errorf("config error in %s: %w", path, err)
	}
	return cfg, nil
}

// keyPositions records the document order of every TOML key so child
// tables are materialized in declaration order.
func keyPositions(md toml.MetaData) map[string]int {
	pos := make(map[string]int)
	for i, key := range md.Keys() {
		pos[key.String()] = i
	}
	return pos
}

type parser struct {
	pos     map[string]int
	counter int
}

func (p *parser) build(alias, path string, m map[string]any) (*Config, error) {
	cfg := New(alias)

	explicitOrder := false
	var children []childEntry

	for key, value := range m {
		kpath := path + "." + key
		switch key {
		case "alias":
			s, err := asString(value, kpath)
			if err != nil {
				return nil, err
			}
			cfg.Alias = s
		case "cwd":
			s, err := asString(value, kpath)
			if err != nil {
				return nil, err
			}
			cfg.Cwd = s
		case "environment":
			env, err := asStringMap(value, kpath)
			if err != nil {
				return nil, err
			}
			cfg.Environment = env
		case "returncode":
			n, err := asInt(value, kpath)
			if err != nil {
				return nil, err
			}
			cfg.Returncode = n
		case "scripts":
			l, err := asStringList(value, kpath)
			if err != nil {
				return nil, err
			}
			cfg.Scripts = l
		case "term_signal":
			sig, err := ParseSignal(value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", kpath, err)
			}
			cfg.TermSignal = sig
		case "ignore_case":
			b, err := asBool(value, kpath)
			if err != nil {
				return nil, err
			}
			cfg.IgnoreCase = b
		case "ignore_defaults":
			l, err := asStringList(value, kpath)
			if err != nil {
				return nil, err
			}
			cfg.IgnoreDefaults = l
		case "ignore_dirs":
			b, err := asBool(value, kpath)
			if err != nil {
				return nil, err
			}
			cfg.IgnoreDirs = b
		case "ignore":
			l, err := asStringList(value, kpath)
			if err != nil {
				return nil, err
			}
			cfg.Ignore = l
		case "paths":
			l, err := asStringList(value, kpath)
			if err != nil {
				return nil, err
			}
			cfg.Paths = l
		case "patterns":
			l, err := asStringList(value, kpath)
			if err != nil {
				return nil, err
			}
			cfg.Patterns = l
		case "recursive":
			b, err := asBool(value, kpath)
			if err != nil {
				return nil, err
			}
			cfg.Recursive = b
		case "events":
			l, err := asStringList(value, kpath)
			if err != nil {
				return nil, err
			}
			events := make([]Event, 0, len(l))
			for _, e := range l {
				ev := Event(e)
				if !ValidEvent(ev) {
					return nil, fmt.Errorf("%s: invalid event %q", kpath, e)
				}
				events = append(events, ev)
			}
			cfg.Events = events
		case "skip":
			b, err := asBool(value, kpath)
			if err != nil {
				return nil, err
			}
			cfg.Skip = b
		case "order":
			n, err := asInt(value, kpath)
			if err != nil {
				return nil, err
			}
			cfg.Order = n
			explicitOrder = true
		case "configs":
			// [[tool.foremon.configs]] decodes as []map[string]any;
			// an inline array of inline tables decodes as []any.
			var items []map[string]any
			switch list := value.(type) {
			case []map[string]any:
				items = list
			case []any:
				for i, item := range list {
					sub, ok := item.(map[string]any)
					if !ok {
						return nil, fmt.Errorf("%s[%d]: expected a table", kpath, i)
					}
					items = append(items, sub)
				}
			default:
				return nil, fmt.Errorf("%s: expected an array of tables", kpath)
			}
			for i, sub := range items {
				subAlias, _ := sub["alias"].(string)
				children = append(children, childEntry{
					alias: subAlias,
					path:  kpath,
					m:     sub,
					seq:   p.pos[kpath] + i,
				})
			}
		default:
			// Table-valued keys are nested child configs; scalars are
			// a schema violation.
			sub, ok := value.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("unknown config key %s", kpath)
			}
			children = append(children, childEntry{
				alias: key,
				path:  kpath,
				m:     sub,
				seq:   p.pos[kpath],
			})
		}
	}

	p.applyEnvDefaults(cfg, m)

	if !explicitOrder {
		cfg.Order = p.counter
	}
	p.counter++

	expandLists(cfg)

	sort.SliceStable(children, func(i, j int) bool {
		return children[i].seq < children[j].seq
	})
	for _, child := range children {
		sub, err := p.build(child.alias, child.path, child.m)
		if err != nil {
			return nil, err
		}
		cfg.Configs = append(cfg.Configs, sub)
	}

	return cfg, nil
}

type childEntry struct {
	alias string
	path  string
	m     map[string]any
	seq   int
}

// applyEnvDefaults fills fields absent from the TOML source with
// FOREMON_* environment values.
func (p *parser) applyEnvDefaults(cfg *Config, m map[string]any) {
	lookup := func(field string) (string, bool) {
		return os.LookupEnv(EnvPrefix + strings.ToUpper(field))
	}
	has := func(field string) bool {
		_, ok := m[field]
		return ok
	}

	if !has("cwd") {
		if v, ok := lookup("cwd"); ok {
			cfg.Cwd = v
		}
	}
	if !has("returncode") {
		if v, ok := lookup("returncode"); ok {
			if n, err := asInt(v, "returncode"); err == nil {
				cfg.Returncode = n
			}
		}
	}
	if !has("term_signal") {
		if v, ok := lookup("term_signal"); ok {
			if sig, err := ParseSignal(v); err == nil {
				cfg.TermSignal = sig
			}
		}
	}
	if !has("skip") {
		if v, ok := lookup("skip"); ok {
			cfg.Skip = strings.EqualFold(v, "true") || v == "1"
		}
	}
	for field, target := range map[string]*[]string{
		"scripts":  &cfg.Scripts,
		"paths":    &cfg.Paths,
		"patterns": &cfg.Patterns,
		"ignore":   &cfg.Ignore,
	} {
		if !has(field) {
			if v, ok := lookup(field); ok {
				*target = splitList(v)
			}
		}
	}
}

// splitList splits an environment list value on commas and whitespace.
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func asString(v any, path string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: expected a string, got %T", path, v)
	}
	return strings.TrimSpace(s), nil
}

func asInt(v any, path string) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int:
		return n, nil
	case string:
		var out int
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%d", &out); err == nil {
			return out, nil
		}
	}
	return 0, fmt.Errorf("%s: expected an integer, got %v", path, v)
}

func asBool(v any, path string) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s: expected a boolean, got %T", path, v)
	}
	return b, nil
}

func asStringList(v any, path string) ([]string, error) {
	switch l := v.(type) {
	case []any:
		out := make([]string, 0, len(l))
		for i, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: expected a string, got %T", path, i, item)
			}
			out = append(out, strings.TrimSpace(s))
		}
		return out, nil
	case string:
		// A bare string is promoted to a one-element list.
		return []string{strings.TrimSpace(l)}, nil
	default:
		return nil, fmt.Errorf("%s: expected a list of strings, got %T", path, v)
	}
}

func asStringMap(v any, path string) (map[string]string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected a table, got %T", path, v)
	}
	out := make(map[string]string, len(m))
	for k, item := range m {
		switch s := item.(type) {
		case string:
			out[k] = s
		case int64:
			out[k] = fmt.Sprintf("%d", s)
		case bool:
			out[k] = fmt.Sprintf("%t", s)
		default:
			return nil, fmt.Errorf("%s.%s: expected a string value, got %T", path, k, item)
		}
	}
	return out, nil
}
