package config

import "os"

// expandLists passes every watch-list entry through environment
// variable expansion ($VAR and ${VAR}).
func expandLists(cfg *Config) {
	cfg.Paths = expandEach(cfg.Paths)
	cfg.Patterns = expandEach(cfg.Patterns)
	cfg.Ignore = expandEach(cfg.Ignore)
}

func expandEach(l []string) []string {
	for i, s := range l {
		l[i] = os.ExpandEnv(s)
	}
	return l
}
