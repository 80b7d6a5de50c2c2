package app

import (
	"os"
	"path/filepath"
	"strings"
)

// RelativeIfCwd shortens path to a relative form when it lives under
// the current working directory.
func RelativeIfCwd(path string) string {
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, cwd) {
		if rel, err := filepath.Rel(cwd, path); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return path
}

// splitShell splits a command line on whitespace while respecting
// single and double quotes, mirroring POSIX shell word splitting
// closely enough for command guessing.
func splitShell(s string) []string {
	var (
		args    []string
		current strings.Builder
		quote   rune
		started bool
	)

	flush := func() {
		if started {
			args = append(args, current.String())
			current.Reset()
			started = false
		}
	}

	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			started = true
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			current.WriteRune(r)
			started = true
		}
	}
	flush()
	return args
}
