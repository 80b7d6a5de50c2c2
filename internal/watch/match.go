package watch

import (
	"path/filepath"
	"strings"
)

// matchPattern matches a glob pattern against a path with right-anchored
// segment semantics: a pattern without a separator matches the basename,
// and a pattern with separators matches the trailing path segments. This
// lets "pyproject.toml" match "/work/pyproject.toml" and ".git/*" match
// anything directly inside any .git directory.
func matchPattern(pattern, path string, caseSensitive bool) bool {
	if !caseSensitive {
		pattern = strings.ToLower(pattern)
		path = strings.ToLower(path)
	}

	patSegs := splitSegments(pattern)
	pathSegs := splitSegments(path)
	if len(patSegs) == 0 || len(patSegs) > len(pathSegs) {
		return false
	}

	tail := pathSegs[len(pathSegs)-len(patSegs):]
	for i, seg := range patSegs {
		ok, err := filepath.Match(seg, tail[i])
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func splitSegments(p string) []string {
	p = strings.Trim(filepath.ToSlash(p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// matchAny reports whether any pattern matches the path.
func matchAny(patterns []string, path string, caseSensitive bool) bool {
	for _, pattern := range patterns {
		if matchPattern(pattern, path, caseSensitive) {
			return true
		}
	}
	return false
}
