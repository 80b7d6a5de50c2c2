package app

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// interpreter resolves the Python interpreter used for rewritten
// scripts.
func interpreter() string {
	for _, name := range []string{"python3", "python"} {
		if path, err := exec.LookPath(name); err == nil {
			return RelativeIfCwd(path)
		}
	}
	return "python3"
}

// GuessScript applies heuristics to the trailing positional script:
// plain .py files get an interpreter, package directories become
// `python -m` invocations, and `dir:func` forms become one-liner
// calls. The env map receives PYTHONPATH adjustments when a package
// parent directory must become importable. Scripts that match no
// heuristic are returned unchanged.
func GuessScript(script string, env map[string]string) string {
	if script == "" {
		return script
	}
	argv := splitShell(script)
	if len(argv) == 0 {
		return script
	}

	arg0 := argv[0]
	rewritten := false

	switch {
	case strings.HasSuffix(arg0, ".py"):
		if !isExecutable(arg0) {
			argv = append([]string{interpreter()}, argv...)
			rewritten = true
		}

	case isDirWith(arg0, "__main__.py"):
		prependPythonPath(env, filepath.Dir(arg0))
		argv = append([]string{interpreter(), "-m", filepath.Base(arg0)}, argv[1:]...)
		rewritten = true

	case strings.Contains(arg0, ":"):
		dir, fn, _ := strings.Cut(arg0, ":")
		if fn != "" && isDirWith(dir, "__init__.py") {
			prependPythonPath(env, filepath.Dir(dir))
			base := filepath.Base(dir)
			call := fmt.Sprintf("'from %s import %s; %s()'", base, fn, fn)
			argv = append([]string{interpreter(), "-c", call}, argv[1:]...)
			rewritten = true
		}

	case isDirWith(arg0, "__init__.py"):
		prependPythonPath(env, filepath.Dir(arg0))
		argv = append([]string{interpreter(), "-m", filepath.Base(arg0)}, argv[1:]...)
		rewritten = true
	}

	if !rewritten {
		return script
	}
	return strings.Join(argv, " ")
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&0o111 != 0
}

func isDirWith(dir, marker string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	_, err = os.Stat(filepath.Join(dir, marker))
	return err == nil
}

func prependPythonPath(env map[string]string, dir string) {
	if env == nil {
		return
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	if existing, ok := env["PYTHONPATH"]; ok && existing != "" {
		env["PYTHONPATH"] = abs + string(os.PathListSeparator) + existing
	} else if inherited := os.Getenv("PYTHONPATH"); inherited != "" {
		env["PYTHONPATH"] = abs + string(os.PathListSeparator) + inherited
	} else {
		env["PYTHONPATH"] = abs
	}
}
