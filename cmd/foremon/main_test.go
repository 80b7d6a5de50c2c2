package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/matutter/foremon/internal/errdefs"
	"github.com/matutter/foremon/internal/testutil"
	"github.com/matutter/foremon/internal/version"
)

func TestVersionFlag(t *testing.T) {
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != version.Version {
		t.Errorf("output = %q, want %q", got, version.Version)
	}
}

func TestWantList(t *testing.T) {
	got := wantList([]string{"a,b", "c d", "", "e"})
	want := []string{"a", "b", "c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("wantList = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("wantList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExpandExt(t *testing.T) {
	got := expandExt([]string{"py,*.toml", ".go"})
	want := []string{"*py", "*.toml", "*.go"}
	if len(got) != len(want) {
		t.Fatalf("expandExt = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expandExt[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuildOptions(t *testing.T) {
	flags := &cliFlags{
		ext:      []string{"py"},
		watch:    []string{"src,lib"},
		scripts:  []string{"make lint"},
		reload:   true,
		noReload: true,
		dwell:    0.5,
		aliases:  []string{"default"},
	}
	opts := buildOptions(flags, []string{"echo", "hello"})

	if len(opts.Patterns) != 1 || opts.Patterns[0] != "*py" {
		t.Errorf("patterns = %v", opts.Patterns)
	}
	if len(opts.Paths) != 2 || opts.Paths[1] != "lib" {
		t.Errorf("paths = %v", opts.Paths)
	}
	// -x scripts and the trailing positional stay separate so only
	// the positional is subject to command guessing.
	if len(opts.ExecScripts) != 1 || opts.ExecScripts[0] != "make lint" {
		t.Errorf("exec scripts = %v", opts.ExecScripts)
	}
	if len(opts.Scripts) != 1 || opts.Scripts[0] != "echo hello" {
		t.Errorf("scripts = %v", opts.Scripts)
	}
	if opts.AutoReload {
		t.Error("auto-reload should be off with --no-reload")
	}
	if opts.Dwell != 500*time.Millisecond {
		t.Errorf("dwell = %v", opts.Dwell)
	}
}

func TestDryRunThroughCLI(t *testing.T) {
	buf := testutil.CaptureDisplay(t)

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--dry-run", "-n", "--no-reload", "--", "true"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !buf.Contains("dry run complete") {
		t.Errorf("missing dry run message: %q", buf.String())
	}
}

func TestMissingWatchPathThroughCLI(t *testing.T) {
	buf := testutil.CaptureDisplay(t)

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"-w", "/missing-foremon-path", "-n", "--no-reload", "--", "true"})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing watch path")
	}
	if code := errdefs.ExitCode(err); code != errdefs.CodeNothingToDo {
		t.Errorf("exit code = %d, want %d", code, errdefs.CodeNothingToDo)
	}
	if !buf.Contains("cannot watch /missing-foremon-path") {
		t.Errorf("missing warning: %q", buf.String())
	}
}
