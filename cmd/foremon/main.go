// Command foremon watches the filesystem and restarts configured
// scripts when relevant files change.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/matutter/foremon/internal/app"
	"github.com/matutter/foremon/internal/config"
	"github.com/matutter/foremon/internal/display"
	"github.com/matutter/foremon/internal/errdefs"
	"github.com/matutter/foremon/internal/guard"
	"github.com/matutter/foremon/internal/version"
)

type cliFlags struct {
	showVersion   bool
	configFile    string
	ext           []string
	watch         []string
	ignore        []string
	verbose       bool
	scripts       []string
	unsafe        bool
	noGuess       bool
	chdir         string
	useAll        bool
	aliases       []string
	reload        bool
	noReload      bool
	dryRun        bool
	dwell         float64
	metricsListen string
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{}

	cmd := &cobra.Command{
		Use:           "foremon [flags] -- [args...]",
		Short:         "foremon -- restart scripts when watched files change",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, args)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&flags.showVersion, "version", false, "Print version and exit.")
	f.StringVarP(&flags.configFile, "config-file", "f", "", "Path to file config.")
	f.StringArrayVarP(&flags.ext, "ext", "e", nil, "File extensions to watch.")
	f.StringArrayVarP(&flags.watch, "watch", "w", nil, "File or directory patterns to watched for changes.")
	f.StringArrayVarP(&flags.ignore, "ignore", "i", nil, "File or directory patterns to ignore.")
	f.BoolVarP(&flags.verbose, "verbose", "V", false, "Show details on what is causing restarts.")
	f.StringArrayVarP(&flags.scripts, "exec", "x", nil, "Script to execute.")
	f.BoolVarP(&flags.unsafe, "unsafe", "u", false, "Do not apply the default ignore list (.git, __pycache__/, etc...).")
	f.BoolVarP(&flags.noGuess, "no-guess", "n", false, "Do not try to run commands as a script or module.")
	f.StringVarP(&flags.chdir, "chdir", "C", "", "Change to this directory before starting.")
	f.BoolVarP(&flags.useAll, "all", "A", false, "Run all scripts in the config unless skipped.")
	f.StringArrayVarP(&flags.aliases, "alias", "a", []string{"default"}, "Run the alias from the config.")
	f.BoolVar(&flags.reload, "reload", true, "Automatically reload the config if it changes.")
	f.BoolVar(&flags.noReload, "no-reload", false, "Do not reload the config if it changes.")
	f.BoolVar(&flags.dryRun, "dry-run", false, "")
	f.Float64VarP(&flags.dwell, "dwell", "d", 0.2, "Seconds to wait for events to settle before restarting.")
	f.StringVar(&flags.metricsListen, "metrics-listen", "", "Expose Prometheus metrics on this address.")
	_ = f.MarkHidden("dry-run")

	return cmd
}

// listSeparators splits multi-value flag items on whitespace and
// commas, so -e "py,toml" and -e py -e toml are equivalent.
var listSeparators = regexp.MustCompile(`[\s,]+`)

func wantList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, item := range listSeparators.Split(v, -1) {
			if item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// expandExt turns extension shorthands into globs: a value without a
// leading * is prefixed with one.
func expandExt(values []string) []string {
	items := wantList(values)
	for i, v := range items {
		if !strings.HasPrefix(v, "*") {
			items[i] = "*" + v
		}
	}
	return items
}

func buildOptions(flags *cliFlags, args []string) *config.Options {
	opts := config.NewOptions()
	opts.ConfigFile = flags.configFile
	opts.Patterns = expandExt(flags.ext)
	opts.Paths = wantList(flags.watch)
	opts.Ignore = wantList(flags.ignore)
	opts.Verbose = flags.verbose
	opts.Unsafe = flags.unsafe
	opts.NoGuess = flags.noGuess
	opts.Cwd = flags.chdir
	opts.UseAll = flags.useAll
	opts.Aliases = flags.aliases
	opts.AutoReload = flags.reload && !flags.noReload
	opts.DryRun = flags.dryRun
	opts.Dwell = time.Duration(flags.dwell * float64(time.Second))
	opts.MetricsListen = flags.metricsListen

	for _, s := range flags.scripts {
		if s != "" {
			opts.ExecScripts = append(opts.ExecScripts, s)
		}
	}
	if trailing := strings.Join(args, " "); trailing != "" {
		opts.Scripts = append(opts.Scripts, trailing)
	}
	return opts
}

func run(cmd *cobra.Command, flags *cliFlags, args []string) error {
	if flags.showVersion {
		fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		return nil
	}

	display.SetVerbose(flags.verbose)

	if flags.chdir != "" {
		if err := os.Chdir(flags.chdir); err != nil {
			return fmt.Errorf("cannot chdir to %s: %w", flags.chdir, err)
		}
	}

	options := buildOptions(flags, args)

	a, err := app.New(options)
	if err != nil {
		return err
	}

	// SIGINT/SIGTERM take the same graceful path as the quit command.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		a.RequestExit()
	}()

	code, err := a.RunForever()
	if err != nil {
		return err
	}
	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// exitError carries a non-zero exit code without an error message of
// its own.
type exitError struct{ code int }

func (e *exitError) Error() string { return "" }

func main() {
	display.SetName("foremon")
	defer guard.Cleanup()

	if err := newRootCmd().Execute(); err != nil {
		guard.Cleanup()

		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}

		var coded *errdefs.Error
		if errors.As(err, &coded) {
			display.Error(fmt.Sprintf("error %d: %s", coded.Code, coded.Message))
			os.Exit(coded.Code)
		}

		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
