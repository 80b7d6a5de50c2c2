// Package app wires configuration, tasks, and the monitor into the
// foremon application.
package app

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/matutter/foremon/internal/config"
	"github.com/matutter/foremon/internal/display"
	"github.com/matutter/foremon/internal/errdefs"
	"github.com/matutter/foremon/internal/metrics"
	"github.com/matutter/foremon/internal/monitor"
	"github.com/matutter/foremon/internal/task"
	"github.com/matutter/foremon/internal/version"
	"github.com/matutter/foremon/internal/watch"
)

// DefaultConfigName is the config file looked up in the working
// directory when none is given.
const DefaultConfigName = "pyproject.toml"

// App loads config, materializes tasks, and drives the monitor to
// completion.
type App struct {
	Options   *config.Options
	Config    *config.Config
	Monitor   *monitor.Monitor
	Collector *metrics.Collector

	// TaskFactory builds script tasks; tests substitute a factory
	// carrying a mock spawner.
	TaskFactory func(cfg *config.Config) *task.Task

	pipe io.Reader
}

// New creates an application for the given options.
func New(options *config.Options) (*App, error) {
	if options == nil {
		options = config.NewOptions()
	}

	a := &App{
		Options:     options,
		Config:      config.New(""),
		TaskFactory: task.New,
		pipe:        os.Stdin,
	}

	var monOpts []monitor.Option
	if options.MetricsListen != "" {
		a.Collector = metrics.New()
		monOpts = append(monOpts, monitor.WithMetrics(a.Collector))
	}
	monOpts = append(monOpts, monitor.WithPipe(a.pipe))

	mon, err := monitor.New(options.Dwell, monOpts...)
	if err != nil {
		return nil, err
	}
	a.Monitor = mon
	return a, nil
}

// SetPipe replaces the interactive input source before RunForever.
func (a *App) SetPipe(pipe io.Reader) {
	a.pipe = pipe
	a.Monitor.SetPipe(pipe)
}

// configFile returns the effective config path and whether it was
// explicitly requested.
func (a *App) configFile() (string, bool) {
	if a.Options.ConfigFile != "" {
		return a.Options.ConfigFile, true
	}
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, DefaultConfigName), false
}

// LoadConfig reads the config file and merges options into the root
// config. A missing default config is not an error; a missing explicit
// one is.
func (a *App) LoadConfig() error {
	path, explicit := a.configFile()

	cfg, err := config.Load(path)
	switch {
	case err == nil:
		if cfg == nil {
			display.Debug("no [tool.foremon] section specified in", RelativeIfCwd(path))
			a.Config = config.New("")
		} else {
			display.Success("loaded [tool.foremon] config from", RelativeIfCwd(path))
			a.Config = cfg
		}
	case errors.Is(err, fs.ErrNotExist):
		if explicit {
			display.Error("cannot find config file", path)
			return errdefs.ConfigFileMissing(path)
		}
		a.Config = config.New("")
	default:
		return err
	}

	a.extendDefaultConfig()
	return nil
}

// extendDefaultConfig merges the command-line options into the root
// config. Guessing applies only to the trailing positional script;
// scripts given via the explicit script-list flag run verbatim.
func (a *App) extendDefaultConfig() {
	positional := a.Options.Scripts
	if !a.Options.NoGuess {
		guessed := make([]string, 0, len(positional))
		for _, s := range positional {
			guessed = append(guessed, GuessScript(s, a.Config.Environment))
		}
		positional = guessed
	}

	scripts := append(append([]string(nil), a.Options.ExecScripts...), positional...)
	a.Options.ApplyTo(a.Config, scripts)
}

// makeTasks yields the tasks to register, walking the config tree in
// ascending order. A config with an empty script list never runs. Any
// other config runs when its alias is named in Options.Aliases (which
// overrides skip; the alias list defaults to "default") or when --all
// sweeps in every non-skipped config.
func (a *App) makeTasks() []*task.Task {
	var tasks []*task.Task

	aliasRequested := func(name string) bool {
		for _, alias := range a.Options.Aliases {
			if alias == name {
				return true
			}
		}
		return false
	}

	for _, cfg := range a.Config.GetConfigs() {
		name := cfg.Name()

		if len(cfg.Scripts) == 0 {
			display.Debug("task", name, "was skipped because scripts is empty")
			continue
		}

		if aliasRequested(name) {
			cfg.Skip = false
			tasks = append(tasks, a.TaskFactory(cfg))
			continue
		}

		if a.Options.UseAll && !cfg.Skip {
			tasks = append(tasks, a.TaskFactory(cfg))
			continue
		}

		if cfg.Skip {
			display.Debug("task", name, "is skipped")
		}
	}

	return tasks
}

// ResetMonitor clears the monitor and registers freshly materialized
// tasks, plus the auto-reload task when enabled.
func (a *App) ResetMonitor() error {
	a.Monitor.Reset()
	a.Monitor.SetPipe(a.pipe)

	for _, t := range a.makeTasks() {
		t.AddBeforeHook(a.beforeTaskRuns)
		if a.Collector != nil {
			t.AddAfterHook(a.afterTaskRuns)
		}
		if err := a.Monitor.AddTask(t); err != nil {
			return err
		}
		display.Debug("task", t.Name(), "ready for monitor")
	}

	if len(a.Monitor.AllTasks()) > 0 && a.Options.AutoReload {
		path, _ := a.configFile()
		if err := a.Monitor.AddTask(newReloadTask(a, path)); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) beforeTaskRuns(t *task.Task, trigger *watch.Event) error {
	if a.Options.Verbose && trigger != nil {
		display.Info("triggered because", RelativeIfCwd(trigger.Path), "was", string(trigger.Kind))
	}
	return nil
}

func (a *App) afterTaskRuns(t *task.Task, trigger *watch.Event) error {
	if t.Crashed() {
		a.Collector.TaskCrashTotal.WithLabelValues(t.Name()).Inc()
	}
	return nil
}

// RunForever loads config, materializes tasks, and blocks in the
// cradle until quit. The returned code is the process exit code.
func (a *App) RunForever() (int, error) {
	if err := a.LoadConfig(); err != nil {
		return errdefs.ExitCode(err), err
	}
	if err := a.ResetMonitor(); err != nil {
		return errdefs.ExitCode(err), err
	}

	if len(a.Monitor.AllTasks()) == 0 {
		display.Warning("no scripts or executable specified, nothing to do ...")
		return errdefs.CodeNothingToDo, nil
	}

	if a.Options.DryRun {
		display.Success("dry run complete")
		return 0, nil
	}

	if a.Collector != nil {
		a.Collector.SetBuildInfo(version.Version, runtime.Version())
		if addr, err := a.Collector.Serve(a.Options.MetricsListen); err != nil {
			display.Warning("cannot serve metrics", err)
		} else {
			display.Debug("metrics listening on", addr)
		}
	}

	defer a.Monitor.TerminateTasks()
	a.Monitor.StartInteractive(true)
	return 0, nil
}

// Reload pauses event intake, rebuilds the task set from a fresh
// config parse, then queues an initial run of every task.
func (a *App) Reload() error {
	release := a.Monitor.Paused()
	defer release()

	a.Monitor.Reset()

	err := a.LoadConfig()
	if err == nil {
		err = a.ResetMonitor()
	}
	if err != nil {
		if a.Collector != nil {
			a.Collector.ReloadErrorTotal.Inc()
		}
		return err
	}
	if a.Collector != nil {
		a.Collector.ReloadTotal.Inc()
	}

	release()
	a.Monitor.QueueAllTasks()
	return nil
}
