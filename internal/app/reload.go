package app

import (
	"path/filepath"

	"github.com/matutter/foremon/internal/config"
	"github.com/matutter/foremon/internal/display"
	"github.com/matutter/foremon/internal/watch"
)

// AutoReloadAlias names the internal config-reload task.
const AutoReloadAlias = "foremon-auto-reload"

// reloader is the narrow capability the reload task needs from the
// application; the task never owns or extends the app's lifetime.
type reloader interface {
	Reload() error
	RequestExit()
}

// RequestExit asks the monitor to shut down.
func (a *App) RequestExit() {
	a.Monitor.RequestExit()
}

// reloadTask watches the config file and rebuilds the application when
// it changes. It runs no scripts and holds no child process.
type reloadTask struct {
	cfg        *config.Config
	app        reloader
	configFile string
}

func newReloadTask(app reloader, configFile string) *reloadTask {
	cfg := config.New(AutoReloadAlias)
	cfg.Paths = []string{filepath.Dir(configFile)}
	cfg.Patterns = []string{filepath.Base(configFile)}
	cfg.Events = []config.Event{config.Created, config.Modified, config.Moved}
	cfg.Recursive = false
	// The reload task always runs last in a drain so real tasks fire
	// against the config they were built from.
	cfg.Order = int(^uint(0) >> 1)
	return &reloadTask{cfg: cfg, app: app, configFile: configFile}
}

func (r *reloadTask) Name() string           { return AutoReloadAlias }
func (r *reloadTask) Config() *config.Config { return r.cfg }
func (r *reloadTask) Terminate()             {}
func (r *reloadTask) SendSignal(sig int)     {}
func (r *reloadTask) Running() bool          { return false }

// Run reloads the application. Explicit (nil-trigger) runs are
// ignored; only a real config file event forces a reload.
func (r *reloadTask) Run(trigger *watch.Event) {
	if trigger == nil {
		return
	}
	display.Info("config", RelativeIfCwd(trigger.Path), "was", string(trigger.Kind)+", reloading ...")
	if err := r.app.Reload(); err != nil {
		display.Error("fatal error, stopping", err)
		r.app.RequestExit()
	}
}
