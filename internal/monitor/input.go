package monitor

import (
	"bufio"
	"strings"
	"syscall"

	"github.com/matutter/foremon/internal/display"
)

var (
	restartCommands = []string{"rs", "restart"}
	quitCommands    = []string{`\q`, "quit", "exit"}
)

// startInputReader consumes the interactive pipe line-by-line on its
// own goroutine. EOF on the pipe requests a graceful monitor exit, the
// same as a quit command.
func (m *Monitor) startInputReader() {
	m.mu.Lock()
	if m.inputStarted || m.pipe == nil {
		m.mu.Unlock()
		return
	}
	m.inputStarted = true
	pipe := m.pipe
	m.mu.Unlock()

	go func() {
		scanner := bufio.NewScanner(pipe)
		for scanner.Scan() {
			m.HandleInput(scanner.Text())
			if m.Terminating() {
				return
			}
		}
		// EOF on the interactive pipe is a quit.
		if !m.Terminating() {
			display.Debug("stopping ...")
			m.RequestExit()
		}
	}()
}

// HandleInput interprets one interactive command line. Recognized
// prefixes (case-insensitive): rs/restart terminates all running
// children and re-queues every task; \q/quit/exit stops the monitor.
func (m *Monitor) HandleInput(line string) {
	line = strings.ToLower(strings.TrimSpace(line))

	if hasAnyPrefix(line, restartCommands) {
		for _, t := range m.AllTasks() {
			if t.Running() {
				t.SendSignal(int(syscall.SIGTERM))
			}
		}
		m.QueueAllTasks()
		return
	}

	if hasAnyPrefix(line, quitCommands) {
		display.Debug("stopping ...")
		m.RequestExit()
		return
	}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
