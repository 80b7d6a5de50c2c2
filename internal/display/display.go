// Package display is the user-facing diagnostic sink. All supervisor
// output goes through it so tests can capture and assert on messages.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu      sync.Mutex
	name    string
	verbose bool
	log     = newLogger(os.Stderr)
)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&prefixFormatter{})
	return l
}

// SetName sets the bracketed prefix shown on every line.
func SetName(n string) {
	mu.Lock()
	defer mu.Unlock()
	name = n
}

// Name returns the current display prefix.
func Name() string {
	mu.Lock()
	defer mu.Unlock()
	return name
}

// SetVerbose toggles debug output.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// Verbose reports whether debug output is enabled.
func Verbose() bool {
	mu.Lock()
	defer mu.Unlock()
	return verbose
}

// SetWriter redirects output, returning the previous writer.
func SetWriter(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	prev := log.Out
	log.SetOutput(w)
	return prev
}

func join(args []any) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		s := fmt.Sprint(a)
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// Success reports normal lifecycle progress.
func Success(args ...any) {
	log.WithField(kindField, kindSuccess).Info(join(args))
}

// Info reports neutral informational messages.
func Info(args ...any) {
	log.WithField(kindField, kindInfo).Info(join(args))
}

// Warning reports recoverable problems.
func Warning(args ...any) {
	log.WithField(kindField, kindWarning).Warn(join(args))
}

// Error reports failures. A trailing non-nil error is appended to the
// message.
func Error(args ...any) {
	log.WithField(kindField, kindError).Error(join(args))
}

// Debug reports diagnostics shown only in verbose mode.
func Debug(args ...any) {
	if !Verbose() {
		return
	}
	log.WithField(kindField, kindDebug).Debug(join(args))
}
