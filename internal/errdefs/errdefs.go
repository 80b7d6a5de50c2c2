// Package errdefs defines coded errors whose codes double as process
// exit codes.
package errdefs

import (
	"errors"
	"fmt"
	"syscall"
)

// Exit codes surfaced by the CLI.
const (
	CodeNothingToDo = 2
	CodeConfigFile  = int(syscall.ENOENT)
	CodeDuplicate   = int(syscall.EINVAL)
)

// Error is an error with an associated exit code.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string { return e.Message }

// New creates a coded error.
func New(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NothingToDo reports that no tasks or watch paths were usable.
func NothingToDo(format string, args ...any) *Error {
	return New(CodeNothingToDo, format, args...)
}

// ConfigFileMissing reports an explicitly named config file that does
// not exist.
func ConfigFileMissing(path string) *Error {
	return New(CodeConfigFile, "cannot find config file %s", path)
}

// DuplicateAlias reports a task alias registered twice.
func DuplicateAlias(alias string) *Error {
	return New(CodeDuplicate, "duplicate task alias %q", alias)
}

// ExitCode extracts the exit code from err, or 1 for uncoded errors.
func ExitCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 1
}
