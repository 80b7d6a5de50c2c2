// Package testutil provides shared test helpers.
package testutil

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/matutter/foremon/internal/display"
)

// Buffer is a goroutine-safe bytes.Buffer for capturing display
// output from observer and timer goroutines.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Contains reports whether the captured output contains s.
func (b *Buffer) Contains(s string) bool {
	return strings.Contains(b.String(), s)
}

// CaptureDisplay redirects display output into a buffer for the
// duration of the test. Colors are disabled so assertions see plain
// text.
func CaptureDisplay(t *testing.T) *Buffer {
	t.Helper()
	buf := &Buffer{}
	prevWriter := display.SetWriter(buf)
	prevColors := display.SetColors(false)
	prevVerbose := display.Verbose()
	t.Cleanup(func() {
		display.SetWriter(prevWriter)
		display.SetColors(prevColors)
		display.SetVerbose(prevVerbose)
	})
	return buf
}
