package display

import (
	"bytes"
	"os"
	"strings"

	"github.com/mgutz/ansi"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

const kindField = "foremon.kind"

const (
	kindSuccess = "success"
	kindInfo    = "info"
	kindWarning = "warning"
	kindError   = "error"
	kindDebug   = "debug"
)

var kindColors = map[string]func(string) string{
	kindSuccess: ansi.ColorFunc("green"),
	kindInfo:    ansi.ColorFunc("cyan"),
	kindWarning: ansi.ColorFunc("yellow"),
	kindError:   ansi.ColorFunc("red"),
	kindDebug:   ansi.ColorFunc("blue"),
}

// useColors is fixed at startup: 256-color terminals only, and never
// when stderr is redirected.
var useColors = strings.Contains(os.Getenv("TERM"), "256") &&
	term.IsTerminal(int(os.Stderr.Fd()))

// SetColors overrides color detection. Returns the previous setting.
func SetColors(on bool) bool {
	mu.Lock()
	defer mu.Unlock()
	prev := useColors
	useColors = on
	return prev
}

// prefixFormatter renders "[name] message" lines, colored per message
// kind when the terminal supports it.
type prefixFormatter struct{}

func (f *prefixFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var buf bytes.Buffer

	text := entry.Message
	if prefix := Name(); prefix != "" {
		text = "[" + prefix + "] " + text
	}

	mu.Lock()
	colors := useColors
	mu.Unlock()
	if colors {
		kind, _ := entry.Data[kindField].(string)
		if color, ok := kindColors[kind]; ok {
			text = color(text)
		}
	}

	buf.WriteString(text)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
