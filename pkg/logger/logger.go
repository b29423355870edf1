package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
)

// New builds a charm logger usable as an slog.Handler.
func New(w io.Writer, debug bool, jsonOutput bool) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}

	opts := log.Options{
		Level:           level,
		ReportTimestamp: true,
		Prefix:          "ytmp3-gateway",
	}
	if jsonOutput {
		opts.Formatter = log.JSONFormatter
	}
	return log.NewWithOptions(w, opts)
}

// SetupGlobal routes slog through charm on stderr, stdout stays free for command output.
func SetupGlobal(debug bool, jsonOutput bool) {
	slog.SetDefault(slog.New(New(os.Stderr, debug, jsonOutput)))
}
