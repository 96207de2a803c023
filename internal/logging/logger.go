package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// New — логгер приложения; при debug включаются уровень Debug и caller
func New(w io.Writer, debug bool) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{
		ReportTimestamp: true,
		Prefix:          "uploader",
		Level:           log.InfoLevel,
	}
	if debug {
		opts.ReportCaller = true
		opts.Level = log.DebugLevel
	}
	return log.NewWithOptions(w, opts)
}

// Discard — логгер для тестов
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}
