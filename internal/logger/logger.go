// Package logger provides leveled diagnostic output for the ledger backed by pterm.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
)

type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// Log is the process-wide logger. It writes to stderr so that stdout stays
// free for command output.
var Log = &Logger{level: LevelInfo}

type Logger struct {
	level Level
}

// Init points every pterm prefix printer at w.
func Init(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}

	pterm.Info.Writer = w
	pterm.Success.Writer = w
	pterm.Warning.Writer = w
	pterm.Error.Writer = w
	pterm.Debug.Writer = w
}

func (l *Logger) Enabled(level Level) bool {
	return l.level <= level
}

func (l *Logger) Tracef(format string, args ...interface{}) {
	if l.Enabled(LevelTrace) {
		pterm.Debug.Printfln(format, args...)
	}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.Enabled(LevelDebug) {
		pterm.Debug.Printfln(format, args...)
	}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	if l.Enabled(LevelInfo) {
		pterm.Info.Printfln(format, args...)
	}
}

// Successf reports a completed step at info level.
func (l *Logger) Successf(format string, args ...interface{}) {
	if l.Enabled(LevelInfo) {
		pterm.Success.Printfln(format, args...)
	}
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	if l.Enabled(LevelWarn) {
		pterm.Warning.Printfln(format, args...)
	}
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.Enabled(LevelError) {
		pterm.Error.Printfln(format, args...)
	}
}

// SetLevel changes the level of Log. Debug output also enables pterm's
// debug printer, which is silent by default.
func SetLevel(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		Log.level = LevelTrace
	case "debug":
		Log.level = LevelDebug
	case "info", "":
		Log.level = LevelInfo
	case "warn", "warning":
		Log.level = LevelWarn
	case "error":
		Log.level = LevelError
	default:
		return fmt.Errorf("invalid log level: %s", level)
	}

	if Log.level <= LevelDebug {
		pterm.EnableDebugMessages()
	} else {
		pterm.DisableDebugMessages()
	}

	return nil
}
