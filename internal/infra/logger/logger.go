package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// sink is shared by a logger and every component logger derived from it.
type sink struct {
	mu     sync.Mutex
	file   io.Writer
	stdout io.Writer
	closer io.Closer
}

type Logger struct {
	out       *sink
	level     Level
	component string
}

// New opens (or creates) the log file at filePath. An empty path disables the
// file output. includeStdout mirrors Info and above to stdout for the CLI.
func New(filePath string, level Level, includeStdout bool) (*Logger, error) {
	s := &sink{}

	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		s.file = f
		s.closer = f
	}

	if includeStdout {
		s.stdout = os.Stdout
	}

	return &Logger{out: s, level: level}, nil
}

// NewWriter logs every level at or above level to w.
func NewWriter(w io.Writer, level Level) *Logger {
	return &Logger{out: &sink{file: w}, level: level}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWriter(io.Discard, LevelFatal+1)
}

// Component returns a logger that tags every line with [name].
func (l *Logger) Component(name string) *Logger {
	return &Logger{out: l.out, level: l.level, component: name}
}

func (l *Logger) Close() error {
	if l.out.closer != nil {
		return l.out.closer.Close()
	}
	return nil
}

func (l *Logger) log(lvl Level, prefix string, format string, v ...any) {
	if lvl < l.level {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf(format, v...)
	if l.component != "" {
		msg = "[" + l.component + "] " + msg
	}
	fullMsg := fmt.Sprintf("%s [%s] %s", timestamp, prefix, msg)

	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if l.out.file != nil {
		fmt.Fprintln(l.out.file, fullMsg)
	}

	// Debug stays out of stdout so it doesn't break the progress line
	if l.out.stdout != nil && lvl >= LevelInfo {
		fmt.Fprintf(l.out.stdout, "\n%s", fullMsg)
	}
}

func ParseLevel(lvl string) Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) Debug(f string, v ...any) { l.log(LevelDebug, "DEBUG", f, v...) }
func (l *Logger) Info(f string, v ...any)  { l.log(LevelInfo, "INFO", f, v...) }
func (l *Logger) Warn(f string, v ...any)  { l.log(LevelWarn, "WARN", f, v...) }
func (l *Logger) Error(f string, v ...any) { l.log(LevelError, "ERROR", f, v...) }
func (l *Logger) Fatal(f string, v ...any) { l.log(LevelFatal, "FATAL", f, v...); os.Exit(1) }

func (l *Logger) Write(p []byte) (n int, err error) {
	// Echo and other libraries often include a newline at the end
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		l.Info("%s", msg)
	}
	return len(p), nil
}
