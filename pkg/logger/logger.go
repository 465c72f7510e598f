// Package logger is the bridge's component logger. Every line goes to a
// console stream and, when enabled, as JSON to a file. Messages and fields
// pass through the redaction package first.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sipeed/dialogbridge/pkg/redaction"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "FATAL"
	}
}

type sink struct {
	mu      sync.RWMutex
	level   LogLevel
	console *log.Logger
	file    *os.File
}

var std = &sink{level: INFO, console: log.New(os.Stderr, "", log.LstdFlags)}

// LogEntry is one line of the JSON file sink.
type LogEntry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"timestamp"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

// ParseLevel maps a config string onto a LogLevel. Unknown values fall back to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

func SetLevel(level LogLevel) {
	std.mu.Lock()
	std.level = level
	std.mu.Unlock()
}

func GetLevel() LogLevel {
	std.mu.RLock()
	defer std.mu.RUnlock()
	return std.level
}

// SetOutput redirects the console stream.
func SetOutput(w io.Writer) {
	std.mu.Lock()
	std.console.SetOutput(w)
	std.mu.Unlock()
}

// EnableFileLogging appends JSON entries to path, replacing any previous file.
func EnableFileLogging(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	std.mu.Lock()
	prev := std.file
	std.file = f
	std.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return nil
}

func DisableFileLogging() {
	std.mu.Lock()
	f := std.file
	std.file = nil
	std.mu.Unlock()

	if f != nil {
		f.Close()
	}
}

// ConfigureRedaction replaces the redaction rules applied to every entry.
func ConfigureRedaction(config redaction.Config) {
	redaction.SetGlobalConfig(config)
}

func DebugCF(component string, message string, fields map[string]any) {
	std.write(DEBUG, component, message, fields)
}

func InfoCF(component string, message string, fields map[string]any) {
	std.write(INFO, component, message, fields)
}

func WarnCF(component string, message string, fields map[string]any) {
	std.write(WARN, component, message, fields)
}

func ErrorCF(component string, message string, fields map[string]any) {
	std.write(ERROR, component, message, fields)
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func (s *sink) write(level LogLevel, component, message string, fields map[string]any) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if level < s.level {
		return
	}

	message = redaction.Redact(message)
	fields = redaction.RedactFields(fields)

	if s.file != nil {
		entry := LogEntry{
			Level:     level.String(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Component: component,
			Message:   message,
			Fields:    fields,
			Caller:    caller(3),
		}
		if data, err := json.Marshal(entry); err == nil {
			s.file.Write(append(data, '\n'))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", level)
	if component != "" {
		fmt.Fprintf(&b, " %s:", component)
	}
	b.WriteString(" ")
	b.WriteString(message)
	if len(fields) > 0 {
		b.WriteString(" ")
		b.WriteString(formatFields(fields))
	}
	s.console.Print(b.String())
}

func caller(skip int) string {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	if fn := runtime.FuncForPC(pc); fn != nil {
		return fmt.Sprintf("%s:%d (%s)", file, line, fn.Name())
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// formatFields renders fields sorted by key so log lines are stable.
func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, fields[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
