// Package logger writes structured JSON log lines to stderr. Values that look
// like email addresses are masked unless redaction is switched off.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// ParseLevel maps a config value such as "warn" to a Level. Unknown values
// fall back to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Logger provides structured JSON logging with optional PII redaction.
type Logger struct {
	level     Level
	mu        sync.Mutex
	out       io.Writer
	redactPII bool
	fields    []interface{}
}

var defaultLogger = &Logger{level: INFO, out: os.Stderr, redactPII: true}

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) { defaultLogger.level = l }

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) { defaultLogger.redactPII = r }

// SetOutput redirects the default logger, mainly for tests.
func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	defaultLogger.out = w
	defaultLogger.mu.Unlock()
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.log(ERROR, msg, fields...) }

// With returns a logger that adds the given key/value pairs to every entry.
// It shares level, output and redaction with the default logger.
func With(fields ...interface{}) *Logger {
	return &Logger{fields: append(append([]interface{}(nil), defaultLogger.fields...), fields...)}
}

func (l *Logger) Debug(msg string, fields ...interface{}) { l.emit(DEBUG, msg, fields) }
func (l *Logger) Info(msg string, fields ...interface{})  { l.emit(INFO, msg, fields) }
func (l *Logger) Warn(msg string, fields ...interface{})  { l.emit(WARN, msg, fields) }
func (l *Logger) Error(msg string, fields ...interface{}) { l.emit(ERROR, msg, fields) }

func (l *Logger) emit(level Level, msg string, fields []interface{}) {
	defaultLogger.log(level, msg, append(append([]interface{}(nil), l.fields...), fields...)...)
}

func (l *Logger) log(level Level, msg string, fields ...interface{}) {
	if level < l.level {
		return
	}

	entry := map[string]interface{}{
		"time":  time.Now().UTC().Format(time.RFC3339),
		"level": levelNames[level],
		"msg":   msg,
	}

	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := fmt.Sprintf("%v", fields[i+1])
		if err, ok := fields[i+1].(error); ok && err != nil {
			val = err.Error()
		}
		if l.redactPII {
			val = redactPIIValue(key, val)
		}
		entry[key] = val
	}

	data, _ := json.Marshal(entry)
	l.mu.Lock()
	fmt.Fprintln(l.out, string(data))
	l.mu.Unlock()
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	masked := emailRegex.ReplaceAllStringFunc(val, RedactEmail)
	// Address-named fields never pass through unmasked, even when malformed.
	if (strings.Contains(key, "email") || strings.Contains(key, "recipient")) && masked == val && val != "" {
		return "***"
	}
	return masked
}
