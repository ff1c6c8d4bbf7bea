package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/perplext/bountyscope/pkg/jsonutil"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	// DEBUG level for detailed troubleshooting information
	DEBUG LogLevel = iota
	// INFO level for general operational information
	INFO
	// WARN level for potentially harmful situations
	WARN
	// ERROR level for error events that might still allow the application to continue
	ERROR
	// FATAL level for severe error events that will lead the application to abort
	FATAL
)

// String returns the string representation of a log level
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
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// LogFormat represents the log output format
type LogFormat string

const (
	TextFormat LogFormat = "text"
	JSONFormat LogFormat = "json"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[37m"
	colorWhite  = "\033[97m"
)

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level        LogLevel
	Format       LogFormat
	EnableColors bool
	EnableFile   bool
	LogDir       string
	MaxFileSize  int // MB
	MaxBackups   int
	MaxAge       int // days
	Compress     bool
	// Output overrides the console writer (stderr by default)
	Output io.Writer
}

// Logger is a leveled logger shared by every component of a run.
// Named copies share the underlying writers and level.
type Logger struct {
	config     *LoggerConfig
	name       string
	logger     *log.Logger
	fileLogger *log.Logger
	logFile    io.WriteCloser
}

// NewLogger creates a new logger instance
func NewLogger(logDir string, debug bool) *Logger {
	config := LoggerConfig{
		Level:        INFO,
		Format:       TextFormat,
		EnableColors: true,
		EnableFile:   logDir != "",
		LogDir:       logDir,
		MaxFileSize:  100,
		MaxBackups:   5,
		MaxAge:       30,
		Compress:     true,
	}

	if debug {
		config.Level = DEBUG
	}

	return NewLoggerWithConfig(config)
}

// NewLoggerWithConfig creates a new logger instance with the given configuration
func NewLoggerWithConfig(config LoggerConfig) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	logger := &Logger{
		config: &config,
		logger: log.New(out, "", 0),
	}

	if config.EnableFile && config.LogDir != "" {
		if err := os.MkdirAll(config.LogDir, 0755); err != nil {
			log.Fatalf("Failed to create log directory: %v", err)
		}

		logFile := &lumberjack.Logger{
			Filename:   filepath.Join(config.LogDir, "bountyscope.log"),
			MaxSize:    config.MaxFileSize, // MB
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge, // days
			Compress:   config.Compress,
		}

		logger.fileLogger = log.New(logFile, "", 0)
		logger.logFile = logFile
	}

	return logger
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *Logger {
	return NewLoggerWithConfig(LoggerConfig{Level: FATAL + 1, Output: io.Discard})
}

// Named returns a logger that tags every line with the given component name
func (l *Logger) Named(name string) *Logger {
	child := *l
	if l.name != "" {
		child.name = l.name + "." + name
	} else {
		child.name = name
	}
	return &child
}

// Name returns the component name attached by Named
func (l *Logger) Name() string {
	return l.name
}

// ParseLogLevel parses a string log level to LogLevel
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
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

// SetLevel sets the logger's level
func (l *Logger) SetLevel(level LogLevel) {
	l.config.Level = level
}

// getColorForLevel returns the ANSI color code for a log level
func (l *Logger) getColorForLevel(level LogLevel) string {
	if !l.config.EnableColors {
		return ""
	}

	switch level {
	case DEBUG:
		return colorGray
	case INFO:
		return colorBlue
	case WARN:
		return colorYellow
	case ERROR, FATAL:
		return colorRed
	default:
		return colorWhite
	}
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	File      string                 `json:"file,omitempty"`
	Line      int                    `json:"line,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *Logger) emit(level LogLevel, message string, fields map[string]interface{}) {
	// Skip emit and the exported wrapper
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		file = "unknown"
		line = 0
	}
	file = filepath.Base(file)
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	var consoleMessage, fileMessage string

	if l.config.Format == JSONFormat {
		entry := LogEntry{
			Timestamp: timestamp,
			Level:     level.String(),
			Component: l.name,
			Message:   message,
			File:      file,
			Line:      line,
			Fields:    fields,
		}

		jsonBytes, err := jsonutil.Marshal(entry)
		if err != nil {
			// Values without a JSON form are logged by their %v text
			entry.Fields = stringifyFields(fields)
			jsonBytes, _ = jsonutil.Marshal(entry)
		}
		consoleMessage = string(jsonBytes)
		fileMessage = consoleMessage
	} else {
		component := ""
		if l.name != "" {
			component = fmt.Sprintf(" [%s]", l.name)
		}

		fieldsStr := ""
		if len(fields) > 0 {
			keys := make([]string, 0, len(fields))
			for k := range fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			pairs := make([]string, 0, len(keys))
			for _, k := range keys {
				pairs = append(pairs, fmt.Sprintf("%s=%v", k, fields[k]))
			}
			fieldsStr = " " + strings.Join(pairs, " ")
		}

		color := l.getColorForLevel(level)
		reset := ""
		if color != "" {
			reset = colorReset
		}

		fileMessage = fmt.Sprintf("[%s] [%s]%s [%s:%d] %s%s", timestamp, level.String(), component, file, line, message, fieldsStr)
		consoleMessage = color + fileMessage + reset
	}

	l.logger.Println(consoleMessage)
	if l.fileLogger != nil {
		l.fileLogger.Println(fileMessage)
	}

	if level == FATAL {
		l.Close()
		os.Exit(1)
	}
}

func stringifyFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func (l *Logger) logf(level LogLevel, format string, args ...interface{}) {
	if level < l.config.Level {
		return
	}
	l.emit(level, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) logWithFields(level LogLevel, message string, fields map[string]interface{}) {
	if level < l.config.Level {
		return
	}
	l.emit(level, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(DEBUG, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(INFO, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(WARN, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(ERROR, format, args...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.logf(FATAL, format, args...)
}

// Structured logging methods with fields
func (l *Logger) DebugWithFields(message string, fields map[string]interface{}) {
	l.logWithFields(DEBUG, message, fields)
}

func (l *Logger) InfoWithFields(message string, fields map[string]interface{}) {
	l.logWithFields(INFO, message, fields)
}

func (l *Logger) WarnWithFields(message string, fields map[string]interface{}) {
	l.logWithFields(WARN, message, fields)
}

func (l *Logger) ErrorWithFields(message string, fields map[string]interface{}) {
	l.logWithFields(ERROR, message, fields)
}

// Close closes the log file
func (l *Logger) Close() {
	if l.logFile != nil {
		l.logFile.Close()
	}
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	return l.config.Level
}

// IsLevelEnabled checks if a log level is enabled
func (l *Logger) IsLevelEnabled(level LogLevel) bool {
	return level >= l.config.Level
}
