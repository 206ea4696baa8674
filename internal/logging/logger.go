package logging

// Structured logging for fuzzrelay

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelVerbose
	LogLevelDebug
)

// Options configures a Logger beyond its level.
type Options struct {
	File       string // Log file path; empty disables file output
	Format     string // "text" (default) or "json"
	LogEveryN  int    // Console sampling for non-error messages (1 = every message)
	MaxSizeMB  int    // Rotate the log file at this size; 0 disables rotation
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logger provides structured logging
type Logger struct {
	mu       sync.Mutex
	level    LogLevel
	format   string
	logEvery int
	counter  int

	file    io.WriteCloser
	fileLog *log.Logger
	stdout  *log.Logger
	stderr  *log.Logger

	jsonFile   *zerolog.Logger
	jsonStdout *zerolog.Logger
	jsonStderr *zerolog.Logger
}

// NewLogger creates a new text logger
func NewLogger(level LogLevel, logFile string) (*Logger, error) {
	return New(level, Options{File: logFile})
}

// NewLoggerWithOptions creates a logger with an output format and console sampling.
func NewLoggerWithOptions(level LogLevel, logFile, format string, logEvery int) (*Logger, error) {
	return New(level, Options{File: logFile, Format: format, LogEveryN: logEvery})
}

// New creates a logger from Options.
func New(level LogLevel, opts Options) (*Logger, error) {
	format := strings.ToLower(opts.Format)
	if format == "" {
		format = "text"
	}
	if format != "text" && format != "json" {
		return nil, fmt.Errorf("unsupported log format %q", opts.Format)
	}
	logEvery := opts.LogEveryN
	if logEvery <= 0 {
		logEvery = 1
	}

	l := &Logger{
		level:    level,
		format:   format,
		logEvery: logEvery,
		stdout:   log.New(os.Stdout, "", 0),
		stderr:   log.New(os.Stderr, "", 0),
	}

	if opts.File != "" {
		if opts.MaxSizeMB > 0 {
			l.file = &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    opts.MaxSizeMB,
				MaxBackups: opts.MaxBackups,
				MaxAge:     opts.MaxAgeDays,
				Compress:   opts.Compress,
			}
		} else {
			file, err := os.Create(opts.File)
			if err != nil {
				return nil, fmt.Errorf("create log file: %w", err)
			}
			l.file = file
		}
		l.fileLog = log.New(l.file, "", log.LstdFlags)
	}

	if format == "json" {
		out := zerolog.New(os.Stdout).With().Timestamp().Logger()
		errOut := zerolog.New(os.Stderr).With().Timestamp().Logger()
		l.jsonStdout = &out
		l.jsonStderr = &errOut
		if l.file != nil {
			fileOut := zerolog.New(l.file).With().Timestamp().Logger()
			l.jsonFile = &fileOut
		}
	}

	return l, nil
}

// Close closes the logger and flushes all data
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	if l.level >= LogLevelError {
		l.write(LogLevelError, fmt.Sprintf(format, v...), true)
	}
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	if l.level >= LogLevelInfo {
		l.write(LogLevelInfo, fmt.Sprintf(format, v...), false)
	}
}

// Verbose logs a verbose message
func (l *Logger) Verbose(format string, v ...interface{}) {
	if l.level >= LogLevelVerbose {
		l.write(LogLevelVerbose, fmt.Sprintf(format, v...), false)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.level >= LogLevelDebug {
		l.write(LogLevelDebug, fmt.Sprintf(format, v...), false)
	}
}

// write writes a message to the appropriate outputs
func (l *Logger) write(level LogLevel, msg string, isError bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		l.writeJSON(level, msg, isError)
		return
	}

	line := levelTag(level) + ": " + msg

	// Always write to log file if available
	if l.fileLog != nil {
		l.fileLog.Println(line)
	}

	if isError {
		l.stderr.Println(line)
		return
	}
	if !l.sample() {
		return
	}
	// Only print to stdout if verbose or debug
	if l.level >= LogLevelVerbose {
		l.stdout.Println(line)
	}
}

func (l *Logger) writeJSON(level LogLevel, msg string, isError bool) {
	zl := zerologLevel(level)
	if l.jsonFile != nil {
		l.jsonFile.WithLevel(zl).Msg(msg)
	}
	if isError {
		l.jsonStderr.WithLevel(zl).Msg(msg)
		return
	}
	if l.sample() && l.level >= LogLevelVerbose {
		l.jsonStdout.WithLevel(zl).Msg(msg)
	}
}

// sample reports whether a console line passes the log-every-N gate.
// Callers hold l.mu.
func (l *Logger) sample() bool {
	l.counter++
	return l.logEvery <= 1 || l.counter%l.logEvery == 0
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// LogSession logs the end of a relay session.
func (l *Logger) LogSession(id, remote string, clientBytes, upstreamBytes int64, reason string, err error) {
	var errStr string
	if err != nil {
		errStr = fmt.Sprintf(" - error: %v", err)
	}
	msg := fmt.Sprintf("session %s from %s closed (%s, client->server %d bytes, server->client %d bytes)%s",
		id, remote, reason, clientBytes, upstreamBytes, errStr)
	if err != nil {
		l.Info("%s", msg)
	} else {
		l.Verbose("%s", msg)
	}
}

// LogStartup logs startup information
func (l *Logger) LogStartup(mode, listen, remote, test, ratio string) {
	l.Info("Starting fuzzrelay (%s)", mode)
	l.Verbose("  Listen: %s", listen)
	if remote != "" {
		l.Verbose("  Remote: %s", remote)
	}
	l.Verbose("  Test range: %s", test)
	l.Verbose("  Ratio: %s", ratio)
}

// LogHex logs hex data (for debug level)
func (l *Logger) LogHex(label string, data []byte) {
	if l.GetLevel() >= LogLevelDebug {
		l.Debug("%s: %s", label, FormatHex(data))
	}
}

// FormatHex renders bytes as space separated lowercase hex pairs.
func FormatHex(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x", b)
	}
	return sb.String()
}

// ParseLevel maps a config/flag level name onto a LogLevel.
func ParseLevel(value string) LogLevel {
	switch strings.ToLower(value) {
	case "silent":
		return LogLevelSilent
	case "error":
		return LogLevelError
	case "verbose":
		return LogLevelVerbose
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelInfo
	}
}

func levelTag(level LogLevel) string {
	switch level {
	case LogLevelError:
		return "ERROR"
	case LogLevelVerbose:
		return "VERBOSE"
	case LogLevelDebug:
		return "DEBUG"
	default:
		return "INFO"
	}
}

func zerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case LogLevelError:
		return zerolog.ErrorLevel
	case LogLevelVerbose:
		return zerolog.DebugLevel
	case LogLevelDebug:
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}
