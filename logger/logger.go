package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger represents a structured logger
type Logger struct {
	logger zerolog.Logger
}

// Fields represents log fields
type Fields map[string]interface{}

var (
	// Default is the default logger instance
	Default *Logger

	logFile *os.File
)

// Init initializes the logger from environment defaults
func Init() {
	InitWithOptions(os.Getenv("LOG_LEVEL"), "")
}

// InitWithOptions initializes the logger with an explicit level and an
// optional log directory. When logDir is set, a dated log file is written
// alongside the console output and older dated files are moved to an
// archive subdirectory.
func InitWithOptions(levelStr, logDir string) {
	level := parseLevel(levelStr)

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(level)

	console := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	var out io.Writer = console
	if logDir != "" {
		if f, err := openDatedLogFile(logDir); err == nil {
			logFile = f
			out = zerolog.MultiLevelWriter(console, f)
		} else {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()

	Default = &Logger{logger: logger}

	Default.Info().
		Str("level", level.String()).
		Msg("Logger initialized")
}

// Close flushes and closes the log file sink, if any
func Close() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// openDatedLogFile opens logs/<dir>/scraper_YYYY-MM-DD.log, archiving any
// older dated files first
func openDatedLogFile(logDir string) (*os.File, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}

	today := time.Now().UTC().Format("2006-01-02")
	current := fmt.Sprintf("scraper_%s.log", today)

	// Move older dated files into the archive directory
	entries, err := os.ReadDir(logDir)
	if err == nil {
		archiveDir := filepath.Join(logDir, "archive")
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || name == current {
				continue
			}
			if !strings.HasPrefix(name, "scraper_") || !strings.HasSuffix(name, ".log") {
				continue
			}
			if err := os.MkdirAll(archiveDir, 0o755); err != nil {
				break
			}
			os.Rename(filepath.Join(logDir, name), filepath.Join(archiveDir, name))
		}
	}

	return os.OpenFile(filepath.Join(logDir, current), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// parseLevel returns the zerolog level for a level string, defaulting by
// environment when empty
func parseLevel(levelStr string) zerolog.Level {
	if levelStr == "" {
		if os.Getenv("GROCERY_ENVIRONMENT") == "production" {
			return zerolog.InfoLevel
		}
		return zerolog.DebugLevel
	}

	level, err := zerolog.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// WithFields creates a new logger with fields
func (l *Logger) WithFields(fields Fields) *Logger {
	newLogger := l.logger.With()
	for k, v := range fields {
		newLogger = newLogger.Interface(k, v)
	}
	return &Logger{logger: newLogger.Logger()}
}

// WithField creates a new logger with a single field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// Debug returns a debug event
func (l *Logger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

// Info returns an info event
func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

// Warn returns a warn event
func (l *Logger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

// Error returns an error event
func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// Fatal returns a fatal event
func (l *Logger) Fatal() *zerolog.Event {
	return l.logger.Fatal()
}

// WithError adds an error to the logger
func (l *Logger) WithError(err error) *Logger {
	return &Logger{logger: l.logger.With().Err(err).Logger()}
}

// Global functions for brevity at call sites

// Debug logs a debug message
func Debug(format string, v ...interface{}) {
	if Default == nil {
		Init()
	}
	Default.Debug().Msgf(format, v...)
}

// Info logs an info message
func Info(format string, v ...interface{}) {
	if Default == nil {
		Init()
	}
	Default.Info().Msgf(format, v...)
}

// Warn logs a warning message
func Warn(format string, v ...interface{}) {
	if Default == nil {
		Init()
	}
	Default.Warn().Msgf(format, v...)
}

// Error logs an error message
func Error(format string, v ...interface{}) {
	if Default == nil {
		Init()
	}
	Default.Error().Msgf(format, v...)
}

// Fatal logs a fatal message and exits
func Fatal(format string, v ...interface{}) {
	if Default == nil {
		Init()
	}
	Default.Fatal().Msgf(format, v...)
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	if Default == nil {
		Init()
	}
	return Default.logger.GetLevel() <= zerolog.DebugLevel
}

// ForScraper creates a logger for a specific site scraper
func ForScraper(site string) *Logger {
	if Default == nil {
		Init()
	}
	return Default.WithField("site", site)
}

// ForFetcher creates a logger for a fetcher
func ForFetcher(site string) *Logger {
	if Default == nil {
		Init()
	}
	return Default.WithField("component", "fetcher").WithField("site", site)
}

// ForSink creates a logger for the persistence layer
func ForSink(site string) *Logger {
	if Default == nil {
		Init()
	}
	return Default.WithField("component", "sink").WithField("site", site)
}

// ForPublisher creates a logger for the publisher
func ForPublisher() *Logger {
	if Default == nil {
		Init()
	}
	return Default.WithField("component", "publisher")
}
