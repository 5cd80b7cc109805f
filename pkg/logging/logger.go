package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level is a log severity. Messages below the configured level are dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel converts "debug", "info", "warn" or "error" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level %q (must be debug, info, warn or error)", s)
	}
}

// Options configures the process-wide log sink.
type Options struct {
	// Dir is the log directory. Defaults to ~/.scout/logs.
	Dir string

	// Level is the minimum level written.
	Level Level

	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept.
	MaxBackups int

	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int

	// Stderr mirrors every entry to stderr as well.
	Stderr bool
}

// Logger provides leveled logging for scout components.
// All loggers created by NewLogger share one rotated file, ~/.scout/logs/scout.log
// by default, and tag each line with their component name.
type Logger struct {
	component string
	sink      *sink
}

type sink struct {
	mu     sync.Mutex
	logger *log.Logger
	level  Level
	closer io.Closer
	path   string
}

func (s *sink) write(component string, level Level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if level < s.level {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	s.logger.Printf("[%s] [%s] [%s] [%s] %s", timestamp, getRunID()[:8], component, level, message)
}

var (
	// Global run ID for the current process
	runID     string
	runIDOnce sync.Once

	sinkMu      sync.Mutex
	defaultSink *sink
)

// getRunID returns or creates the run ID for this process
func getRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

func defaultLogDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".scout", "logs"), nil
}

// Configure replaces the process-wide sink. It is normally called once at
// startup with values from the config file. On error the previous sink is
// kept.
func Configure(opts Options) error {
	s, err := newFileSink(opts)
	if err != nil {
		return err
	}

	sinkMu.Lock()
	old := defaultSink
	defaultSink = s
	sinkMu.Unlock()

	if old != nil && old.closer != nil {
		_ = old.closer.Close()
	}
	return nil
}

func newFileSink(opts Options) (*sink, error) {
	dir := opts.Dir
	if dir == "" {
		d, err := defaultLogDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 3
	}

	path := filepath.Join(dir, "scout.log")
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
	}

	var w io.Writer = rotator
	if opts.Stderr {
		w = io.MultiWriter(rotator, os.Stderr)
	}

	return &sink{
		logger: log.New(w, "", 0), // We'll format timestamps ourselves
		level:  opts.Level,
		closer: rotator,
		path:   path,
	}, nil
}

// currentSink returns the shared sink, creating the default file sink on
// first use. If the file cannot be opened it falls back to stderr and
// returns the error alongside.
func currentSink() (*sink, error) {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	if defaultSink != nil {
		return defaultSink, nil
	}

	s, err := newFileSink(Options{Level: LevelInfo})
	if err != nil {
		fallback := log.New(os.Stderr, "", 0)
		fallback.Printf("WARNING: Failed to initialize file logging: %v", err)
		fallback.Printf("Falling back to stderr logging")
		defaultSink = &sink{logger: fallback, level: LevelInfo}
		return defaultSink, err
	}
	defaultSink = s
	return defaultSink, nil
}

// NewLogger creates a logger for a specific component.
//
// If the log directory cannot be created or the log file cannot be opened,
// it returns a fallback logger that writes to stderr along with the error.
// Callers can check the error to detect fallback mode and log warnings.
func NewLogger(component string) (*Logger, error) {
	s, err := currentSink()
	return &Logger{component: component, sink: s}, err
}

// New creates a logger writing to w, independent of the process-wide sink.
func New(component string, w io.Writer, level Level) *Logger {
	return &Logger{
		component: component,
		sink:      &sink{logger: log.New(w, "", 0), level: level},
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New("discard", io.Discard, LevelError+1)
}

// Named returns a logger for a sub-component sharing the same sink.
func (l *Logger) Named(name string) *Logger {
	return &Logger{component: l.component + "." + name, sink: l.sink}
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.sink.write(l.component, LevelDebug, fmt.Sprintf(format, v...))
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.sink.write(l.component, LevelInfo, fmt.Sprintf(format, v...))
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.sink.write(l.component, LevelWarn, fmt.Sprintf(format, v...))
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.sink.write(l.component, LevelError, fmt.Sprintf(format, v...))
}

// Component returns the component name.
func (l *Logger) Component() string {
	return l.component
}

// LogPath returns the path to the log file, or "" when not file-backed.
func (l *Logger) LogPath() string {
	return l.sink.path
}

// GetRunID returns the ID of the current process run
func GetRunID() string {
	return getRunID()
}

// Close flushes and closes the process-wide log file. Safe to call multiple times.
func Close() error {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	if defaultSink == nil || defaultSink.closer == nil {
		return nil
	}
	err := defaultSink.closer.Close()
	defaultSink = nil
	return err
}
