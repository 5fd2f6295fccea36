// Package logger configures the process-wide zerolog logger backed by a
// rotating log file and an optional console stream.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the log level, file rotation and console output.
type Config struct {
	Level      string `json:"Level"`
	FilePath   string `json:"FilePath"`
	MaxSizeMB  int    `json:"MaxSizeMB"`
	MaxBackups int    `json:"MaxBackups"`
	MaxAgeDays int    `json:"MaxAgeDays"`
	Compress   bool   `json:"Compress"`
	Console    bool   `json:"Console"`
}

// DefaultConfig returns the settings used when the configuration file has
// no logging section.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		FilePath:   "logs/svcmgr.log",
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Compress:   true,
		Console:    false,
	}
}

// queueWriter decouples log producers from a sink that may stall, such as a
// console paused by Windows Quick Edit mode. Write enqueues the entry and
// returns immediately; a background goroutine forwards entries to the sink.
// When the queue is full the entry is dropped rather than blocking.
type queueWriter struct {
	ch     chan []byte
	sink   io.Writer
	done   chan struct{}
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

func newQueueWriter(sink io.Writer, depth int) *queueWriter {
	qw := &queueWriter{
		ch:   make(chan []byte, depth),
		sink: sink,
		done: make(chan struct{}),
	}
	go qw.forward()
	return qw
}

func (qw *queueWriter) Write(p []byte) (int, error) {
	qw.mu.RLock()
	defer qw.mu.RUnlock()
	if qw.closed {
		return len(p), nil
	}
	// zerolog reuses the event buffer after Write returns.
	cp := make([]byte, len(p))
	copy(cp, p)
	select {
	case qw.ch <- cp:
	default:
	}
	return len(p), nil
}

func (qw *queueWriter) forward() {
	defer close(qw.done)
	for p := range qw.ch {
		qw.sink.Write(p)
	}
}

// Close stops accepting entries and waits for the queue to drain.
func (qw *queueWriter) Close() {
	qw.once.Do(func() {
		qw.mu.Lock()
		qw.closed = true
		qw.mu.Unlock()
		close(qw.ch)
		<-qw.done
	})
}

var (
	globalLogger zerolog.Logger

	// Writers from the previous Init call, closed when the configuration
	// is reloaded.
	prevFile    io.Closer
	prevConsole *queueWriter
)

// Init builds the global logger from cfg. It may be called again on
// configuration reload; writers from the previous call are closed first.
func Init(cfg Config) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if prevFile != nil {
		prevFile.Close()
		prevFile = nil
	}
	if prevConsole != nil {
		prevConsole.Close()
		prevConsole = nil
	}

	var writers []io.Writer
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return err
		}
		file := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		prevFile = file
		writers = append(writers, file)
	}
	if cfg.Console {
		console := newQueueWriter(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}, 1000)
		prevConsole = console
		writers = append(writers, console)
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	output := writers[0]
	if len(writers) > 1 {
		output = zerolog.MultiLevelWriter(writers...)
	}
	globalLogger = zerolog.New(output).With().Timestamp().Caller().Logger()
	return nil
}

// WithComponent returns a child logger tagged with a component field.
func WithComponent(component string) *zerolog.Logger {
	l := globalLogger.With().Str("component", component).Logger()
	return &l
}
