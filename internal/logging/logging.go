package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/skobkin/meshmon/internal/config"
)

// Manager owns the process logger. Every logger it hands out follows later
// Configure calls, including ones taken before them.
type Manager struct {
	mu      sync.Mutex
	console io.Writer
	file    *os.File

	root   atomic.Pointer[handlerRef]
	logger *slog.Logger
}

func NewManager() *Manager {
	return NewManagerWithOutput(os.Stdout)
}

// NewManagerWithOutput logs to console instead of stdout, leaving stdout free
// for interactive output.
func NewManagerWithOutput(console io.Writer) *Manager {
	if console == nil {
		console = os.Stdout
	}
	m := &Manager{console: console}
	m.root.Store(&handlerRef{h: slog.NewTextHandler(console, &slog.HandlerOptions{Level: slog.LevelInfo})})
	m.logger = slog.New(newSwapHandler(&m.root))

	return m
}

// Configure applies cfg and installs the manager logger as the slog default.
// On error the previous configuration stays active.
func (m *Manager) Configure(cfg config.LoggingConfig, filePath string) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	writer := m.console
	var file *os.File
	if cfg.LogToFile {
		file, err = openLogFile(filePath)
		if err != nil {
			return err
		}
		writer = newFanoutWriter(m.console, file)
	}

	h, err := newHandler(cfg.Format, writer, &slog.HandlerOptions{Level: level})
	if err != nil {
		if file != nil {
			_ = file.Close()
		}

		return err
	}

	m.root.Store(&handlerRef{h: h})
	prev := m.file
	m.file = file
	if prev != nil {
		_ = prev.Close()
	}
	slog.SetDefault(m.logger)

	return nil
}

func (m *Manager) Logger(component string) *slog.Logger {
	return m.logger.With("component", component)
}

// Close closes the log file. Later records go to the console only.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}

	current := m.root.Load().h
	m.root.Store(&handlerRef{h: consoleOnly(current, m.console)})
	err := m.file.Close()
	m.file = nil

	return err
}

func openLogFile(path string) (*os.File, error) {
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	// #nosec G304 -- path is resolved by app runtime and points to user config dir.
	file, err := os.OpenFile(cleanPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return file, nil
}

// consoleOnly rebuilds a handler of the same format over the console alone,
// keeping its level.
func consoleOnly(h slog.Handler, console io.Writer) slog.Handler {
	level := slog.LevelError
	for _, l := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn} {
		if h.Enabled(context.Background(), l) {
			level = l

			break
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	if _, ok := h.(*slog.JSONHandler); ok {
		return slog.NewJSONHandler(console, opts)
	}

	return slog.NewTextHandler(console, opts)
}

func newHandler(format string, w io.Writer, opts *slog.HandlerOptions) (slog.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text", "":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %q", format)
	}
}

func parseLevel(raw string) (slog.Leveler, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return nil, fmt.Errorf("unsupported log level: %q", raw)
	}
}

type fanoutWriter struct {
	writers []io.Writer
}

func newFanoutWriter(writers ...io.Writer) io.Writer {
	filtered := make([]io.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			filtered = append(filtered, w)
		}
	}

	return &fanoutWriter{writers: filtered}
}

// Write succeeds when at least one destination took the whole record.
func (w *fanoutWriter) Write(p []byte) (int, error) {
	var (
		wroteAny bool
		firstErr error
	)

	for _, dst := range w.writers {
		n, err := dst.Write(p)
		if err == nil && n != len(p) {
			err = io.ErrShortWrite
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}

			continue
		}
		wroteAny = true
	}

	if wroteAny || firstErr == nil {
		return len(p), nil
	}

	return 0, firstErr
}
