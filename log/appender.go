package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lcx/rift/config"
)

// LogAppender is an output destination for finished log lines.
type LogAppender interface {
	Write(p []byte) (int, error)
	Refresh()
}

// ConsoleAppender writes log lines to stdout.
type ConsoleAppender struct {
	mu sync.Mutex
}

// NewConsoleAppender creates a stdout appender.
func NewConsoleAppender() *ConsoleAppender {
	return &ConsoleAppender{}
}

func (a *ConsoleAppender) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return os.Stdout.Write(p)
}

func (a *ConsoleAppender) Refresh() {}

// FileAppender writes log lines to a file and rotates it by size.
// Rotated files are renamed to <path>.<timestamp>.
type FileAppender struct {
	mu      sync.Mutex
	path    string
	splitMB int
	file    *os.File
	size    int64
	onError func(error)
}

// NewFileAppender opens (or creates) cfg.LogPath in append mode.
func NewFileAppender(cfg *LogCfg) *FileAppender {
	a := &FileAppender{
		path:    cfg.LogPath,
		splitMB: cfg.FileSplitMB,
		onError: func(err error) {
			fmt.Fprintf(os.Stderr, "log: file appender: %v\n", err)
		},
	}
	if err := a.open(); err != nil {
		a.onError(err)
	}
	return a
}

func (a *FileAppender) open() error {
	if dir := filepath.Dir(a.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	a.file = f
	a.size = st.Size()
	return nil
}

func (a *FileAppender) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file == nil {
		if err := a.open(); err != nil {
			return 0, err
		}
	}
	if a.splitMB > 0 && a.size+int64(len(p)) > int64(a.splitMB)<<20 && a.size > 0 {
		if err := a.rotate(); err != nil {
			a.onError(err)
		}
	}
	n, err := a.file.Write(p)
	a.size += int64(n)
	return n, err
}

func (a *FileAppender) rotate() error {
	if err := a.file.Close(); err != nil {
		return err
	}
	a.file = nil
	rotated := fmt.Sprintf("%s.%s", a.path, time.Now().Format("20060102-150405.000000"))
	if err := os.Rename(a.path, rotated); err != nil {
		return err
	}
	return a.open()
}

// Refresh flushes the file to disk.
func (a *FileAppender) Refresh() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		_ = a.file.Sync()
	}
}

// Close closes the underlying file.
func (a *FileAppender) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// OnConfigChanged reopens the file when the path or rotation size changes.
func (a *FileAppender) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	cfg, ok := newConfig.(*LogCfg)
	if !ok {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.splitMB = cfg.FileSplitMB
	if cfg.LogPath == a.path {
		return nil
	}
	if a.file != nil {
		_ = a.file.Close()
		a.file = nil
	}
	a.path = cfg.LogPath
	return a.open()
}

func (a *FileAppender) GetConfigName() string {
	return "logger"
}
