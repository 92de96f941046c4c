// Package logging builds the shared log writer and per-component loggers.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mschirtzinger/khata/internal/config"
)

// New returns the writer every component logs to. With cfg.File set it is
// a rotating file; otherwise stderr. Quiet discards everything.
// The returned closer is a no-op for stderr.
func New(cfg config.LogConfig) (io.Writer, func() error, error) {
	if cfg.Quiet {
		return io.Discard, func() error { return nil }, nil
	}
	if cfg.File == "" {
		return os.Stderr, func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
		return nil, nil, err
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	return lj, lj.Close, nil
}

// For returns a logger writing to w with a "[component] " prefix.
func For(w io.Writer, component string) *log.Logger {
	return log.New(w, "["+component+"] ", log.LstdFlags)
}

// Token shortens an access token for log output.
func Token(tok string) string {
	if len(tok) <= 6 {
		return tok
	}
	return tok[:6] + "..."
}
