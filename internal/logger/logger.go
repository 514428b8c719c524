// Package logger holds the project-wide logrus logger.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	once          sync.Once
	projectLogger *logrus.Logger
)

// GetProjectLogger returns the shared logger, creating it on first use.
func GetProjectLogger() *logrus.Logger {
	once.Do(func() {
		projectLogger = logrus.New()
		projectLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		projectLogger.SetLevel(logrus.InfoLevel)
	})
	return projectLogger
}

// Configure points the project logger at a file. An empty path discards all
// output, which keeps log lines from tearing the terminal UI.
func Configure(path string, level string) (io.Closer, error) {
	l := GetProjectLogger()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	}
	if path == "" {
		l.SetOutput(io.Discard)
		return io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	l.SetOutput(f)
	return f, nil
}

// WithComponent returns an entry tagged with the component name.
func WithComponent(name string) *logrus.Entry {
	return GetProjectLogger().WithField("component", name)
}
