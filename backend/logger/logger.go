package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

const logFileName = "wildprobe.log"

// New logs to stderr only.
func New() *logrus.Logger {
	return NewWithLogDir("")
}

// NewWithLogDir logs to stderr and, when logDir is set, appends to a file in
// that directory as well. Failing to open the file falls back to stderr.
func NewWithLogDir(logDir string) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)

	if logDir == "" {
		return l
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		l.WithError(err).Warn("log directory unavailable, logging to stderr only")
		return l
	}
	f, err := os.OpenFile(filepath.Join(logDir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		l.WithError(err).Warn("log file unavailable, logging to stderr only")
		return l
	}
	l.SetOutput(io.MultiWriter(os.Stderr, f))
	return l
}
