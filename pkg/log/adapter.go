package log

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// BadgerLogrusAdapter implements the badger.Logger interface using logrus.
// Badger's Info output (compactions, value log replay) is demoted to Debug.
type BadgerLogrusAdapter struct {
	*logrus.Entry
}

// NewBadgerLogrusAdapter creates a new adapter
func NewBadgerLogrusAdapter(entry *logrus.Entry) *BadgerLogrusAdapter {
	return &BadgerLogrusAdapter{entry.WithField("component", "badgerdb")}
}

// Errorf logs an error message
func (l *BadgerLogrusAdapter) Errorf(f string, v ...interface{}) { l.Entry.Errorf(f, v...) }

// Warningf logs a warning message
func (l *BadgerLogrusAdapter) Warningf(f string, v ...interface{}) { l.Entry.Warningf(f, v...) }

// Infof logs badger's informational messages at debug level
func (l *BadgerLogrusAdapter) Infof(f string, v ...interface{}) { l.Entry.Debugf(f, v...) }

// Debugf logs a debug message
func (l *BadgerLogrusAdapter) Debugf(f string, v ...interface{}) { l.Entry.Tracef(f, v...) }

// New creates the application logger. An unknown level falls back to info and is reported in err.
func New(level string, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	logger.SetLevel(logrus.InfoLevel)
	if out != nil {
		logger.SetOutput(out)
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return logger, fmt.Errorf("invalid log level %q, using info: %w", level, err)
	}
	logger.SetLevel(parsed)
	return logger, nil
}
