package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NewNullLogger returns a logger that discards everything. Tests use it to keep output quiet.
func NewNullLogger() *logrus.Logger {
	return &logrus.Logger{
		Out:       io.Discard,
		Formatter: new(logrus.TextFormatter),
		Hooks:     make(logrus.LevelHooks),
		Level:     logrus.PanicLevel,
	}
}
