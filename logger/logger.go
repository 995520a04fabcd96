// Package logger creates logrus loggers configured from config.App.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/rai-project/go-prune/config"
)

// New returns a logger whose level follows the active configuration.
func New() *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.Formatter = &logrus.TextFormatter{
		DisableTimestamp: !config.App.Verbose,
	}
	l.Level = Level()
	return l
}

// Level resolves the configured log level. Debug mode wins over log_level.
func Level() logrus.Level {
	if config.App.Debug {
		return logrus.DebugLevel
	}
	lvl, err := logrus.ParseLevel(config.App.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
