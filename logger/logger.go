// Package logger configures process-wide logging: logrus for lrpc itself, and a zap logger at
// the same level for the etcd client, which only accepts zap.
package logger

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init sets the global logrus level and format. Accepted levels are the logrus names
// (trace, debug, info, warn, error, fatal, panic); "warning" is accepted as well.
func Init(level string) error {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return nil
}

// For returns a logger entry tagged with the component name.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}

// Zap builds a zap logger matching the current logrus level. etcd's client is chatty at info,
// so anything below warn is raised to warn.
func Zap() *zap.Logger {
	lvl := zapcore.WarnLevel
	switch logrus.GetLevel() {
	case logrus.ErrorLevel:
		lvl = zapcore.ErrorLevel
	case logrus.FatalLevel, logrus.PanicLevel:
		lvl = zapcore.FatalLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l.Named("etcd")
}
