package config

import (
	"go.uber.org/zap"
)

// Logger returns the zap logger for this config, building it on first use.
func (c *Config) Logger() *zap.SugaredLogger {
	if c.logger == nil {
		c.logger = newLogger(c.Logging.Format)
	}
	return c.logger
}

// SetLogger replaces the logger (tests use zap.NewNop or zaptest).
func (c *Config) SetLogger(l *zap.SugaredLogger) {
	c.logger = l
}

// Log writes an info message when level <= verbosity.
// Level 0 always logs.
func (c *Config) Log(level int, format string, args ...interface{}) {
	if level > c.Logging.Verbosity {
		return
	}
	if level >= 3 {
		c.Logger().Debugf(format, args...)
		return
	}
	c.Logger().Infof(format, args...)
}

// Warn always logs at warn level.
func (c *Config) Warn(format string, args ...interface{}) {
	c.Logger().Warnf(format, args...)
}

// Error always logs at error level.
func (c *Config) Error(format string, args ...interface{}) {
	c.Logger().Errorf(format, args...)
}

// Sync flushes buffered log entries.
func (c *Config) Sync() {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

func newLogger(format string) *zap.SugaredLogger {
	var zc zap.Config
	if format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	// verbosity gating happens in Log
	zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	l, err := zc.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}
