package cli

import "go.uber.org/zap"

// agentLogger wraps zap for verbose debug output.
type agentLogger struct {
	sugared *zap.SugaredLogger
	base    *zap.Logger
}

func newAgentLogger(globals *Globals) *agentLogger {
	if globals == nil || !globals.Verbose {
		return &agentLogger{base: zap.NewNop()}
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	cfg.Encoding = "json"
	logger, _ := cfg.Build()
	return &agentLogger{
		sugared: logger.Sugar(),
		base:    logger,
	}
}

// Logger returns the underlying zap logger for components.
func (l *agentLogger) Logger() *zap.Logger {
	if l.base == nil {
		return zap.NewNop()
	}
	return l.base
}

func (l *agentLogger) Debug(format string, args ...interface{}) {
	if l.sugared == nil {
		return
	}
	l.sugared.Debugf(format, args...)
}
