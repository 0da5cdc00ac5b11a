package log

import "go.uber.org/zap"

// Logger is the structured-logging surface every ITN component depends on.
// It is injected at construction time; there are no package-level loggers.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Fatal(msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
	Sync() error
}

// zapLogger wraps a zap.Logger.
type zapLogger struct {
	log *zap.Logger
}

// New creates a production logger at the given level ("debug", "info",
// "warn", "error"); unrecognized levels fall back to "info".
func New(level string) Logger {
	return NewNamed("itn", level)
}

// NewNamed creates a production logger tagged with name, at the given level.
func NewNamed(name, level string) Logger {
	lvl := zap.InfoLevel
	switch level {
	case "debug":
		lvl = zap.DebugLevel
	case "warn":
		lvl = zap.WarnLevel
	case "error":
		lvl = zap.ErrorLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return NoOp()
	}
	return &zapLogger{log: l.Named(name)}
}

// NoOp returns a logger that discards everything, for tests.
func NoOp() Logger { return noOpLogger{} }

func (z *zapLogger) Debug(msg string, fields ...zap.Field) { z.log.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...zap.Field)  { z.log.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...zap.Field)  { z.log.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...zap.Field) { z.log.Error(msg, fields...) }
func (z *zapLogger) Fatal(msg string, fields ...zap.Field) { z.log.Fatal(msg, fields...) }
func (z *zapLogger) With(fields ...zap.Field) Logger       { return &zapLogger{log: z.log.With(fields...)} }
func (z *zapLogger) Sync() error                           { return z.log.Sync() }

type noOpLogger struct{}

func (noOpLogger) Debug(string, ...zap.Field) {}
func (noOpLogger) Info(string, ...zap.Field)  {}
func (noOpLogger) Warn(string, ...zap.Field)  {}
func (noOpLogger) Error(string, ...zap.Field) {}
func (noOpLogger) Fatal(string, ...zap.Field) {}
func (n noOpLogger) With(...zap.Field) Logger { return n }
func (noOpLogger) Sync() error                { return nil }

// String, Int, Err are thin re-exports so callers don't need a direct zap
// import for the common field constructors.
func String(key, val string) zap.Field { return zap.String(key, val) }
func Int(key string, val int) zap.Field { return zap.Int(key, val) }
func Err(err error) zap.Field           { return zap.Error(err) }
