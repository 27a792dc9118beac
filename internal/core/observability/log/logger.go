package log

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ Log = (*Logger)(nil)

var (
	innerLogger          *Logger
	loggerInitializeOnce sync.Once
)

// Logger is the zap-backed implementation of Log used across the project.
// Output goes to stderr so the measurement stream and reporter output on
// stdout stay clean.
type Logger struct {
	zapLogger *zap.Logger
	zapLevel  zap.AtomicLevel
}

func New(level Level) *Logger {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	atomicLevel := zap.NewAtomicLevelAt(zapLevel(level))
	config := zap.Config{
		Level:            atomicLevel,
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    true,
	}

	zapLogger, err := config.Build()
	if err != nil {
		panic(err)
	}

	logger := &Logger{
		zapLogger: zapLogger,
		zapLevel:  atomicLevel,
	}

	loggerInitializeOnce.Do(func() { innerLogger = logger })

	return logger
}

// Provide returns the first logger created by New. It is the provider used
// by the injector; calling it before New yields nil.
func Provide() *Logger {
	return innerLogger
}

// Nop returns a logger that discards everything. Handy default for
// nil-tolerant constructors.
func Nop() *Logger {
	return &Logger{
		zapLogger: zap.NewNop(),
		zapLevel:  zap.NewAtomicLevelAt(zap.FatalLevel),
	}
}

func (l *Logger) Debug(msg string, fields ...Field) {
	l.zapLogger.Debug(msg, zapFields(fields)...)
}

func (l *Logger) Info(msg string, fields ...Field) {
	l.zapLogger.Info(msg, zapFields(fields)...)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	l.zapLogger.Warn(msg, zapFields(fields)...)
}

func (l *Logger) Error(msg string, fields ...Field) {
	l.zapLogger.Error(msg, zapFields(fields)...)
}

func (l *Logger) Fatal(msg string, fields ...Field) {
	l.zapLogger.Fatal(msg, zapFields(fields)...)
}

// With returns a child logger carrying the given fields on every entry.
func (l *Logger) With(fields ...Field) Log {
	return &Logger{
		zapLogger: l.zapLogger.With(zapFields(fields)...),
		zapLevel:  l.zapLevel,
	}
}

// Named returns a child logger with the given component name appended.
func (l *Logger) Named(name string) Log {
	return &Logger{
		zapLogger: l.zapLogger.Named(name),
		zapLevel:  l.zapLevel,
	}
}

func (l *Logger) SetLevel(level Level) {
	l.zapLevel.SetLevel(zapLevel(level))
}

func (l *Logger) GetLevel() Level {
	return ownLevel(l.zapLevel.Level())
}

// Sync flushes buffered entries. Call on process exit.
func (l *Logger) Sync() error {
	return l.zapLogger.Sync()
}

var levelPairs = []struct {
	own Level
	zap zapcore.Level
}{
	{LevelDebug, zap.DebugLevel},
	{LevelInfo, zap.InfoLevel},
	{LevelWarn, zap.WarnLevel},
	{LevelError, zap.ErrorLevel},
	{LevelFatal, zap.FatalLevel},
}

func zapLevel(level Level) zapcore.Level {
	for _, p := range levelPairs {
		if p.own == level {
			return p.zap
		}
	}
	return zap.InfoLevel
}

func ownLevel(level zapcore.Level) Level {
	for _, p := range levelPairs {
		if p.zap == level {
			return p.own
		}
	}
	return LevelInfo
}

func zapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = f.zap()
	}
	return out
}

// zap converts one field to its zap representation. Unknown types fall back
// to reflection-based encoding.
func (f Field) zap() zap.Field {
	switch f.Type {
	case BoolType:
		return zap.Bool(f.Key, f.Value.(bool))
	case ByteStringType:
		return zap.ByteString(f.Key, f.Value.([]byte))
	case DurationType:
		return zap.Duration(f.Key, f.Value.(time.Duration))
	case Float64Type:
		return zap.Float64(f.Key, f.Value.(float64))
	case IntType:
		return zap.Int(f.Key, f.Value.(int))
	case Int64Type:
		return zap.Int64(f.Key, f.Value.(int64))
	case StringType:
		return zap.String(f.Key, f.Value.(string))
	case TimeType:
		return zap.Time(f.Key, f.Value.(time.Time))
	case Uint64Type:
		return zap.Uint64(f.Key, f.Value.(uint64))
	case Uint32Type:
		return zap.Uint32(f.Key, f.Value.(uint32))
	case ErrorType:
		return zap.NamedError(f.Key, f.Value.(error))
	default:
		return zap.Any(f.Key, f.Value)
	}
}
