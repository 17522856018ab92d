package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	log   *zap.SugaredLogger
	level zap.AtomicLevel
}

// New builds a logger writing INFO and above to stdout and ERROR and above
// to stderr. jsonOutput switches from the console encoder to JSON.
func New(level string, jsonOutput bool) *Logger {
	atomicLevel := zap.NewAtomicLevelAt(parseLevel(level))

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if jsonOutput {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	stdoutCore := zapcore.NewCore(
		encoder,
		zapcore.AddSync(os.Stdout),
		zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return atomicLevel.Enabled(l) && l < zapcore.ErrorLevel
		}),
	)
	stderrCore := zapcore.NewCore(
		encoder,
		zapcore.AddSync(os.Stderr),
		zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return atomicLevel.Enabled(l) && l >= zapcore.ErrorLevel
		}),
	)

	base := zap.New(zapcore.NewTee(stdoutCore, stderrCore), zap.AddCaller(), zap.AddCallerSkip(2))
	return &Logger{log: base.Sugar(), level: atomicLevel}
}

func parseLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.log.Infof(format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.log.Warnf(format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.log.Errorf(format, v...)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.log.Debugf(format, v...)
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.log.Errorf(format, v...)
	_ = l.log.Sync()
	os.Exit(1)
}

// With returns a structured child logger carrying the given key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *zap.SugaredLogger {
	return l.log.Desugar().WithOptions(zap.AddCallerSkip(-2)).Sugar().With(keysAndValues...)
}

func (l *Logger) Sync() {
	_ = l.log.Sync()
}

var (
	mu           sync.RWMutex
	GlobalLogger = New("info", false)
)

// Initialize replaces the global logger.
func Initialize(level string, jsonOutput bool) {
	mu.Lock()
	defer mu.Unlock()
	GlobalLogger = New(level, jsonOutput)
}

// SetNewNop silences the global logger. Used by tests.
func SetNewNop() {
	mu.Lock()
	defer mu.Unlock()
	GlobalLogger = &Logger{log: zap.NewNop().Sugar(), level: zap.NewAtomicLevel()}
}

func current() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return GlobalLogger
}

// Convenience functions
func Info(format string, v ...interface{}) {
	current().Info(format, v...)
}

func Warn(format string, v ...interface{}) {
	current().Warn(format, v...)
}

func Error(format string, v ...interface{}) {
	current().Error(format, v...)
}

func Debug(format string, v ...interface{}) {
	current().Debug(format, v...)
}

func Fatal(format string, v ...interface{}) {
	current().Fatal(format, v...)
}

func With(keysAndValues ...interface{}) *zap.SugaredLogger {
	return current().With(keysAndValues...)
}

func Sync() {
	current().Sync()
}
