package utils

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = zapcore.InfoLevel

type registeredLogger struct {
	logger *zap.Logger
	level  zap.AtomicLevel
	cores  []zapcore.Core
}

type loggerSettings struct {
	encoder zapcore.EncoderConfig
}

// LoggerOption customises a logger the first time its name is configured.
type LoggerOption func(*loggerSettings)

// WithEncoderConfig replaces the default "timestamp - level - name - message" layout.
func WithEncoderConfig(config zapcore.EncoderConfig) LoggerOption {
	return func(settings *loggerSettings) {
		settings.encoder = config
	}
}

// LoggerRegistry hands out named loggers. Each name is configured once with a
// single console core; later calls for the same name only adjust the level.
type LoggerRegistry struct {
	mu      sync.Mutex
	sink    zapcore.WriteSyncer
	loggers map[string]*registeredLogger
}

// NewLoggerRegistry creates a registry whose loggers write to sink.
func NewLoggerRegistry(sink io.Writer) *LoggerRegistry {
	if sink == nil {
		sink = os.Stderr
	}
	return &LoggerRegistry{
		sink:    zapcore.Lock(zapcore.AddSync(sink)),
		loggers: make(map[string]*registeredLogger),
	}
}

// SetupLogger returns the logger registered under name, creating it on first
// use. Options only apply to that first call; later calls change the level.
func (r *LoggerRegistry) SetupLogger(name string, level zapcore.Level, opts ...LoggerOption) *zap.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.loggers[name]; ok {
		existing.level.SetLevel(level)
		return existing.logger
	}

	settings := loggerSettings{encoder: encoderConfig()}
	for _, opt := range opts {
		opt(&settings)
	}

	atomicLevel := zap.NewAtomicLevelAt(level)
	registered := &registeredLogger{
		level: atomicLevel,
		cores: []zapcore.Core{
			zapcore.NewCore(zapcore.NewConsoleEncoder(settings.encoder), r.sink, atomicLevel),
		},
	}
	registered.logger = zap.New(zapcore.NewTee(registered.cores...)).Named(name)
	r.loggers[name] = registered

	return registered.logger
}

// Handlers reports how many output cores are attached to the named logger.
func (r *LoggerRegistry) Handlers(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, ok := r.loggers[name]; ok {
		return len(registered.cores)
	}
	return 0
}

// Sync flushes the sink shared by all registered loggers.
func (r *LoggerRegistry) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sink.Sync()
}

// timestamp - level - name - message
func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		NameKey:          "logger",
		MessageKey:       "msg",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " - ",
	}
}

var defaultRegistry = NewLoggerRegistry(os.Stderr)

// SetupLogger configures a named logger on the process-wide registry, which writes to stderr.
func SetupLogger(name string, level zapcore.Level, opts ...LoggerOption) *zap.Logger {
	return defaultRegistry.SetupLogger(name, level, opts...)
}

// ParseLevel converts a textual level such as "debug" or "WARN".
func ParseLevel(text string) (zapcore.Level, error) {
	if text == "" {
		return DefaultLevel, nil
	}
	level, err := zapcore.ParseLevel(text)
	if err != nil {
		return DefaultLevel, invalidArgument("log level %q", text)
	}
	return level, nil
}
