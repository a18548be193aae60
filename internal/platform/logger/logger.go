package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/nulzo/llm-proxy/internal/cli"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config defines the configuration for the logger.
type Config struct {
	Level       string // debug, info, warn, error
	Format      string // json, console
	EnableColor bool   // console only
}

var (
	globalLogger *zap.Logger
	wrapped      *zap.Logger
	atom         = zap.NewAtomicLevel()
	once         sync.Once
)

// DefaultConfig reads LOG_LEVEL, LOG_FORMAT and NO_COLOR/LOG_COLOR.
func DefaultConfig() Config {
	return Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Format:      getEnv("LOG_FORMAT", "console"),
		EnableColor: shouldEnableColor(),
	}
}

// New builds a logger writing to stdout without touching the global one.
func New(cfg Config) *zap.Logger {
	return zap.New(newCore(cfg, zapcore.Lock(os.Stdout), atom),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
	)
}

func newCore(cfg Config, out zapcore.WriteSyncer, level zapcore.LevelEnabler) zapcore.Core {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if cfg.Format == "json" {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		if cfg.EnableColor && cli.Enabled() {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
			enc = NewColoredConsoleEncoder(encoderConfig)
		} else {
			encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
			enc = zapcore.NewConsoleEncoder(encoderConfig)
		}
	}

	return zapcore.NewCore(enc, out, level)
}

// Initialize sets up the global logger. Only the first call has effect.
func Initialize(cfg Config) {
	once.Do(func() {
		atom.SetLevel(parseLevel(cfg.Level))
		if !cfg.EnableColor {
			cli.SetEnabled(false)
		}
		globalLogger = New(cfg)
		wrapped = globalLogger.WithOptions(zap.AddCallerSkip(1))
	})
}

// SetLevel changes the level of every logger built by this package.
func SetLevel(lvl string) {
	atom.SetLevel(parseLevel(lvl))
}

// Get returns the global logger. Initializes with defaults if not already set.
func Get() *zap.Logger {
	Initialize(DefaultConfig())
	return globalLogger
}

// With creates a child logger and adds structured context to it.
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// --- Wrapper Functions ---

func Info(msg string, fields ...zap.Field) {
	Get()
	wrapped.Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Get()
	wrapped.Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	Get()
	wrapped.Fatal(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	Get()
	wrapped.Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Get()
	wrapped.Warn(msg, fields...)
}

func Sync() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.ToLower(value)
	}
	return fallback
}

func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// shouldEnableColor honours NO_COLOR first, then LOG_COLOR.
func shouldEnableColor() bool {
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		return false
	}
	if val := os.Getenv("LOG_COLOR"); val != "" {
		return val == "true" || val == "1"
	}
	return true
}
