package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logTimeFormat = "2006-01-02 15:04:05.000"

type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	File   string // empty: stdout only

	MaxSize    int // MB
	MaxAge     int // days
	MaxBackups int
	Compress   bool
}

// New builds a zap logger writing to stdout and, when File is set, to a
// rotating file.
func New(opts Options) *zap.Logger {
	level := parseLevel(opts.Level)

	encoder := zapcore.NewConsoleEncoder(encoderConfig())
	if strings.EqualFold(opts.Format, "json") {
		encoder = zapcore.NewJSONEncoder(encoderConfig())
	}

	writers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if opts.File != "" {
		writers = append(writers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    withDefault(opts.MaxSize, 100),
			MaxAge:     withDefault(opts.MaxAge, 7),
			MaxBackups: opts.MaxBackups,
			Compress:   opts.Compress,
		}))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(writers...), level)
	if level == zap.DebugLevel {
		return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
	}
	return zap.New(core, zap.AddCaller())
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:     "message",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(logTimeFormat),
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func withDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
