package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Params struct {
	Production bool
	Level      string

	// When set, log lines are also written to this rolling file
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds the process logger: zap's development or production console output, optionally
// tee'd into a lumberjack rolling file.
func New(params Params) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if params.Level != "" {
		parsed, err := zapcore.ParseLevel(params.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}

	cfg := zap.NewDevelopmentConfig()
	if params.Production {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if params.FilePath == "" {
		return logger, nil
	}

	fileCore := zapcore.NewCore(fileEncoder(), zapcore.AddSync(newRollingFile(params)), level)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}

func newRollingFile(params Params) *lumberjack.Logger {
	lj := &lumberjack.Logger{
		Filename:   params.FilePath,
		MaxSize:    params.MaxSizeMB,
		MaxBackups: params.MaxBackups,
		MaxAge:     params.MaxAgeDays,
	}
	if lj.MaxSize == 0 {
		lj.MaxSize = 10
	}
	if lj.MaxBackups == 0 {
		lj.MaxBackups = 3
	}
	if lj.MaxAge == 0 {
		lj.MaxAge = 7
	}
	return lj
}

func fileEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	})
}
