// Package logging installs the process-wide zap logger.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Production bool
	Level      string
	// Filename enables a rotated JSON log file next to stdout.
	Filename string
	// Stderr sends console output to stderr, for tools that print results on stdout.
	Stderr bool
}

// Setup builds the logger, installs it with zap.ReplaceGlobals and returns it.
// Callers should defer logger.Sync().
func Setup(opts Options) (*zap.Logger, error) {
	var zapConfig zap.Config
	if opts.Production {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	console := os.Stdout
	zapConfig.OutputPaths = []string{"stdout"}
	if opts.Stderr {
		console = os.Stderr
		zapConfig.OutputPaths = []string{"stderr"}
	}

	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		zapConfig.Level = zap.NewAtomicLevelAt(lvl)
	}

	var logger *zap.Logger
	if opts.Filename != "" {
		rotated := &lumberjack.Logger{
			Filename:   opts.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
		}
		stdoutEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		if opts.Production {
			stdoutEncoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		}
		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(rotated),
				zapConfig.Level,
			),
			zapcore.NewCore(stdoutEncoder, zapcore.AddSync(console), zapConfig.Level),
		)
		logger = zap.New(core, zap.AddCaller())
	} else {
		var err error
		logger, err = zapConfig.Build(zap.AddCaller())
		if err != nil {
			return nil, err
		}
	}

	zap.ReplaceGlobals(logger)
	return logger, nil
}
