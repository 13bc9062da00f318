// Package logger builds the process-wide zap logger: always a console core,
// plus a rotating JSON file core when an output file is configured.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"ledgerd/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the logger from config. Dev environments default to the console
// encoder regardless of the configured format.
func New(opts config.LogConfig) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(opts.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	console := opts.Environment == "dev" || opts.Format == "console"

	cores := []zapcore.Core{stdoutCore(lvl, console)}
	if opts.OutputFile != "" {
		fc, err := fileCore(lvl, opts)
		if err != nil {
			return nil, err
		}
		cores = append(cores, fc)
	}

	return zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

func stdoutCore(lvl zapcore.Level, console bool) zapcore.Core {
	if console {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stdout), lvl)
	}
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.Lock(os.Stdout),
		lvl,
	)
}

// fileCore writes JSON to a size-rotated file. Rotated files are compressed;
// limits come from config so a long-running collector cannot fill the disk.
func fileCore(lvl zapcore.Level, opts config.LogConfig) (zapcore.Core, error) {
	if err := os.MkdirAll(filepath.Dir(opts.OutputFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   opts.OutputFile,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	})

	return zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		sink,
		lvl,
	), nil
}
