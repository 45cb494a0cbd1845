// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how verbosely the core logs.
type Config struct {
	Level      string // debug, info, warn, error
	File       string // empty means stderr only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func (c Config) level() zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// New builds a zap.Logger using the project's bracketed-field encoder.
// When cfg.File is set, output is teed to both stderr and a
// lumberjack-rotated file, mirroring the construction pattern used by
// the pack's moto project (zapcore.NewTee + lumberjack hook).
func New(cfg Config) *zap.Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	enabler := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= cfg.level()
	})

	encoder := NewTiDBEncoder(encCfg)
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), enabler),
	}
	if cfg.File != "" {
		hook := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxOrDefault(cfg.MaxSizeMB, 256),
			MaxBackups: maxOrDefault(cfg.MaxBackups, 5),
			MaxAge:     maxOrDefault(cfg.MaxAgeDays, 30),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(hook), enabler))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

func maxOrDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
