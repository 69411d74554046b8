// Copyright 2025 The alphamind Authors
// This file is part of the alphamind library.
//
// The alphamind library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The alphamind library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the alphamind library. If not, see <http://www.gnu.org/licenses/>.

package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging surface used throughout the codebase. Context is
// passed as alternating key/value pairs, the way module loggers are used in
// every package.
type Logger interface {
	NewWith(ctx ...interface{}) Logger

	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	// Crit logs the message and terminates the process. Reserved for the
	// fatal error class: broken signer, corrupt storage, impossible config.
	Crit(msg string, ctx ...interface{})
}

var (
	baseMu   sync.Mutex
	base     *zap.SugaredLogger
	minLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func init() {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), minLevel)
	base = zap.New(core).Sugar()
}

// SetLevel changes the global minimum level. "trace" maps to zap's debug
// level since zap has no trace tier.
func SetLevel(lvl string) {
	switch lvl {
	case "trace", "debug":
		minLevel.SetLevel(zapcore.DebugLevel)
	case "warn":
		minLevel.SetLevel(zapcore.WarnLevel)
	case "error":
		minLevel.SetLevel(zapcore.ErrorLevel)
	default:
		minLevel.SetLevel(zapcore.InfoLevel)
	}
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// NewModuleLogger returns a logger tagged with the given module id. Every
// package keeps one in a package-level var.
func NewModuleLogger(mi ModuleID) Logger {
	baseMu.Lock()
	defer baseMu.Unlock()
	return &zapLogger{s: base.With("module", mi.String())}
}

// New returns a logger with the given context attached.
func New(ctx ...interface{}) Logger {
	baseMu.Lock()
	defer baseMu.Unlock()
	return &zapLogger{s: base.With(ctx...)}
}

func (l *zapLogger) NewWith(ctx ...interface{}) Logger {
	return &zapLogger{s: l.s.With(ctx...)}
}

func (l *zapLogger) Trace(msg string, ctx ...interface{}) { l.s.Debugw(msg, ctx...) }
func (l *zapLogger) Debug(msg string, ctx ...interface{}) { l.s.Debugw(msg, ctx...) }
func (l *zapLogger) Info(msg string, ctx ...interface{})  { l.s.Infow(msg, ctx...) }
func (l *zapLogger) Warn(msg string, ctx ...interface{})  { l.s.Warnw(msg, ctx...) }
func (l *zapLogger) Error(msg string, ctx ...interface{}) { l.s.Errorw(msg, ctx...) }

func (l *zapLogger) Crit(msg string, ctx ...interface{}) {
	l.s.Errorw("CRIT "+msg, ctx...)
	_ = l.s.Sync()
	os.Exit(1)
}
