// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides the leveled, context-aware logger used throughout
// mcgravity.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Logger is the interface satisfied by every logging backend mcgravity uses.
type Logger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SeverityToLevel converts a case-insensitive level name into a slog.Level.
func SeverityToLevel(severity string) (slog.Level, error) {
	switch strings.ToLower(severity) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", severity)
	}
}

// slogLogger wraps *slog.Logger so it satisfies Logger.
type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) DebugContext(ctx context.Context, msg string, args ...any) { s.l.DebugContext(ctx, msg, args...) }
func (s *slogLogger) InfoContext(ctx context.Context, msg string, args ...any)  { s.l.InfoContext(ctx, msg, args...) }
func (s *slogLogger) WarnContext(ctx context.Context, msg string, args ...any)  { s.l.WarnContext(ctx, msg, args...) }
func (s *slogLogger) ErrorContext(ctx context.Context, msg string, args ...any) { s.l.ErrorContext(ctx, msg, args...) }
func (s *slogLogger) Debug(msg string, args ...any)                            { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)                             { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)                             { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any)                            { s.l.Error(msg, args...) }

// NewStdLogger returns a Logger that writes human-readable text to out;
// err is not written to.
func NewStdLogger(out, err io.Writer, level string) (Logger, error) {
	lvl, lvlErr := SeverityToLevel(level)
	if lvlErr != nil {
		return nil, lvlErr
	}
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})
	_ = err // errors are logged through the same handler, matching the teacher's single-stream default
	return &slogLogger{l: slog.New(handler)}, nil
}

// NewStructuredLogger returns a Logger that writes JSON lines to out; err is
// not written to.
func NewStructuredLogger(out, err io.Writer, level string) (Logger, error) {
	lvl, lvlErr := SeverityToLevel(level)
	if lvlErr != nil {
		return nil, lvlErr
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	_ = err
	return &slogLogger{l: slog.New(handler)}, nil
}
