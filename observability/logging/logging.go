// Package logging implements the spec's structured logging pillar: a
// leveled, context-aware logger built on zerolog, plus a middleware that
// emits call start/complete/fail records.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/artpar/apcore/execctx"
	"github.com/rs/zerolog"
)

// Level reuses zerolog's own level type directly, so the six spec'd
// severities (trace..fatal) line up one-to-one with the filtering and
// encoding zerolog already does for every other apcore logger.
type Level = zerolog.Level

const (
	LevelTrace = zerolog.TraceLevel
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
	LevelFatal = zerolog.FatalLevel
)

// Format selects the record encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config configures a ContextLogger.
type Config struct {
	Name            string
	Format          Format
	Level           Level
	RedactSensitive bool
	Output          io.Writer
}

// ContextLogger is the spec's leveled structured logger. It wraps a
// zerolog.Logger so call-chain log lines share the same sink, level
// filtering, and JSON encoding as the registry/bootstrap/http loggers,
// while adding the context binding (trace_id/module_id/caller_id) and
// secret redaction §4.9.3 asks for.
type ContextLogger struct {
	logger          zerolog.Logger
	name            string
	redactSensitive bool
}

// NewContextLogger builds a logger from cfg.
func NewContextLogger(cfg Config) *ContextLogger {
	var w io.Writer = cfg.Output
	if cfg.Format == FormatText {
		w = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339Nano, NoColor: true,
			FormatLevel: func(i any) string {
				s, _ := i.(string)
				return "[" + strings.ToUpper(s) + "]"
			}}
	}
	base := zerolog.New(w).Level(cfg.Level).With().Timestamp().Logger()
	if cfg.Name != "" {
		base = base.With().Str("logger", cfg.Name).Logger()
	}
	return &ContextLogger{logger: base, name: cfg.Name, redactSensitive: cfg.RedactSensitive}
}

// FromContext binds trace_id, the last call-chain entry as module_id, and
// caller_id from ctx, returning a logger named name.
func (l *ContextLogger) FromContext(ctx *execctx.Context, name string) *ContextLogger {
	bound := *l
	sub := l.logger.With()
	if name != "" && name != l.name {
		sub = sub.Str("logger", name)
	}
	if ctx != nil {
		if ctx.TraceID != "" {
			sub = sub.Str("trace_id", ctx.TraceID)
		}
		if mod := ctx.Leaf(); mod != "" {
			sub = sub.Str("module_id", mod)
		}
		if ctx.CallerID != "" {
			sub = sub.Str("caller_id", ctx.CallerID)
		}
	}
	bound.logger = sub.Logger()
	bound.name = name
	return &bound
}

func (l *ContextLogger) emit(level zerolog.Level, msg string, extra map[string]any) {
	if l.redactSensitive {
		extra = redact(extra)
	}
	ev := l.logger.WithLevel(level)
	if len(extra) > 0 {
		ev = ev.Fields(extra)
	}
	ev.Msg(msg)
}

func redact(extra map[string]any) map[string]any {
	if extra == nil {
		return nil
	}
	out := make(map[string]any, len(extra))
	for k, v := range extra {
		if strings.HasPrefix(k, execctx.SecretPrefix) {
			out[k] = "***REDACTED***"
			continue
		}
		out[k] = v
	}
	return out
}

func (l *ContextLogger) Trace(msg string, extra map[string]any) { l.emit(LevelTrace, msg, extra) }
func (l *ContextLogger) Debug(msg string, extra map[string]any) { l.emit(LevelDebug, msg, extra) }
func (l *ContextLogger) Info(msg string, extra map[string]any)  { l.emit(LevelInfo, msg, extra) }
func (l *ContextLogger) Warn(msg string, extra map[string]any)  { l.emit(LevelWarn, msg, extra) }
func (l *ContextLogger) Error(msg string, extra map[string]any) { l.emit(LevelError, msg, extra) }
func (l *ContextLogger) Fatal(msg string, extra map[string]any) { l.emit(LevelFatal, msg, extra) }
