// Package middleware provides the structured logging setup shared by the
// chat server and its admin console.
package middleware

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/relaychat/relaychat/config"
)

const (
	LevelTrace = slog.Level(-8)
)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
}

// sessionIDKey is the context key under which a session's correlation ID is
// stashed so every log line emitted while handling that session carries it.
type sessionIDKey struct{}

// WithSessionID returns a context that causes the logger installed by
// NewLogger to tag every record with session_id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// NewLogger builds the process-wide logger, level-gated by cfg.LogLevel.
func NewLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "trace":
		level = LevelTrace
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	case "info":
		fallthrough
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				level := a.Value.Any().(slog.Level)
				levelLabel, exists := levelNames[level]
				if !exists {
					levelLabel = level.String()
				}
				a.Value = slog.StringValue(levelLabel)
			}
			return a
		},
	}
	return slog.New(handler{slog.NewTextHandler(os.Stdout, opts)})
}

// handler injects the session ID carried on ctx, if any, into every record,
// so a session's whole lifetime can be grepped out of the log by one field
// without every call site having to pass it explicitly.
type handler struct {
	slog.Handler
}

func (h handler) Handle(ctx context.Context, r slog.Record) error {
	if id := ctx.Value(sessionIDKey{}); id != nil {
		r.AddAttrs(slog.String("session_id", id.(string)))
	}
	return h.Handler.Handle(ctx, r)
}

func (h handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return handler{h.Handler.WithAttrs(attrs)}
}

func (h handler) WithGroup(name string) slog.Handler {
	return handler{h.Handler.WithGroup(name)}
}
