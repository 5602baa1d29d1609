package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/S1riyS/memfs9p/server/pkg/logging/slogpretty"
)

type ctxLoggerKey struct {
	Key string
}

var (
	cKey   = ctxLoggerKey{Key: "logger"}
	reqKey = ctxLoggerKey{Key: "request_id"}
)

// NewLogger builds the process logger. Pretty output is meant for terminals,
// JSON for everything else.
func NewLogger(out io.Writer, level string, pretty bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	if pretty {
		handler := slogpretty.PrettyHandlerOptions{SlogOpts: opts}.NewPrettyHandler(out)
		return slog.New(handler)
	}

	return slog.New(slog.NewJSONHandler(out, opts))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func GetLoggerFromContext(ctx context.Context) *slog.Logger {
	var l *slog.Logger

	if logger, ok := ctx.Value(cKey).(*slog.Logger); ok && logger != nil {
		l = logger
	} else {
		// Default stdout logger
		l = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	if requestID := GetRequestIDFromCtx(ctx); requestID != "" {
		l = l.With(slog.String("request_id", requestID))
	}

	return l
}

// Returns logger from context and attaches operation name
func GetLoggerFromContextWithOp(ctx context.Context, op string) *slog.Logger {
	return GetLoggerFromContext(ctx).With(slog.String("op", op))
}

func MakeContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, cKey, logger)
}
