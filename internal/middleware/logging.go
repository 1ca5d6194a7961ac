// Package middleware provides request-scoped logging, tracing and rate
// limiting for the HTTP server.
package middleware

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/trace"
)

// Logger is the process-wide structured logger. Records logged with a request
// context pick up request_id, user_id and trace_id automatically.
var Logger = NewLogger(os.Stdout, os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))

// NewLogger builds the logger for env: JSON in production, text elsewhere.
// level overrides the per-environment default when it parses.
func NewLogger(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: defaultLevel(env)}
	var lvl slog.Level
	if level != "" && lvl.UnmarshalText([]byte(strings.TrimSpace(level))) == nil {
		opts.Level = lvl
	}

	var h slog.Handler
	if env == "production" || env == "prod" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(scopeHandler{h})
}

func defaultLevel(env string) slog.Level {
	if env == "test" {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// requestScope is the per-request state pinned to the user context. The
// pointer is shared so AuthRequired can fill in the user after the scope
// was attached.
type requestScope struct {
	requestID string
	userID    uint
}

type scopeKey struct{}

func scopeFrom(ctx context.Context) *requestScope {
	s, _ := ctx.Value(scopeKey{}).(*requestScope)
	return s
}

// WithUserID records the authenticated user on ctx.
func WithUserID(ctx context.Context, userID uint) context.Context {
	if s := scopeFrom(ctx); s != nil {
		s.userID = userID
		return ctx
	}
	return context.WithValue(ctx, scopeKey{}, &requestScope{userID: userID})
}

type scopeHandler struct {
	slog.Handler
}

func (h scopeHandler) Handle(ctx context.Context, r slog.Record) error {
	if s := scopeFrom(ctx); s != nil {
		if s.requestID != "" {
			r.AddAttrs(slog.String("request_id", s.requestID))
		}
		if s.userID != 0 {
			r.AddAttrs(slog.Uint64("user_id", uint64(s.userID)))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(slog.String("trace_id", sc.TraceID().String()))
	}
	return h.Handler.Handle(ctx, r)
}

func (h scopeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return scopeHandler{h.Handler.WithAttrs(attrs)}
}

func (h scopeHandler) WithGroup(name string) slog.Handler {
	return scopeHandler{h.Handler.WithGroup(name)}
}

// ContextMiddleware attaches a request scope carrying the requestid local to
// the user context. It must run after requestid.New.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := &requestScope{}
		s.requestID, _ = c.Locals("requestid").(string)
		s.userID, _ = c.Locals("userID").(uint)
		c.SetUserContext(context.WithValue(c.UserContext(), scopeKey{}, s))
		return c.Next()
	}
}

// StructuredLogger logs one line per request once the handler chain returns.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.IP()),
			slog.String("user_agent", c.Get(fiber.HeaderUserAgent)),
		}

		ctx := c.UserContext()
		switch {
		case err != nil:
			Logger.ErrorContext(ctx, "request failed", append(attrs, slog.String("error", err.Error()))...)
		case status >= fiber.StatusInternalServerError:
			Logger.ErrorContext(ctx, "request failed", attrs...)
		case status >= fiber.StatusBadRequest:
			Logger.WarnContext(ctx, "request rejected", attrs...)
		default:
			Logger.InfoContext(ctx, "request processed", attrs...)
		}
		return err
	}
}
