package logutil

import (
	"context"
	"log/slog"
	"net/http"
)

type ctxKey struct{}

func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// RequestLogger stores a per-request logger, tagged with method and path, in
// the request context.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := WithMethod(base, r.Method).With("path", r.URL.Path)
			l.Log(r.Context(), LevelTrace, "request")
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), l)))
		})
	}
}
