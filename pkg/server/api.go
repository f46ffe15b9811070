package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/grafana/dskit/middleware"
	"github.com/otelfleet/fleetmon/pkg/logutil"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const serviceName = "fleet-monitor"

// WrapHandler puts h behind otelhttp tracing and CORS, served over h2c.
func WrapHandler(h http.Handler, allowedOrigins []string) http.Handler {
	h = middleware.Merge(
		middleware.Func(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, serviceName)
		}),
	).Wrap(h)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(h)
	return h2c.NewHandler(corsHandler, &http2.Server{})
}

func printRoutes(r *mux.Router, l *slog.Logger) {
	l.Debug("walking routes")
	err := r.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			l.With("err", err).Warn("route without path")
			return nil
		}
		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}
		for _, method := range methods {
			logutil.WithMethod(l, method).Debug(path)
		}
		return nil
	})
	if err != nil {
		l.With("err", err).Error("failed to walk routes")
	}
}
