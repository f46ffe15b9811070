// Package fleet exposes the fleet store over HTTP: robots post telemetry to
// /ingest, operators and scrapers read /fleet, /metrics and /health.
package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/grafana/dskit/services"
	"github.com/otelfleet/fleetmon/pkg/fleet"
	"github.com/otelfleet/fleetmon/pkg/logutil"
	services_int "github.com/otelfleet/fleetmon/pkg/services"
)

const (
	maxIngestBytes = 1 << 20

	metricsContentType = "text/plain; version=0.0.4; charset=utf-8"
)

// FleetResponse is the body of GET /fleet.
type FleetResponse struct {
	TotalRobots int                     `json:"total_robots"`
	Operational int                     `json:"operational"`
	LowBattery  int                     `json:"low_battery"`
	Robots      map[string]fleet.Record `json:"robots"`
	Timestamp   string                  `json:"timestamp"`
}

func NewFleetResponse(snap fleet.Snapshot) FleetResponse {
	return FleetResponse{
		TotalRobots: snap.Counts.Total,
		Operational: snap.Counts.Operational,
		LowBattery:  snap.Counts.LowBattery(),
		Robots:      snap.Robots,
		Timestamp:   snap.TakenAt.UTC().Format(time.RFC3339Nano),
	}
}

type IngestResponse struct {
	Accepted bool `json:"accepted"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type FleetServer struct {
	logger *slog.Logger
	store  *fleet.Store

	services.Service
}

var _ services_int.HTTPExtension = (*FleetServer)(nil)

func NewFleetServer(logger *slog.Logger, store *fleet.Store) *FleetServer {
	f := &FleetServer{
		logger: logger,
		store:  store,
	}
	f.Service = services.NewBasicService(nil, f.running, nil)
	return f
}

func (f *FleetServer) running(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (f *FleetServer) ConfigureHTTP(r *mux.Router) {
	f.logger.Info("configuring routes")
	withLogger := logutil.RequestLogger(f.logger)
	r.Handle("/health", withLogger(http.HandlerFunc(f.handleHealth))).Methods(http.MethodGet)
	r.Handle("/ingest", withLogger(http.HandlerFunc(f.handleIngest))).Methods(http.MethodPost)
	r.Handle("/fleet", withLogger(http.HandlerFunc(f.handleFleet))).Methods(http.MethodGet)
	r.Handle("/metrics", withLogger(http.HandlerFunc(f.handleMetrics))).Methods(http.MethodGet)
}

func (f *FleetServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, f.store.Health())
}

func (f *FleetServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	logger := logutil.FromContext(r.Context())

	rec, err := decodeRecord(http.MaxBytesReader(w, r.Body, maxIngestBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		logger.With("err", err).Warn("rejected telemetry")
		writeJSON(r.Context(), w, status, errorResponse{Error: err.Error()})
		return
	}

	stored := f.store.Ingest(rec)
	logutil.WithRobot(logger, stored.AgentID).With("status", stored.Status).Debug("telemetry ingested")
	writeJSON(r.Context(), w, http.StatusOK, IngestResponse{Accepted: true})
}

func (f *FleetServer) handleFleet(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, NewFleetResponse(f.store.Snapshot()))
}

func (f *FleetServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", metricsContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(f.store.MetricsText())); err != nil {
		logutil.FromContext(r.Context()).With("err", err).Error("failed to write metrics")
	}
}

var errTrailingData = errors.New("unexpected data after telemetry object")

// decodeRecord reads exactly one JSON object from body. Anything other than
// whitespace after it is an error.
func decodeRecord(body io.Reader) (fleet.Record, error) {
	var rec fleet.Record
	dec := json.NewDecoder(body)
	if err := dec.Decode(&rec); err != nil {
		return fleet.Record{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fleet.Record{}, err
		}
		return fleet.Record{}, errTrailingData
	}
	return rec, nil
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logutil.FromContext(ctx).With("err", err).Error("failed to encode response")
	}
}
