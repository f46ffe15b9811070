package robot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/otelfleet/fleetmon/pkg/fleet"
	"github.com/otelfleet/fleetmon/pkg/logutil"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Reporter posts telemetry to the monitor's ingest endpoint. Each call is a
// single attempt bounded by the configured timeout.
type Reporter struct {
	logger    *slog.Logger
	client    *http.Client
	ingestURL string
	timeout   time.Duration
}

// NewReporter builds a reporter for the monitor at monitorURL. A nil client
// gets an instrumented default transport.
func NewReporter(
	logger *slog.Logger,
	monitorURL string,
	timeout time.Duration,
	client *http.Client,
) (*Reporter, error) {
	ingestURL, err := url.JoinPath(monitorURL, "ingest")
	if err != nil {
		return nil, fmt.Errorf("invalid monitor url %q: %w", monitorURL, err)
	}
	if client == nil {
		client = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Reporter{
		logger:    logger,
		client:    client,
		ingestURL: ingestURL,
		timeout:   timeout,
	}, nil
}

func (r *Reporter) Report(ctx context.Context, rec fleet.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.ingestURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telemetry: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("monitor returned %d", resp.StatusCode)
	}
	r.logger.With("bytes", len(body)).Log(ctx, logutil.LevelTrace, "telemetry sent")
	return nil
}
