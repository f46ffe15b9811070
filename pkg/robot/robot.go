package robot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/grafana/dskit/services"
	"github.com/otelfleet/fleetmon/pkg/config"
	"github.com/otelfleet/fleetmon/pkg/logutil"
)

// Robot reports a fresh sample immediately on start and then once per
// interval until stopped. A failed report is logged and the loop carries on;
// there is no retry or backoff.
type Robot struct {
	logger   *slog.Logger
	gen      *Generator
	reporter *Reporter
	clock    func() time.Time

	sent   atomic.Int64
	failed atomic.Int64

	services.Service
}

// New builds a robot from cfg. client may be nil.
func New(logger *slog.Logger, cfg config.RobotConfig, client *http.Client) (*Robot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid robot config: %w", err)
	}
	logger = logutil.WithRobot(logger, cfg.ID)
	reporter, err := NewReporter(logger, cfg.MonitorURL, cfg.Timeout, client)
	if err != nil {
		return nil, err
	}
	return NewWithGenerator(logger, cfg.Interval, NewGenerator(cfg.ID, nil), reporter), nil
}

func NewWithGenerator(
	logger *slog.Logger,
	interval time.Duration,
	gen *Generator,
	reporter *Reporter,
) *Robot {
	r := &Robot{
		logger:   logger,
		gen:      gen,
		reporter: reporter,
		clock:    time.Now,
	}
	r.Service = services.NewTimerService(interval, r.starting, r.iteration, nil)
	return r
}

// Sent is the number of reports the monitor acknowledged.
func (r *Robot) Sent() int64 {
	return r.sent.Load()
}

func (r *Robot) Failed() int64 {
	return r.failed.Load()
}

func (r *Robot) starting(ctx context.Context) error {
	r.logger.Info("robot started")
	r.report(ctx)
	return nil
}

func (r *Robot) iteration(ctx context.Context) error {
	r.report(ctx)
	return nil
}

func (r *Robot) report(ctx context.Context) {
	rec := r.gen.Next(r.clock())
	if err := r.reporter.Report(ctx, rec); err != nil {
		r.failed.Add(1)
		if ctx.Err() != nil {
			return
		}
		r.logger.With("err", err).Error("connection error")
		return
	}
	r.sent.Add(1)
	r.logger.With("status", rec.Status, "battery", *rec.Battery).Info("telemetry reported")
}
