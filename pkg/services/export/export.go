// Package export writes the fleet view to disk when the monitor stops. The
// file is never read back.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/grafana/dskit/services"
	"github.com/natefinch/atomic"
	"github.com/otelfleet/fleetmon/pkg/fleet"
	fleetsvc "github.com/otelfleet/fleetmon/pkg/services/fleet"
)

type ExportService struct {
	logger *slog.Logger
	store  *fleet.Store
	path   string

	services.Service
}

var _ services.Service = (*ExportService)(nil)

// NewExportService returns a service that dumps store to path on shutdown.
// An empty path disables the dump.
func NewExportService(
	logger *slog.Logger,
	store *fleet.Store,
	path string,
) *ExportService {
	e := &ExportService{
		logger: logger,
		store:  store,
		path:   path,
	}
	e.Service = services.NewBasicService(nil, e.running, e.stopping)
	return e
}

func (e *ExportService) running(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (e *ExportService) stopping(_ error) error {
	if e.path == "" {
		return nil
	}
	if err := e.Export(); err != nil {
		e.logger.With("err", err, "path", e.path).Error("failed to export fleet snapshot")
		return err
	}
	return nil
}

// Export replaces the file at the configured path with the current fleet
// view, in the same shape GET /fleet returns.
func (e *ExportService) Export() error {
	snap := e.store.Snapshot()
	data, err := json.MarshalIndent(fleetsvc.NewFleetResponse(snap), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := atomic.WriteFile(e.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	e.logger.With("path", e.path, "robots", snap.Counts.Total).Info("fleet snapshot exported")
	return nil
}
