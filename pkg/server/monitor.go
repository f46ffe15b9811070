package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"slices"
	"sort"
	"time"

	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/server"
	"github.com/grafana/dskit/services"
	"github.com/grafana/dskit/signals"
	"github.com/otelfleet/fleetmon/pkg/config"
	"github.com/otelfleet/fleetmon/pkg/fleet"
	"github.com/otelfleet/fleetmon/pkg/logutil"
	services_int "github.com/otelfleet/fleetmon/pkg/services"
	"github.com/otelfleet/fleetmon/pkg/services/export"
	fleetsvc "github.com/otelfleet/fleetmon/pkg/services/fleet"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 5 * time.Second

// The modules that make up the fleet monitor
const (
	All           = "all"
	Fleet         = "fleet"
	Export        = "export"
	ServerService = "server"
)

type Monitor struct {
	logger *slog.Logger
	cfg    config.MonitorConfig
	store  *fleet.Store

	mm *modules.Manager

	serviceMap map[string]services.Service
	server     *server.Server
	serverConf server.Config
}

// New binds the HTTP listener and registers the monitor modules. Nothing is
// served until Run.
func New(cfg config.MonitorConfig, store *fleet.Store) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := slog.Default()
	m := &Monitor{
		logger: l,
		cfg:    cfg,
		store:  store,
	}

	conf := server.Config{
		HTTPListenAddress:             cfg.ListenAddress,
		HTTPListenPort:                cfg.Port,
		DoNotAddDefaultHTTPMiddleware: true,
		ServerGracefulShutdownTimeout: shutdownTimeout,
		LogFormat:                     dslog.LogfmtFormat,
		LogLevel: dslog.Level{
			Option: level.AllowInfo(),
		},
		// the server's own instrumentation stays off the process registry,
		// /metrics only ever exposes the fleet gauges
		Registerer: prometheus.NewRegistry(),
	}
	conf.Log = logutil.NewGoKitLogger(l.With("component", "dskit"))

	srv, err := server.New(conf)
	if err != nil {
		return nil, err
	}
	m.server = srv
	m.serverConf = conf

	if err := m.setupModuleManager(); err != nil {
		return nil, err
	}
	return m, nil
}

// Addr is the bound HTTP address. It is only meaningful after New returns,
// and is the way to discover the port when Port was 0.
func (m *Monitor) Addr() net.Addr {
	return m.server.HTTPListenAddr()
}

func (m *Monitor) setupModuleManager() error {
	mm := modules.NewManager(m.serverConf.Log)
	mm.RegisterModule(All, nil)

	mm.RegisterModule(Export, func() (services.Service, error) {
		return export.NewExportService(
			m.logger.With("service", Export),
			m.store,
			m.cfg.SnapshotPath,
		), nil
	}, modules.UserInvisibleModule)

	mm.RegisterModule(Fleet, func() (services.Service, error) {
		return m.mountHTTP(fleetsvc.NewFleetServer(
			m.logger.With("service", Fleet),
			m.store,
		)), nil
	})

	mm.RegisterModule(ServerService, func() (services.Service, error) {
		servicesToWaitFor := func() []services.Service {
			svs := []services.Service(nil)
			for name, s := range m.serviceMap {
				// Server should not wait for itself.
				if name != ServerService {
					svs = append(svs, s)
				}
			}
			return svs
		}
		m.server.HTTPServer.Handler = WrapHandler(m.server.HTTP, m.cfg.AllowedOrigins)
		return m.newServerService(servicesToWaitFor), nil
	}, modules.UserInvisibleModule)

	// Every module depends on the server, so the server wrapper is the last
	// to stop and still serves while the others drain.
	deps := map[string][]string{
		All:    {Fleet, Export},
		Fleet:  {ServerService},
		Export: {ServerService},
	}
	for mod, targets := range deps {
		if err := mm.AddDependency(mod, targets...); err != nil {
			return err
		}
	}

	m.mm = mm
	allDeps := m.mm.DependenciesForModule(All)
	for _, name := range m.mm.UserVisibleModuleNames() {
		ix := sort.SearchStrings(allDeps, name)
		included := ix < len(allDeps) && allDeps[ix] == name
		m.logger.With("module", name, "in-all", included).Debug("registered module")
	}
	return nil
}

func (m *Monitor) mountHTTP(ext services_int.HTTPExtension) services.Service {
	ext.ConfigureHTTP(m.server.HTTP)
	return ext
}

// Run serves until ctx is cancelled, a termination signal arrives or a
// module fails. Stopping triggers the snapshot export when configured.
func (m *Monitor) Run(ctx context.Context) error {
	svcMap, err := m.mm.InitModuleServices(All)
	if err != nil {
		return err
	}
	m.serviceMap = svcMap

	mgr, err := services.NewManager(slices.Collect(maps.Values(svcMap))...)
	if err != nil {
		m.logger.With("err", err).Error("failed to start service manager")
		return err
	}

	servicesFailed := func(service services.Service) {
		mgr.StopAsync()

		for name, s := range svcMap {
			if s == service {
				if errors.Is(service.FailureCase(), modules.ErrStopProcess) {
					m.logger.With("module", name, "error", service.FailureCase()).Info("received stop signal via return error")
				} else {
					m.logger.With("module", name, "error", service.FailureCase()).Error("module failed")
				}
				return
			}
		}
		m.logger.With("module", "unknown", "error", service.FailureCase()).Error("module failed")
	}

	mgr.AddListener(services.NewManagerListener(
		func() {},
		func() {},
		servicesFailed,
	))

	handler := signals.NewHandler(m.serverConf.Log)
	go func() {
		handler.Loop()
		mgr.StopAsync()
	}()
	runDone := make(chan struct{})
	defer close(runDone)
	go func() {
		select {
		case <-ctx.Done():
		case <-runDone:
		}
		handler.Stop()
	}()

	printRoutes(m.server.HTTP, m.logger)
	if err := mgr.StartAsync(context.Background()); err != nil {
		return err
	}
	if err := mgr.AwaitStopped(context.Background()); err != nil {
		return err
	}

	for _, f := range mgr.ServicesByState()[services.Failed] {
		if !errors.Is(f.FailureCase(), modules.ErrStopProcess) {
			// Details were reported via failure listener before
			return fmt.Errorf("services failed")
		}
	}
	return nil
}

// newServerService runs the dskit server as a module. servicesToWaitFor is
// called when the server is stopping and returns every service that must
// terminate before the listener closes.
func (m *Monitor) newServerService(servicesToWaitFor func() []services.Service) services.Service {
	l := m.logger.With("service", ServerService)
	serverDone := make(chan error, 1)

	runFn := func(ctx context.Context) error {
		go func() {
			defer close(serverDone)
			l.With("http-addr", m.Addr().String()).Info("running")
			serverDone <- m.server.Run()
		}()

		select {
		case <-ctx.Done():
			return nil
		case err := <-serverDone:
			if err != nil {
				return fmt.Errorf("server stopped unexpectedly: %w", err)
			}
			return nil
		}
	}

	stoppingFn := func(_ error) error {
		for _, s := range servicesToWaitFor() {
			_ = s.AwaitTerminated(context.Background())
		}

		m.server.Shutdown()

		<-serverDone
		l.Info("server stopped")
		return nil
	}

	return services.NewBasicService(nil, runFn, stoppingFn)
}
