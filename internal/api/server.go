package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-iot/internal/action"
	"github.com/nerrad567/gray-logic-iot/internal/automation"
	"github.com/nerrad567/gray-logic-iot/internal/device"
	"github.com/nerrad567/gray-logic-iot/internal/history"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-iot/internal/notification"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceService is the registry surface the API needs.
type DeviceService interface {
	Onboard(ctx context.Context, uniqueID string) ([]device.Device, bool, error)
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	ListDevices(ctx context.Context) ([]device.Device, error)
}

// ActionExecutor runs a device transition.
type ActionExecutor interface {
	Execute(ctx context.Context, deviceID string, a action.Action, trigger history.Trigger) (*device.Device, error)
}

// SettingsService manages automation settings and schedules.
type SettingsService interface {
	GetSettings(ctx context.Context, deviceID string) (*automation.Setting, error)
	UpdateSettings(ctx context.Context, deviceID string, patch automation.Patch) (*automation.Setting, error)
	UpsertSchedule(ctx context.Context, deviceID, day, onTime, offTime string) (*automation.Schedule, error)
	DeleteSchedule(ctx context.Context, deviceID, day string) error
}

// InboxService is the per-user notification inbox.
type InboxService interface {
	ListForUser(ctx context.Context, userID string, page, limit int) (*notification.Inbox, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, readID, userID string) error
	DeleteForUser(ctx context.Context, readID, userID string) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config        config.APIConfig
	WS            config.WebSocketConfig
	Security      config.SecurityConfig
	Metrics       config.MetricsConfig
	Logger        *logging.Logger
	DB            *sql.DB
	Hub           *Hub
	Devices       DeviceService
	Actions       ActionExecutor
	Settings      SettingsService
	History       history.Repository
	Notifications InboxService
	Prometheus    *metrics.Metrics // optional
	Version       string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	metricsCfg config.MetricsConfig
	logger     *logging.Logger
	db         *sql.DB
	hub        *Hub
	devices    DeviceService
	actions    ActionExecutor
	settings   SettingsService
	history    history.Repository
	inbox      InboxService
	prom       *metrics.Metrics
	version    string
	server     *http.Server
	cancel     context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called. The hub is shared
// with the domain services so their broadcasts reach this server's clients.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	case deps.DB == nil:
		return nil, errors.New("database is required")
	case deps.Hub == nil:
		return nil, errors.New("websocket hub is required")
	case deps.Devices == nil || deps.Actions == nil || deps.Settings == nil ||
		deps.History == nil || deps.Notifications == nil:
		return nil, errors.New("domain services are required")
	case deps.Security.JWT.Secret == "":
		return nil, errors.New("jwt secret is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		metricsCfg: deps.Metrics,
		logger:     deps.Logger,
		db:         deps.DB,
		hub:        deps.Hub,
		devices:    deps.Devices,
		actions:    deps.Actions,
		settings:   deps.Settings,
		history:    deps.History,
		inbox:      deps.Notifications,
		prom:       deps.Prometheus,
		version:    deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
