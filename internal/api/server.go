// Package api serves the HTTP interface the CRM frontend and walinkctl
// consume: instance CRUD, poll control, sync endpoints, the gateway
// webhook ingest and the SSE event stream.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/ticlin/walink/internal/bus"
	"github.com/ticlin/walink/internal/connect"
	"github.com/ticlin/walink/internal/manager"
	"github.com/ticlin/walink/internal/store"
	intsync "github.com/ticlin/walink/internal/sync"
	"go.uber.org/zap"
)

// API holds the handler dependencies.
type API struct {
	db      *store.DB
	mgr     *manager.Manager
	syncer  *intsync.Synchronizer
	drivers *connect.Drivers
	bus     *bus.Bus
	logger  *zap.Logger
}

// New creates the handler set.
func New(db *store.DB, mgr *manager.Manager, syncer *intsync.Synchronizer, drivers *connect.Drivers, b *bus.Bus, logger *zap.Logger) *API {
	return &API{
		db:      db,
		mgr:     mgr,
		syncer:  syncer,
		drivers: drivers,
		bus:     b,
		logger:  logger,
	}
}

// Register mounts every route on the echo instance.
func (a *API) Register(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/instances", a.createInstance)
	g.GET("/instances", a.listInstances)
	g.GET("/instances/:id", a.getInstance)
	g.DELETE("/instances/:id", a.deleteInstance)

	g.POST("/instances/:id/poll/start", a.startPoll)
	g.POST("/instances/:id/poll/stop", a.stopPoll)
	g.POST("/instances/:id/poll/retry", a.retryPoll)
	g.GET("/instances/:id/poll", a.pollSnapshot)

	g.POST("/instances/:id/wait", a.startWait)
	g.DELETE("/instances/:id/wait", a.cancelWait)

	g.POST("/instances/:id/sync", a.syncInstance)
	g.POST("/sync/all", a.syncAll)

	e.POST("/webhook/gateway", a.gatewayWebhook)
	e.GET("/events", a.events)
	e.GET("/healthz", a.healthz)
}

func (a *API) healthz(c echo.Context) error {
	if err := a.db.Ping(); err != nil {
		return fail(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", err.Error())
	}
	return ok(c, echo.Map{"status": "up"})
}

// Server wraps the echo instance with the daemon lifecycle.
type Server struct {
	e      *echo.Echo
	addr   string
	logger *zap.Logger
}

// NewServer builds the HTTP server and mounts the API on it.
func NewServer(addr string, a *API, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	a.Register(e)
	return &Server{e: e, addr: addr, logger: logger}
}

// Start blocks serving until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("http api listening", zap.String("addr", s.addr))
	if err := s.e.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}
