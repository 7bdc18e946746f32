package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openappstack/installd/internal/bus"
	"github.com/openappstack/installd/internal/config"
	"github.com/openappstack/installd/internal/logging"
	"github.com/openappstack/installd/internal/monitoring"
	"github.com/openappstack/installd/internal/registry"
	"github.com/openappstack/installd/internal/store"
)

// Server hosts the bus endpoint and the operational HTTP surface.
type Server struct {
	router  *gin.Engine
	hub     *bus.Hub
	manager *registry.Manager
	store   *store.FileStore
	logger  *logging.Logger
	metrics *monitoring.Metrics
	config  *config.Config

	httpSrv *http.Server
}

// New wires the store, hub and registry manager together and builds the
// router. The registry is live once New returns: objects for all
// already-installed applications are exported.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	metrics := monitoring.NewMetrics()

	fileStore, err := store.Open(cfg.Store.DataDir, logger.Named("store"))
	if err != nil {
		return nil, err
	}

	hub := bus.NewHub(logger.Named("bus"), metrics)
	manager := registry.NewManager(hub, fileStore, logger.Named("registry"), metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	if cfg.RateLimit.Enabled {
		router.Use(rateLimitMiddleware(cfg.RateLimit))
	}

	router.GET("/bus", hub.HandleConnection)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"installed": len(fileStore.GetAllInstalled()),
		})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	return &Server{
		router:  router,
		hub:     hub,
		manager: manager,
		store:   fileStore,
		logger:  logger,
		metrics: metrics,
		config:  cfg,
	}, nil
}

// Run starts serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Run() error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("installd listening", zap.String("addr", addr))
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP listener, drains the bus and withdraws the
// registry. The hub closes first: http.Server.Shutdown leaves hijacked
// WebSocket connections running, so only after hub.Close returns (dispatch
// goroutine exited, no handler in flight) is it safe for manager.Close to
// mutate the object collection.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	s.hub.Close()
	s.manager.Close()
	return err
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
