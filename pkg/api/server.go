// @title           Home Assistant Config Agent API
// @version         1.0
// @description     Chat, approval and backup endpoints of the configuration agent.
// @BasePath        /

package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yinzara/ha-config-ai-agent/pkg/api/handler"
	"github.com/yinzara/ha-config-ai-agent/pkg/api/middleware"
)

// Config defines the HTTP server settings.
type Config struct {
	Addr    string
	APIKey  string
	Version string
}

// Deps are the components served over HTTP.
type Deps struct {
	Chat     handler.Chatter
	Approver handler.Approver
	Backups  handler.BackupStore
}

// Server hosts the Gin engine.
type Server struct {
	engine *gin.Engine
	config Config
	deps   Deps
	log    *slog.Logger
}

// NewServer constructs the HTTP API server.
func NewServer(cfg Config, deps Deps, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	if cfg.Addr == "" {
		cfg.Addr = ":8099"
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLog(log))

	srv := &Server{
		engine: engine,
		config: cfg,
		deps:   deps,
		log:    log,
	}

	srv.setupRoutes()

	return srv
}

// Engine returns the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Handler returns the engine behind the path normalization that has to run
// before routing.
func (s *Server) Handler() http.Handler {
	return middleware.StripDoubleSlash(s.engine)
}

// Addr returns the configured address.
func (s *Server) Addr() string {
	return s.config.Addr
}

// Run serves until ctx is cancelled, then shuts down gracefully. Open
// streams are cancelled together with ctx.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http api listening", "addr", s.config.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down http api")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
