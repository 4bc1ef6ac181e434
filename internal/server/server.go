// Package server assembles the multiactivity HTTP API: public auth routes,
// the gated /api activity routes and the health endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"multiactivity/internal/auth"
	"multiactivity/internal/config"
	"multiactivity/internal/database"
	"multiactivity/internal/gate"
	"multiactivity/internal/session"
	"multiactivity/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RouteRegistrar is an activity handler mounted under /api
type RouteRegistrar interface {
	RegisterRoutes(r gin.IRouter)
}

// Pinger checks the Redis connection
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// Deps holds everything the server routes to
type Deps struct {
	DB       database.Service
	Redis    Pinger
	Storage  storage.Service
	Sessions session.Accessor
	// Tokens verifies access tokens of earlier refreshes; nil accepts only
	// the current token
	Tokens   gate.Verifier
	Auth     *auth.Handler

	// Activities are mounted under /api behind gate.Require
	Activities []RouteRegistrar

	Logger *slog.Logger
}

// Server holds the dependencies for the HTTP server
type Server struct {
	cfg  config.ServerConfig
	deps Deps
}

// New creates a server from cfg and deps
func New(cfg config.ServerConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{cfg: cfg, deps: deps}
}

// HTTPServer returns an http.Server serving the API on the configured port
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.RegisterRoutes(),
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
