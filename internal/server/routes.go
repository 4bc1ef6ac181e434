package server

import (
	"context"
	"net/http"
	"time"

	"multiactivity/internal/gate"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes builds the gin engine
func (s *Server) RegisterRoutes() http.Handler {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(s.deps.Logger))
	if len(s.cfg.AllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.cfg.AllowOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
			AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
			ExposeHeaders:    []string{RequestIDHeader, gate.TokenHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/health", s.healthHandler)

	guard := gate.Require(s.deps.Sessions, s.deps.Tokens, s.deps.Logger)

	if s.deps.Auth != nil {
		s.deps.Auth.RegisterRoutes(r, guard)
	}

	api := r.Group("/api", guard)
	{
		if s.deps.Auth != nil {
			api.DELETE("/account", s.deps.Auth.DeleteAccount)
		}
		for _, h := range s.deps.Activities {
			h.RegisterRoutes(api)
		}
	}

	return r
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	response := make(map[string]any)
	healthy := true

	if s.deps.DB != nil {
		dbHealth := s.deps.DB.Health()
		response["database"] = dbHealth
		if dbHealth["status"] != "up" {
			healthy = false
		}
	}

	if s.deps.Redis != nil {
		redisHealth := map[string]string{"status": "up"}
		if err := s.deps.Redis.Ping(ctx).Err(); err != nil {
			redisHealth["status"] = "down"
			redisHealth["error"] = err.Error()
			healthy = false
		}
		response["redis"] = redisHealth
	}

	if s.deps.Storage != nil {
		storageHealth := map[string]string{"status": "up"}
		if err := s.deps.Storage.Health(ctx); err != nil {
			storageHealth["status"] = "down"
			storageHealth["error"] = err.Error()
			healthy = false
		}
		response["storage"] = storageHealth
	}

	if s.deps.Sessions != nil {
		response["session"] = s.deps.Sessions.State().String()
	}

	status := http.StatusOK
	response["status"] = "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		response["status"] = "unhealthy"
	}
	c.JSON(status, response)
}
