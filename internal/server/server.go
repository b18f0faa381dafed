// Package server assembles the gin router for the public waitlist endpoint and
// the operator admin surface.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"teed-waitlist/internal/admin"
	"teed-waitlist/internal/common/auth"
	"teed-waitlist/internal/common/config"
	"teed-waitlist/internal/common/logger"
	"teed-waitlist/internal/common/ratelimit"
	"teed-waitlist/internal/waitlist"
)

// Pinger is satisfied by the Postgres and Redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Applicant interface {
	Apply(ctx context.Context, req waitlist.ApplyRequest) (*waitlist.ApplyResult, error)
}

// Deps are the collaborators the router dispatches to. Nil Limiter disables rate
// limiting; nil Checks leaves /ready always green.
type Deps struct {
	Admin     *admin.Handler
	Waitlist  Applicant
	Identity  auth.IdentityProvider
	Operators auth.OperatorChecker
	Limiter   *ratelimit.Limiter
	Checks    map[string]Pinger
}

type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	engine *gin.Engine
	http   *http.Server
	logger logger.Logger
}

func New(cfg config.ServerConfig, deps Deps, log logger.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: log.WithFields(map[string]interface{}{"component": "http"}),
	}
	s.engine = s.routes()
	s.http = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.engine,
		ReadTimeout:  durationOr(cfg.ReadTimeout, 15*time.Second),
		WriteTimeout: durationOr(cfg.WriteTimeout, 30*time.Second),
	}
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger), corsMiddleware(s.cfg.AllowedOrigins))

	r.GET("/health", s.health)
	r.GET("/ready", s.ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/waitlist/apply",
		s.rateLimit("public", clientIPKey),
		s.apply,
	)

	if s.deps.Admin != nil {
		rg := api.Group("/admin/scoring",
			requireOperator(s.deps.Identity, s.deps.Operators, s.logger),
			s.rateLimit("admin", operatorKey),
		)
		s.deps.Admin.RegisterRoutes(rg)
	}
	return r
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", map[string]interface{}{"addr": s.http.Addr})
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	} else {
		c.AllowOrigins = origins
	}
	return cors.New(c)
}

func durationOr(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return config.GetDuration(ms)
}
