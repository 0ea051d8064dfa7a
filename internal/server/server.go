package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/agencydesk/internal/access"
	approvaldomain "github.com/smallbiznis/agencydesk/internal/approval/domain"
	auditdomain "github.com/smallbiznis/agencydesk/internal/audit/domain"
	authdomain "github.com/smallbiznis/agencydesk/internal/auth/domain"
	"github.com/smallbiznis/agencydesk/internal/config"
	"github.com/smallbiznis/agencydesk/internal/observability"
	obsmiddleware "github.com/smallbiznis/agencydesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/agencydesk/internal/observability/metrics"
	obstracing "github.com/smallbiznis/agencydesk/internal/observability/tracing"
	"github.com/smallbiznis/agencydesk/internal/ratelimit"
	regdomain "github.com/smallbiznis/agencydesk/internal/registration/domain"
	rosterdomain "github.com/smallbiznis/agencydesk/internal/roster/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	guard           *access.Guard
	authSvc         authdomain.Service
	registrationSvc regdomain.Service
	approvalSvc     approvaldomain.Service
	rosterSvc       rosterdomain.Service
	auditSvc        auditdomain.Service
	submitLimiter   *ratelimit.SubmitLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Guard           *access.Guard
	AuthSvc         authdomain.Service
	RegistrationSvc regdomain.Service
	ApprovalSvc     approvaldomain.Service
	RosterSvc       rosterdomain.Service
	AuditSvc        auditdomain.Service
	SubmitLimiter   *ratelimit.SubmitLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		guard:           p.Guard,
		authSvc:         p.AuthSvc,
		registrationSvc: p.RegistrationSvc,
		approvalSvc:     p.ApprovalSvc,
		rosterSvc:       p.RosterSvc,
		auditSvc:        p.AuditSvc,
		submitLimiter:   p.SubmitLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerRegistrationRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/login", s.Login)
	auth.GET("/me", s.guard.PrincipalRequired(), s.Me)
	auth.POST("/change-password", s.guard.PrincipalRequired(), s.ChangePassword)
}

func (s *Server) registerRegistrationRoutes() {
	regs := s.engine.Group("/team-registrations")

	regs.POST("", s.SubmitRateLimit(), s.SubmitRegistration)
	regs.GET("", s.ListRegistrations)
	regs.GET("/:id", s.GetRegistration)
	regs.PUT("/:id", s.guard.AdminRequired(), s.UpdateRegistration)
	regs.DELETE("/:id", s.guard.AdminRequired(), s.DeleteRegistration)
	regs.POST("/:id/approve", s.guard.AdminRequired(), s.ApproveRegistration)
	regs.POST("/:id/reject", s.guard.AdminRequired(), s.RejectRegistration)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.guard.AdminRequired())

	admin.POST("/create-team-member", s.CreateTeamMember)

	admin.GET("/users", s.ListUsers)
	admin.POST("/users", s.CreateAdmin)
	admin.GET("/users/:id", s.GetUser)
	admin.POST("/users/:id/promote", s.PromoteUser)
	admin.POST("/users/:id/demote", s.DemoteUser)
	admin.DELETE("/users/:id", s.DeleteUser)

	admin.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

// actor returns the caller stored by the access middleware. Routes without
// the middleware never reach a handler that asks.
func (s *Server) actor(c *gin.Context) (rosterdomain.Actor, bool) {
	actor, ok := access.ActorFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
	}
	return actor, ok
}
