package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/luissimon96/migration-validation-voe/internal/http/handlers"
	httpMW "github.com/luissimon96/migration-validation-voe/internal/http/middleware"
	"github.com/luissimon96/migration-validation-voe/internal/observability"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
)

// RouterConfig wires C10's handlers and cross-cutting middleware into the
// gin engine. Every handler is optional (nil-checked) so a partially
// wired server — e.g. a CLI-only build with no HTTP surface — still
// compiles and runs against whatever subset is configured.
type RouterConfig struct {
	ValidateHandler    *httpH.ValidateHandler
	RealtimeHandler    *httpH.RealtimeHandler
	TechnologyHandler  *httpH.TechnologyHandler
	HealthHandler      *httpH.HealthHandler

	AuthMiddleware *httpMW.AuthMiddleware
	RateLimiter    *httpMW.RateLimiter
	Metrics        *observability.Metrics
	Log            *logger.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.CORS())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	if cfg.Metrics != nil {
		r.Use(httpMW.Metrics(cfg.Metrics))
	}

	limit := func(class httpMW.EndpointClass) gin.HandlerFunc {
		if cfg.RateLimiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return cfg.RateLimiter.Limit(class)
	}

	if cfg.HealthHandler != nil {
		r.GET("/health", cfg.HealthHandler.Check)
	}

	publicAPI := r.Group("/api")
	if cfg.TechnologyHandler != nil {
		publicAPI.GET("/technologies", limit(httpMW.ClassAPIGeneral), cfg.TechnologyHandler.List)
	}

	api := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.RequireAuth())
	}

	if cfg.ValidateHandler != nil {
		api.POST("/validate", limit(httpMW.ClassUpload), cfg.ValidateHandler.Submit)
		api.POST("/validate/hybrid", limit(httpMW.ClassUpload), cfg.ValidateHandler.Hybrid)
		api.GET("/validate/:request_id/status", limit(httpMW.ClassAPIGeneral), cfg.ValidateHandler.Status)
		api.GET("/validate/:request_id/result", limit(httpMW.ClassDownload), cfg.ValidateHandler.Result)
		api.GET("/validate/:request_id/report", limit(httpMW.ClassDownload), cfg.ValidateHandler.Report)
		api.DELETE("/validate/:request_id", limit(httpMW.ClassAPIGeneral), cfg.ValidateHandler.Cancel)

		api.POST("/behavioral/validate", limit(httpMW.ClassValidation), cfg.ValidateHandler.BehavioralValidate)
	}

	if cfg.RealtimeHandler != nil {
		api.GET("/validate/:request_id/events", limit(httpMW.ClassAPIGeneral), cfg.RealtimeHandler.Stream)
	}

	return r
}
