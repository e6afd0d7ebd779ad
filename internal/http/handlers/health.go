package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/luissimon96/migration-validation-voe/internal/fingerprint"
	"github.com/luissimon96/migration-validation-voe/internal/http/response"
	"github.com/luissimon96/migration-validation-voe/internal/llm"
	"github.com/luissimon96/migration-validation-voe/internal/repos"
)

// HealthHandler answers GET /health with a per-subsystem breakdown: the
// overall status degrades to "degraded" rather than failing the request
// outright, since a single down LLM provider shouldn't take the whole API
// surface off a load balancer's healthy pool.
type HealthHandler struct {
	db         *gorm.DB
	sessions   repos.SessionRepo
	dispatcher *llm.Dispatcher
	cache      *fingerprint.Cache
}

func NewHealthHandler(db *gorm.DB, sessions repos.SessionRepo, dispatcher *llm.Dispatcher, cache *fingerprint.Cache) *HealthHandler {
	return &HealthHandler{db: db, sessions: sessions, dispatcher: dispatcher, cache: cache}
}

func (h *HealthHandler) Check(c *gin.Context) {
	subsystems := gin.H{}
	healthy := true

	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		subsystems["database"] = "down"
		healthy = false
	} else {
		subsystems["database"] = "up"
	}

	if depth, err := h.sessions.QueueDepth(c.Request.Context(), nil); err != nil {
		subsystems["scheduler"] = "down"
		healthy = false
	} else {
		subsystems["scheduler"] = gin.H{"status": "up", "queue_depth": depth}
	}

	if h.cache != nil {
		if err := h.cache.Ping(c.Request.Context()); err != nil {
			subsystems["cache"] = "down"
			healthy = false
		} else {
			subsystems["cache"] = "up"
		}
	}

	if h.dispatcher != nil {
		providerHealth := h.dispatcher.ProviderHealth()
		subsystems["llm_providers"] = providerHealth
		for _, up := range providerHealth {
			if !up {
				healthy = false
			}
		}
	}

	status := "healthy"
	if !healthy {
		status = "degraded"
	}
	response.RespondOK(c, gin.H{"status": status, "subsystems": subsystems})
}
