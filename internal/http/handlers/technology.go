package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/http/response"
)

// TechnologyHandler serves the fixed catalog GET /api/technologies reports.
type TechnologyHandler struct{}

func NewTechnologyHandler() *TechnologyHandler {
	return &TechnologyHandler{}
}

func (h *TechnologyHandler) List(c *gin.Context) {
	response.RespondOK(c, gin.H{"technologies": voe.Technologies()})
}
