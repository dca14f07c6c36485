package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// DashboardHandler serves the examiner overview.
type DashboardHandler struct {
	dashboardService *service.DashboardService
	log              zerolog.Logger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(dashboardService *service.DashboardService, log zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
		log:              log.With().Str("component", "dashboard_handler").Logger(),
	}
}

// Overview godoc
// GET /api/v1/dashboard?recent=5
// Totals, session status distribution, latest terminations, live attempts and queue backlog.
func (h *DashboardHandler) Overview(c *gin.Context) {
	recent := service.DefaultRecentTerminations
	if raw := c.Query("recent"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
				"recent": "must be a positive integer",
			})
			return
		}
		recent = n
	}

	data, err := h.dashboardService.Overview(c.Request.Context(), recent)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build dashboard")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, data)
}
