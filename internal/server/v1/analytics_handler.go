package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/llm-proxy/internal/analytics"
	"github.com/nulzo/llm-proxy/pkg/api"
)

type AnalyticsHandler struct {
	service analytics.Service
}

func NewAnalyticsHandler(service analytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
	}
}

// GetUsage returns daily aggregates, or the recent records of one user when
// user_id is given.
func (h *AnalyticsHandler) GetUsage(c *gin.Context) {
	if raw := c.Query("user_id"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			_ = c.Error(api.BadRequestError("Invalid 'user_id' parameter"))
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

		records, err := h.service.GetRecent(c.Request.Context(), userID, limit)
		if err != nil {
			_ = c.Error(api.InternalError("Failed to fetch usage records", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"object": "list", "data": records})
		return
	}

	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil {
		_ = c.Error(api.BadRequestError("Invalid 'days' parameter"))
		return
	}

	stats, err := h.service.GetUsageOverview(c.Request.Context(), days)
	if err != nil {
		_ = c.Error(api.InternalError("Failed to fetch analytics", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   stats,
	})
}

func (h *AnalyticsHandler) GetRecord(c *gin.Context) {
	rec, err := h.service.GetRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
