package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/abhigit-saha/hack36-sub000/internal/model"
)

// StatsSource reports the live state of the socket hub.
type StatsSource interface {
	GetStats() model.MonitorResponse
}

// MonitorHandler handles monitoring API endpoints
type MonitorHandler interface {
	GetHubStats(c *gin.Context)
}

type monitorHandler struct {
	stats StatsSource
}

func NewMonitorHandler(stats StatsSource) MonitorHandler {
	return &monitorHandler{stats: stats}
}

// GetHubStats returns live connection, room and janitor statistics.
// ?clients=false drops the per-client list.
// @Summary Get chat hub statistics
// @Tags Monitor
// @Produce json
// @Param clients query bool false "include the client list (default true)"
// @Success 200 {object} model.MonitorEnvelope
// @Failure 400 {object} model.MonitorEnvelope
// @Router /chat/api/monitor/stats [get]
func (h *monitorHandler) GetHubStats(c *gin.Context) {
	withClients := true
	if raw, ok := c.GetQuery("clients"); ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, model.MonitorEnvelope{
				HttpStatusCode: http.StatusBadRequest,
				Message:        "clients must be a boolean",
			})
			return
		}
		withClients = v
	}

	stats := h.stats.GetStats()
	if !withClients {
		stats.Clients = nil
	}

	message := "Hub statistics retrieved successfully"
	if stats.Status == "idle" {
		message = "Hub is idle"
	}

	c.JSON(http.StatusOK, model.MonitorEnvelope{
		HttpStatusCode: http.StatusOK,
		ResponseBody:   &stats,
		IsSuccess:      true,
		Message:        message,
	})
}
