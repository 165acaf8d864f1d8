package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/precatorios/internal/models"
)

// StatsProvider exposes component counters to the metrics endpoint
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// HealthChecker reports the health of every component
type HealthChecker interface {
	Health() map[string]interface{}
}

func respond(c *gin.Context, status int, start time.Time, message string, data interface{}) {
	resp := models.NewSuccessResponse(message, data)
	resp.SetRequestID(c.GetString("request_id"))
	resp.SetExecutionTime(time.Since(start))
	c.JSON(status, resp)
}

func respondError(c *gin.Context, status int, start time.Time, code, message string, details interface{}) {
	resp := models.NewErrorResponse(code, message, details)
	resp.SetRequestID(c.GetString("request_id"))
	resp.SetExecutionTime(time.Since(start))
	c.JSON(status, resp)
}
