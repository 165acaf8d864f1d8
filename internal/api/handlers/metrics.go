package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/precatorios/internal/models"
	"github.com/nexconsult/precatorios/internal/pipeline"
	"github.com/nexconsult/precatorios/internal/services"
	"github.com/sirupsen/logrus"
)

// PoolStatsSource exposes the worker pool counters
type PoolStatsSource interface {
	Stats() pipeline.PoolStats
}

// MetricsHandler handles metrics requests
type MetricsHandler struct {
	pool    PoolStatsSource
	runs    services.RunManagerInterface
	cache   StatsProvider
	browser StatsProvider
	limiter StatsProvider
	logger  *logrus.Logger
}

// NewMetricsHandler creates a new metrics handler. limiter may be nil.
func NewMetricsHandler(pool PoolStatsSource, runs services.RunManagerInterface, cache, browser, limiter StatsProvider, logger *logrus.Logger) *MetricsHandler {
	return &MetricsHandler{
		pool:    pool,
		runs:    runs,
		cache:   cache,
		browser: browser,
		limiter: limiter,
		logger:  logger,
	}
}

// GetMetrics handles metrics request
// @Summary Get application metrics
// @Description Worker pool, run, cache and browser counters
// @Tags Metrics
// @Produce json
// @Success 200 {object} models.MetricsResponse
// @Router /metrics [get]
func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	h.logger.WithField("request_id", c.GetString("request_id")).Debug("Collecting metrics")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := h.pool.Stats()
	response := models.MetricsResponse{
		Pipeline: models.PipelineMetrics{
			WorkersStarted: stats.WorkersStarted,
			WorkersFatal:   stats.WorkersFatal,
			ActiveWorkers:  stats.ActiveWorkers,
			PagesOK:        stats.PagesOK,
			PagesFailed:    stats.PagesFailed,
		},
		Runs: h.runMetrics(),
		System: models.SystemMetrics{
			MemoryUsage: float64(m.Alloc) / 1024 / 1024,
			Goroutines:  runtime.NumGoroutine(),
		},
		Timestamp: time.Now(),
	}

	if h.cache != nil {
		cs := h.cache.GetStats()
		response.Cache = models.CacheMetrics{
			RedisEnabled: boolStat(cs, "redis_enabled"),
			Hits:         int64Stat(cs, "hits"),
			Misses:       int64Stat(cs, "misses"),
			Size:         int(int64Stat(cs, "memory_size")),
		}
		if total := response.Cache.Hits + response.Cache.Misses; total > 0 {
			response.Cache.HitRate = float64(response.Cache.Hits) / float64(total) * 100
		}
	}

	if h.browser != nil {
		bs := h.browser.GetStats()
		response.Browser = models.BrowserMetrics{
			ActiveBrowsers: int64Stat(bs, "active_browsers"),
			MaxBrowsers:    int(int64Stat(bs, "max_browsers")),
			Launched:       int64Stat(bs, "launched"),
			LaunchFailures: int64Stat(bs, "launch_failures"),
		}
	}

	if h.limiter != nil {
		response.RateLimit = h.limiter.GetStats()
	}

	c.JSON(http.StatusOK, response)
}

func (h *MetricsHandler) runMetrics() models.RunMetrics {
	var metrics models.RunMetrics
	metrics.ActiveID, metrics.Active = h.runs.Active()
	for _, run := range h.runs.List() {
		metrics.Total++
		switch run.Status {
		case services.RunCompleted:
			metrics.Completed++
		case services.RunFailed:
			metrics.Failed++
		}
	}
	return metrics
}

// int64Stat reads a numeric stat regardless of its integer type
func int64Stat(stats map[string]interface{}, key string) int64 {
	switch v := stats[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	default:
		return 0
	}
}

func boolStat(stats map[string]interface{}, key string) bool {
	v, _ := stats[key].(bool)
	return v
}
