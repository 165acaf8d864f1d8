package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/precatorios/internal/models"
	"github.com/nexconsult/precatorios/internal/pipeline"
	"github.com/sirupsen/logrus"
)

// PartitionsHandler lists the debtor entities of a regime
type PartitionsHandler struct {
	lister        pipeline.PartitionLister
	defaultRegime models.Regime
	logger        *logrus.Logger
}

// NewPartitionsHandler creates a new partitions handler
func NewPartitionsHandler(lister pipeline.PartitionLister, defaultRegime models.Regime, logger *logrus.Logger) *PartitionsHandler {
	return &PartitionsHandler{
		lister:        lister,
		defaultRegime: defaultRegime,
		logger:        logger,
	}
}

// ListPartitions lists the entities of a regime with their expected record counts
// @Summary List partitions
// @Tags Partitions
// @Produce json
// @Param regime query string false "geral or especial"
// @Success 200 {object} models.StandardResponse
// @Failure 400 {object} models.StandardResponse
// @Failure 502 {object} models.StandardResponse
// @Router /api/v1/partitions [get]
func (h *PartitionsHandler) ListPartitions(c *gin.Context) {
	start := time.Now()

	regime := h.defaultRegime
	if q := c.Query("regime"); q != "" {
		parsed, err := models.ParseRegime(q)
		if err != nil {
			respondError(c, http.StatusBadRequest, start, models.ErrorCodeInvalidRequest, err.Error(), nil)
			return
		}
		regime = parsed
	}

	partitions, err := h.lister.ListPartitions(c.Request.Context(), regime)
	if err != nil {
		h.logger.WithError(err).WithField("regime", regime).Error("Partition listing failed")
		respondError(c, http.StatusBadGateway, start, models.ErrorCodeListingFailed, err.Error(), nil)
		return
	}

	expected := 0
	for _, p := range partitions {
		expected += p.ExpectedRecords
	}

	respond(c, http.StatusOK, start, "Partitions listed", gin.H{
		"regime":           regime,
		"count":            len(partitions),
		"expected_records": expected,
		"partitions":       partitions,
	})
}
