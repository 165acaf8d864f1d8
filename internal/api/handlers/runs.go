package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/precatorios/internal/models"
	"github.com/nexconsult/precatorios/internal/pipeline"
	"github.com/nexconsult/precatorios/internal/services"
	"github.com/sirupsen/logrus"
)

// RunsHandler starts runs and reports their progress and evidence
type RunsHandler struct {
	runs          services.RunManagerInterface
	journal       services.OutcomeStore
	lister        pipeline.PartitionLister
	detector      *pipeline.GapDetector
	defaultRegime models.Regime
	logger        *logrus.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(runs services.RunManagerInterface, journal services.OutcomeStore, lister pipeline.PartitionLister, detector *pipeline.GapDetector, defaultRegime models.Regime, logger *logrus.Logger) *RunsHandler {
	return &RunsHandler{
		runs:          runs,
		journal:       journal,
		lister:        lister,
		detector:      detector,
		defaultRegime: defaultRegime,
		logger:        logger,
	}
}

// StartRunRequest is the body of POST /runs
type StartRunRequest struct {
	Regime          string `json:"regime" example:"geral"`
	EntityID        int    `json:"entity_id" example:"1"`
	Workers         int    `json:"workers" example:"10"`
	RecoveryWorkers int    `json:"recovery_workers" example:"5"`
	SkipRecovery    bool   `json:"skip_recovery"`
}

// StartRun starts an asynchronous run
// @Summary Start a run
// @Description Starts an extraction run in the background. Only one run may be active.
// @Tags Runs
// @Accept json
// @Produce json
// @Param request body StartRunRequest false "Run parameters"
// @Success 202 {object} models.StandardResponse
// @Failure 400 {object} models.StandardResponse
// @Failure 409 {object} models.StandardResponse
// @Router /api/v1/runs [post]
func (h *RunsHandler) StartRun(c *gin.Context) {
	start := time.Now()

	var body StartRunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, http.StatusBadRequest, start, models.ErrorCodeInvalidRequest, "invalid request body", err.Error())
			return
		}
	}

	req, err := h.toRunRequest(body)
	if err != nil {
		respondError(c, http.StatusBadRequest, start, models.ErrorCodeInvalidRequest, err.Error(), nil)
		return
	}

	state, err := h.runs.Start(req)
	if err != nil {
		if errors.Is(err, services.ErrRunInProgress) {
			active, _ := h.runs.Active()
			respondError(c, http.StatusConflict, start, models.ErrorCodeRunInProgress, err.Error(), gin.H{"active_run": active})
			return
		}
		h.logger.WithError(err).Error("Failed to start run")
		respondError(c, http.StatusInternalServerError, start, models.ErrorCodeInternalError, err.Error(), nil)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"request_id": c.GetString("request_id"),
		"run_id":     state.ID,
	}).Info("Run started via API")

	c.Header("Location", "/api/v1/runs/"+state.ID)
	respond(c, http.StatusAccepted, start, "Run started", state)
}

func (h *RunsHandler) toRunRequest(body StartRunRequest) (pipeline.RunRequest, error) {
	req := pipeline.RunRequest{
		EntityID:        body.EntityID,
		Workers:         body.Workers,
		RecoveryWorkers: body.RecoveryWorkers,
		SkipRecovery:    body.SkipRecovery,
	}
	if body.Regime != "" {
		regime, err := models.ParseRegime(body.Regime)
		if err != nil {
			return req, err
		}
		req.Regime = regime
	}
	if body.Workers < 0 || body.RecoveryWorkers < 0 || body.EntityID < 0 {
		return req, errors.New("workers, recovery_workers and entity_id must not be negative")
	}
	return req, nil
}

// ListRuns lists known runs
// @Summary List runs
// @Tags Runs
// @Produce json
// @Success 200 {object} models.StandardResponse
// @Router /api/v1/runs [get]
func (h *RunsHandler) ListRuns(c *gin.Context) {
	start := time.Now()
	runs := h.runs.List()
	for i := range runs {
		runs[i].Result = withoutOutcomes(runs[i].Result)
	}
	respond(c, http.StatusOK, start, "Runs listed", runs)
}

// GetRun returns the status, latest progress and summary of a run
// @Summary Get a run
// @Tags Runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} models.StandardResponse
// @Failure 404 {object} models.StandardResponse
// @Router /api/v1/runs/{id} [get]
func (h *RunsHandler) GetRun(c *gin.Context) {
	start := time.Now()
	state, err := h.runs.Get(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusNotFound, start, models.ErrorCodeRunNotFound, err.Error(), nil)
		return
	}
	respond(c, http.StatusOK, start, "Run found", state)
}

// GetOutcomes returns the journaled partition outcomes of a run
// @Summary Get run outcomes
// @Description Outcomes are read from the journal, so they are available while the run is in progress
// @Tags Runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} models.StandardResponse
// @Failure 404 {object} models.StandardResponse
// @Router /api/v1/runs/{id}/outcomes [get]
func (h *RunsHandler) GetOutcomes(c *gin.Context) {
	start := time.Now()
	runID := c.Param("id")

	outcomes, err := h.journal.Load(c.Request.Context(), runID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, start, models.ErrorCodeJournalError, err.Error(), nil)
		return
	}
	if len(outcomes) == 0 {
		if _, err := h.runs.Get(runID); err != nil {
			respondError(c, http.StatusNotFound, start, models.ErrorCodeRunNotFound, err.Error(), nil)
			return
		}
	}
	respond(c, http.StatusOK, start, "Outcomes loaded", outcomes)
}

// GetGaps runs gap detection over the journaled evidence of a run
// @Summary Get run gaps
// @Description Partitions without a journaled outcome are reported as not_attempted
// @Tags Runs
// @Produce json
// @Param id path string true "Run ID"
// @Param regime query string false "Regime, for runs this process did not start"
// @Success 200 {object} models.StandardResponse
// @Failure 404 {object} models.StandardResponse
// @Router /api/v1/runs/{id}/gaps [get]
func (h *RunsHandler) GetGaps(c *gin.Context) {
	start := time.Now()
	runID := c.Param("id")

	regime := h.defaultRegime
	entityID := 0
	if state, err := h.runs.Get(runID); err == nil {
		if state.Request.Regime != "" {
			regime = state.Request.Regime
		}
		entityID = state.Request.EntityID
	}
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
		respondError(c, http.StatusBadGateway, start, models.ErrorCodeListingFailed, err.Error(), nil)
		return
	}
	if entityID > 0 {
		partitions = filterPartitions(partitions, entityID)
	}

	gaps, err := h.detector.DetectFromJournal(c.Request.Context(), h.journal, runID, partitions)
	if err != nil {
		respondError(c, http.StatusInternalServerError, start, models.ErrorCodeJournalError, err.Error(), nil)
		return
	}

	respond(c, http.StatusOK, start, "Gaps detected", gin.H{
		"run_id":     runID,
		"regime":     regime,
		"partitions": len(partitions),
		"flagged":    len(gaps),
		"gaps":       gaps,
	})
}

func filterPartitions(partitions []models.Partition, entityID int) []models.Partition {
	var out []models.Partition
	for _, p := range partitions {
		if p.ID == entityID {
			out = append(out, p)
		}
	}
	return out
}

// withoutOutcomes trims a result for list views
func withoutOutcomes(result *models.RunResult) *models.RunResult {
	if result == nil {
		return nil
	}
	trimmed := *result
	trimmed.Outcomes = nil
	return &trimmed
}
