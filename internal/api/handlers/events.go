package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/precatorios/internal/models"
	"github.com/nexconsult/precatorios/internal/services"
	"github.com/sirupsen/logrus"
)

// GetEvents streams the progress of a run as server-sent events
// @Summary Stream run progress
// @Description Sends a status event, then progress events until the run ends, then a result or error event
// @Tags Runs
// @Produce text/event-stream
// @Param id path string true "Run ID"
// @Success 200 {object} models.StreamMessage
// @Failure 404 {object} models.StandardResponse
// @Router /api/v1/runs/{id}/events [get]
func (h *RunsHandler) GetEvents(c *gin.Context) {
	start := time.Now()
	runID := c.Param("id")

	events, cancel, err := h.runs.Subscribe(runID)
	if err != nil {
		respondError(c, http.StatusNotFound, start, models.ErrorCodeRunNotFound, err.Error(), nil)
		return
	}
	defer cancel()

	state, _ := h.runs.Get(runID)
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(string(models.StreamStatus), models.NewStreamMessage(models.StreamStatus, runID, statusMessage(state)))

	log := h.logger.WithFields(logrus.Fields{
		"request_id": c.GetString("request_id"),
		"run_id":     runID,
	})
	log.Debug("Event stream opened")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				h.finalEvent(c, runID)
				return false
			}
			c.SSEvent(string(models.StreamProgress), models.NewStreamMessage(models.StreamProgress, runID, event))
			return true
		case <-ctx.Done():
			log.Debug("Event stream closed by client")
			return false
		}
	})
}

// finalEvent sends the outcome of a finished run
func (h *RunsHandler) finalEvent(c *gin.Context, runID string) {
	state, err := h.runs.Get(runID)
	if err != nil {
		return
	}
	switch state.Status {
	case services.RunFailed:
		c.SSEvent(string(models.StreamError), models.NewStreamMessage(models.StreamError, runID, models.ErrorDetails{
			Code:    models.ErrorCodeInternalError,
			Message: state.Error,
		}))
	case services.RunCompleted:
		c.SSEvent(string(models.StreamResult), models.NewStreamMessage(models.StreamResult, runID, withoutOutcomes(state.Result)))
	default:
		c.SSEvent(string(models.StreamStatus), models.NewStreamMessage(models.StreamStatus, runID, statusMessage(state)))
	}
}

func statusMessage(state services.RunState) models.StatusMessage {
	msg := models.StatusMessage{Status: string(state.Status), Message: state.Error}
	end := time.Now()
	if state.FinishedAt != nil {
		end = *state.FinishedAt
		msg.Finished = true
	}
	if !state.StartedAt.IsZero() {
		msg.Elapsed = end.Sub(state.StartedAt).Round(time.Second).String()
	}
	return msg
}
