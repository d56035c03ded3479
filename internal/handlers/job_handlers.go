package handlers

import (
	"net/http"

	"edusync/internal/jobs"
	"edusync/internal/jobs/background"

	"github.com/labstack/echo/v4"
)

// JobHandlers exposes the background machinery for operators: an
// on-demand sweep trigger and scheduler introspection.
type JobHandlers struct {
	sweeper   *jobs.ExpirySweeper
	scheduler *background.JobScheduler
}

func NewJobHandlers(sweeper *jobs.ExpirySweeper, scheduler *background.JobScheduler) *JobHandlers {
	return &JobHandlers{sweeper: sweeper, scheduler: scheduler}
}

// TriggerSweep handles POST /admin/sweep
func (h *JobHandlers) TriggerSweep(c echo.Context) error {
	result, err := h.sweeper.Sweep(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// JobStatus handles GET /admin/jobs
func (h *JobHandlers) JobStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.scheduler.GetJobStatus())
}
