package controllers

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/hlsget/internal/app"
	"github.com/datallboy/hlsget/internal/domain"
)

const defaultListLimit = 100

type JobsController struct {
	App *app.Context
}

// Create queues a new download.
func (ctrl *JobsController) Create(c *echo.Context) error {
	var req CreateJobRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	job, err := ctrl.App.Queue.Add(req.ManifestURL, req.OutputName)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusAccepted, job.View())
}

// List returns live jobs merged with stored history, newest first.
func (ctrl *JobsController) List(c *echo.Context) error {
	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
		}
		limit = n
	}

	byID := make(map[string]domain.JobView)

	if ctrl.App.Store != nil {
		stored, err := ctrl.App.Store.ListJobs(c.Request().Context(), limit)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		for _, job := range stored {
			byID[job.ID] = job.View()
		}
	}

	// Live state wins over the last persisted snapshot
	for _, job := range ctrl.App.Queue.GetAllItems() {
		byID[job.ID] = job.View()
	}

	views := make([]domain.JobView, 0, len(byID))
	for _, v := range byID {
		views = append(views, v)
	}
	// KSUIDs sort by creation time
	sort.Slice(views, func(i, j int) bool { return views[i].ID > views[j].ID })
	if len(views) > limit {
		views = views[:limit]
	}

	return c.JSON(http.StatusOK, views)
}

func (ctrl *JobsController) Get(c *echo.Context) error {
	job, ok := ctrl.App.Queue.GetItem(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "job not found"})
	}
	return c.JSON(http.StatusOK, job.View())
}

// Cancel stops a pending or running job.
func (ctrl *JobsController) Cancel(c *echo.Context) error {
	id := c.Param("id")

	if ctrl.App.Queue.Cancel(id) {
		job, ok := ctrl.App.Queue.GetItem(id)
		if !ok {
			return c.NoContent(http.StatusAccepted)
		}
		return c.JSON(http.StatusAccepted, job.View())
	}

	if _, ok := ctrl.App.Queue.GetItem(id); ok {
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "job already finished"})
	}
	return c.JSON(http.StatusNotFound, ErrorResponse{Error: "job not found"})
}
