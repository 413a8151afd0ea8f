package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/piwi3910/wpsgate/internal/controllers"
	"github.com/piwi3910/wpsgate/internal/models"
	"github.com/piwi3910/wpsgate/internal/registry"
	"github.com/piwi3910/wpsgate/internal/storage"
	"github.com/piwi3910/wpsgate/internal/wps/execution"
	"github.com/piwi3910/wpsgate/internal/wps/ows"
)

// ExecutionController is the part of controllers.ExecutionController the handlers use.
type ExecutionController interface {
	Submit(ctx context.Context, sub controllers.Submission) (*storage.ExecutionRecord, ows.Warnings, error)
	Cancel(id string) (execution.Record, error)
	Live(id string) (execution.Record, bool)
}

// ExecutionHandler handles the execution endpoints.
type ExecutionHandler struct {
	Registry   *registry.Registry
	Controller ExecutionController
	Store      storage.Store
	Logger     *zap.Logger
}

// ExecutionResponse is the body of a successful submission.
type ExecutionResponse struct {
	models.Execution
	SubmitWarnings ows.Warnings `json:"submitWarnings,omitempty"`
}

// NewExecutionHandler creates a new ExecutionHandler.
func NewExecutionHandler(reg *registry.Registry, ctrl ExecutionController, store storage.Store, logger *zap.Logger) *ExecutionHandler {
	if reg == nil {
		panic("registry cannot be nil")
	}
	if ctrl == nil {
		panic("execution controller cannot be nil")
	}
	if store == nil {
		panic("storage cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	return &ExecutionHandler{
		Registry:   reg,
		Controller: ctrl,
		Store:      store,
		Logger:     logger,
	}
}

// SubmitExecution handles POST /wps/v1/services/:serviceId/processes/:processId/executions.
//
// Request Body: models.ExecuteRequest. An optional callback enables webhooks.
//
// Response:
//   - 202 Accepted: the execution record; polling continues in the background
//   - 400 Bad Request: invalid inputs, outputs or callback
//   - 404 Not Found: unknown service or process
//   - 502 Bad Gateway: the process could not be described
func (h *ExecutionHandler) SubmitExecution(c *gin.Context) {
	entry, err := h.Registry.Get(c.Param("serviceId"))
	if err != nil {
		fail(c, h.Logger, "service lookup failed", err)
		return
	}

	var req models.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrKindBadRequest, "Invalid request body: "+err.Error())
		return
	}
	values, err := req.ToValues()
	if err != nil {
		fail(c, h.Logger, "invalid execute inputs", err)
		return
	}

	processID := c.Param("processId")
	rec, warnings, err := h.Controller.Submit(c.Request.Context(), controllers.Submission{
		ServiceID: entry.ID,
		Service:   entry.Service,
		ProcessID: processID,
		Values:    values,
		Outputs:   req.Outputs,
		Callback:  req.Callback,
	})
	logWarnings(h.Logger, "execute request warnings", warnings,
		zap.String("service_id", entry.ID),
		zap.String("process_id", processID),
	)
	if err != nil {
		fail(c, h.Logger, "execution submission failed", err)
		return
	}

	h.Logger.Info("execution submitted",
		zap.String("execution_id", rec.ID),
		zap.String("service_id", entry.ID),
		zap.String("process_id", processID),
		zap.String("status", string(rec.Status)),
		zap.Bool("callback", rec.Callback != ""),
	)

	_, live := h.Controller.Live(rec.ID)
	c.Header("Location", "/wps/v1/executions/"+rec.ID)
	c.JSON(http.StatusAccepted, ExecutionResponse{
		Execution:      models.Execution{ExecutionRecord: rec, Live: live},
		SubmitWarnings: warnings,
	})
}

// ListExecutions handles GET /wps/v1/executions.
//
// Query Parameters:
//   - serviceId, processId, status: filters
//   - limit, offset: pagination
//   - sortOrder: "asc" (oldest first, default) or "desc"
func (h *ExecutionHandler) ListExecutions(c *gin.Context) {
	filter := models.ParseQueryParams(c.Request.URL.Query())

	records, err := h.Store.List(c.Request.Context(), filter.StorageFilter())
	if err != nil {
		fail(c, h.Logger, "failed to list executions", err)
		return
	}

	page := filter.Paginate(records)
	out := models.ExecutionList{
		Executions: make([]models.Execution, 0, len(page)),
		TotalCount: len(records),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	for _, rec := range page {
		_, live := h.Controller.Live(rec.ID)
		out.Executions = append(out.Executions, models.Execution{ExecutionRecord: rec, Live: live})
	}
	c.JSON(http.StatusOK, out)
}

// GetExecution handles GET /wps/v1/executions/:executionId.
// The live state wins over the stored one when the execution is still polled.
func (h *ExecutionHandler) GetExecution(c *gin.Context) {
	id := c.Param("executionId")

	stored, err := h.Store.Get(c.Request.Context(), id)
	liveRec, live := h.Controller.Live(id)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrExecutionNotFound) && live:
		stored = &storage.ExecutionRecord{}
	default:
		fail(c, h.Logger, "execution lookup failed", err)
		return
	}
	if live {
		stored.Record = liveRec
	}

	c.JSON(http.StatusOK, models.Execution{ExecutionRecord: stored, Live: live})
}

// CancelExecution handles DELETE /wps/v1/executions/:executionId.
//
// Response:
//   - 200 OK: the cancelled execution
//   - 404 Not Found: no such execution
//   - 409 Conflict: the execution already settled
func (h *ExecutionHandler) CancelExecution(c *gin.Context) {
	id := c.Param("executionId")

	rec, err := h.Controller.Cancel(id)
	if err != nil {
		if errors.Is(err, controllers.ErrExecutionNotLive) {
			if _, getErr := h.Store.Get(c.Request.Context(), id); getErr != nil {
				fail(c, h.Logger, "execution lookup failed", getErr)
				return
			}
		}
		fail(c, h.Logger, "execution cancel failed", err)
		return
	}

	h.Logger.Info("execution cancelled", zap.String("execution_id", id))

	stored, err := h.Store.Get(c.Request.Context(), id)
	if err != nil {
		stored = &storage.ExecutionRecord{}
	}
	stored.Record = rec
	c.JSON(http.StatusOK, models.Execution{ExecutionRecord: stored})
}
