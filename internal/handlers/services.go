package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/piwi3910/wpsgate/internal/models"
	"github.com/piwi3910/wpsgate/internal/registry"
	"github.com/piwi3910/wpsgate/internal/wps/ows"
	"github.com/piwi3910/wpsgate/internal/wps/process"
	"github.com/piwi3910/wpsgate/internal/wps/service"
)

// WPSClient is the part of wpsclient.Client the handlers use.
type WPSClient interface {
	FetchCapabilities(ctx context.Context, svc *service.Service) (ows.Warnings, error)
	EnsureDescribed(ctx context.Context, svc *service.Service, id string, force bool) (*process.Process, ows.Warnings, error)
	BuildExecute(svc *service.Service, id string, values process.Values, outputs []service.OutputSelection) (string, ows.Warnings, error)
}

// ServiceHandler handles the service and process endpoints.
type ServiceHandler struct {
	Registry *registry.Registry
	Client   WPSClient
	Logger   *zap.Logger
}

// NewServiceHandler creates a new ServiceHandler.
func NewServiceHandler(reg *registry.Registry, client WPSClient, logger *zap.Logger) *ServiceHandler {
	if reg == nil {
		panic("registry cannot be nil")
	}
	if client == nil {
		panic("wps client cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	return &ServiceHandler{
		Registry: reg,
		Client:   client,
		Logger:   logger,
	}
}

// ListServices handles GET /wps/v1/services.
//
// Response: 200 OK with the registered services in registration order.
func (h *ServiceHandler) ListServices(c *gin.Context) {
	entries := h.Registry.List()
	out := models.ServiceList{
		Services:   make([]models.Service, 0, len(entries)),
		TotalCount: len(entries),
	}
	for _, e := range entries {
		out.Services = append(out.Services, models.NewService(e, false))
	}
	c.JSON(http.StatusOK, out)
}

// RegisterService handles POST /wps/v1/services.
// The capabilities are fetched right away.
//
// Response:
//   - 201 Created: the service with its process offerings
//   - 400 Bad Request: invalid or disallowed URL
//   - 409 Conflict: URL already registered
//   - 502 Bad Gateway: capabilities could not be fetched; the service stays registered
func (h *ServiceHandler) RegisterService(c *gin.Context) {
	var req models.ServiceRegistration
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrKindBadRequest, "Invalid request body: "+err.Error())
		return
	}

	entry, err := h.Registry.Add(req.URL)
	if err != nil {
		fail(c, h.Logger, "service registration rejected", err)
		return
	}
	c.Header("Location", "/wps/v1/services/"+entry.ID)

	warnings, err := h.refresh(c.Request.Context(), entry)
	if err != nil {
		fail(c, h.Logger, "capabilities fetch failed", err)
		return
	}

	out := h.currentService(entry.ID, entry)
	out.Warnings = warnings
	c.JSON(http.StatusCreated, out)
}

// GetService handles GET /wps/v1/services/:serviceId.
func (h *ServiceHandler) GetService(c *gin.Context) {
	entry, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.NewService(entry, true))
}

// DeleteService handles DELETE /wps/v1/services/:serviceId.
//
// Response: 204 No Content, or 404 Not Found.
func (h *ServiceHandler) DeleteService(c *gin.Context) {
	if err := h.Registry.Remove(c.Param("serviceId")); err != nil {
		fail(c, h.Logger, "service removal failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RefreshService handles POST /wps/v1/services/:serviceId/refresh.
// On failure the previous capabilities are kept.
func (h *ServiceHandler) RefreshService(c *gin.Context) {
	entry, ok := h.lookup(c)
	if !ok {
		return
	}

	warnings, err := h.refresh(c.Request.Context(), entry)
	if err != nil {
		fail(c, h.Logger, "capabilities refresh failed", err)
		return
	}

	out := h.currentService(entry.ID, entry)
	out.Warnings = warnings
	c.JSON(http.StatusOK, out)
}

// ListProcesses handles GET /wps/v1/services/:serviceId/processes.
func (h *ServiceHandler) ListProcesses(c *gin.Context) {
	entry, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.ProcessList{
		ServiceID: entry.ID,
		Processes: models.NewProcessSummaries(entry.Service.Processes()),
	})
}

// GetProcess handles GET /wps/v1/services/:serviceId/processes/:processId.
//
// Query Parameters:
//   - refresh: "true" describes the process again even when already described
//
// Response:
//   - 200 OK: the full process description
//   - 404 Not Found: unknown service or process
//   - 502 Bad Gateway: DescribeProcess failed
func (h *ServiceHandler) GetProcess(c *gin.Context) {
	entry, ok := h.lookup(c)
	if !ok {
		return
	}

	force, _ := strconv.ParseBool(c.Query("refresh"))
	processID := c.Param("processId")
	p, warnings, err := h.Client.EnsureDescribed(c.Request.Context(), entry.Service, processID, force)
	if err != nil {
		fail(c, h.Logger, "process description failed", err)
		return
	}
	logWarnings(h.Logger, "process description warnings", warnings,
		zap.String("service_id", entry.ID),
		zap.String("process_id", processID),
	)

	out := models.NewProcess(entry.ID, p.Snapshot())
	if len(warnings) > 0 {
		out.Warnings = warnings
	}
	c.JSON(http.StatusOK, out)
}

// BuildExecuteRequest handles POST /wps/v1/services/:serviceId/processes/:processId/execute-request.
// It renders the Execute document without sending it.
func (h *ServiceHandler) BuildExecuteRequest(c *gin.Context) {
	entry, ok := h.lookup(c)
	if !ok {
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
	_, warnings, err := h.Client.EnsureDescribed(c.Request.Context(), entry.Service, processID, false)
	if err != nil {
		fail(c, h.Logger, "process description failed", err)
		return
	}

	xml, ws, err := h.Client.BuildExecute(entry.Service, processID, values, req.Outputs)
	warnings.Merge("", ws)
	if err != nil {
		fail(c, h.Logger, "execute request rejected", err)
		return
	}

	c.JSON(http.StatusOK, models.ExecuteDocument{
		ServiceID: entry.ID,
		ProcessID: processID,
		XML:       xml,
		Warnings:  warnings,
	})
}

func (h *ServiceHandler) lookup(c *gin.Context) (registry.Entry, bool) {
	entry, err := h.Registry.Get(c.Param("serviceId"))
	if err != nil {
		fail(c, h.Logger, "service lookup failed", err)
		return registry.Entry{}, false
	}
	return entry, true
}

func (h *ServiceHandler) refresh(ctx context.Context, entry registry.Entry) (ows.Warnings, error) {
	warnings, err := h.Client.FetchCapabilities(ctx, entry.Service)
	h.Registry.MarkRefreshed(entry.ID, err)
	logWarnings(h.Logger, "capabilities warnings", warnings, zap.String("service_id", entry.ID))
	return warnings, err
}

// currentService re-reads the entry so refresh state is current. It falls
// back to the given entry if the service was removed concurrently.
func (h *ServiceHandler) currentService(id string, fallback registry.Entry) models.Service {
	if e, err := h.Registry.Get(id); err == nil {
		return models.NewService(e, true)
	}
	return models.NewService(fallback, true)
}
