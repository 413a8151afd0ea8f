// Package models contains the JSON data models of the WPS gateway API.
package models

import (
	"time"

	"github.com/piwi3910/wpsgate/internal/registry"
	"github.com/piwi3910/wpsgate/internal/storage"
	"github.com/piwi3910/wpsgate/internal/wps/data"
	"github.com/piwi3910/wpsgate/internal/wps/ows"
	"github.com/piwi3910/wpsgate/internal/wps/process"
	"github.com/piwi3910/wpsgate/internal/wps/service"
)

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ServiceRegistration is the body of POST /services.
type ServiceRegistration struct {
	URL string `json:"url" binding:"required"`
}

// Service describes a registered WPS endpoint.
type Service struct {
	ServiceID    string            `json:"serviceId"`
	URL          string            `json:"url"`
	Loaded       bool              `json:"loaded"`
	Healthy      bool              `json:"healthy"`
	RefreshError string            `json:"refreshError,omitempty"`
	RegisteredAt time.Time         `json:"registeredAt"`
	LastRefresh  *time.Time        `json:"lastRefresh,omitempty"`
	Metadata     *service.Metadata `json:"metadata,omitempty"`
	ProcessCount int               `json:"processCount"`
	Processes    []ProcessSummary  `json:"processes,omitempty"`
	Warnings     ows.Warnings      `json:"warnings,omitempty"`
}

// ServiceList is the body of GET /services.
type ServiceList struct {
	Services   []Service `json:"services"`
	TotalCount int       `json:"totalCount"`
}

// ProcessSummary is a process as offered by the capabilities document.
type ProcessSummary struct {
	Identifier      string `json:"identifier"`
	Title           string `json:"title"`
	Abstract        string `json:"abstract,omitempty"`
	Version         string `json:"version"`
	Described       bool   `json:"described"`
	ClientSupported bool   `json:"clientSupported"`
}

// ProcessList is the body of GET /services/{serviceId}/processes.
type ProcessList struct {
	ServiceID string           `json:"serviceId"`
	Processes []ProcessSummary `json:"processes"`
}

// Parameter describes one input or output of a process.
type Parameter struct {
	Identifier  string           `json:"identifier"`
	Title       string           `json:"title"`
	Abstract    string           `json:"abstract,omitempty"`
	MinOccurs   *int             `json:"minOccurs,omitempty"`
	MaxOccurs   *int             `json:"maxOccurs,omitempty"`
	Unbounded   bool             `json:"unbounded,omitempty"`
	Description data.Description `json:"description"`
}

// Process is the full description of a hydrated process.
type Process struct {
	ProcessSummary
	ServiceID       string       `json:"serviceId"`
	StoreSupported  bool         `json:"storeSupported"`
	StatusSupported bool         `json:"statusSupported"`
	Inputs          []Parameter  `json:"inputs"`
	Outputs         []Parameter  `json:"outputs"`
	Warnings        ows.Warnings `json:"warnings,omitempty"`
}

// ExecuteRequest is the body of the execute-request and executions endpoints.
type ExecuteRequest struct {
	// Inputs maps input identifiers to their occurrences in order.
	Inputs map[string][]InputValue `json:"inputs"`

	// Outputs selects the outputs to return. Empty returns all of them.
	Outputs []service.OutputSelection `json:"outputs,omitempty"`

	// Callback is notified when the execution settles.
	Callback string `json:"callback,omitempty"`
}

// ExecuteDocument is the rendered Execute request.
type ExecuteDocument struct {
	ServiceID string       `json:"serviceId"`
	ProcessID string       `json:"processId"`
	XML       string       `json:"xml"`
	Warnings  ows.Warnings `json:"warnings,omitempty"`
}

// Execution is an execution record as served by the API.
type Execution struct {
	*storage.ExecutionRecord
	Live bool `json:"live"`
}

// ExecutionList is the body of GET /executions.
type ExecutionList struct {
	Executions []Execution `json:"executions"`
	TotalCount int         `json:"totalCount"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
}

// NewService converts a registry entry. Process summaries are only filled
// when withProcesses is set.
func NewService(e registry.Entry, withProcesses bool) Service {
	out := Service{
		ServiceID:    e.ID,
		URL:          e.Service.URL(),
		Loaded:       e.Service.Loaded(),
		Healthy:      e.Healthy,
		RefreshError: e.RefreshError,
		RegisteredAt: e.RegisteredAt,
	}
	if !e.LastRefresh.IsZero() {
		last := e.LastRefresh
		out.LastRefresh = &last
	}
	if out.Loaded {
		md := e.Service.Metadata()
		out.Metadata = &md
	}
	procs := e.Service.Processes()
	out.ProcessCount = len(procs)
	if withProcesses {
		out.Processes = NewProcessSummaries(procs)
	}
	return out
}

// NewProcessSummaries converts processes in offering order.
func NewProcessSummaries(procs []*process.Process) []ProcessSummary {
	out := make([]ProcessSummary, 0, len(procs))
	for _, p := range procs {
		out = append(out, newProcessSummary(p.Snapshot()))
	}
	return out
}

func newProcessSummary(s *process.Snapshot) ProcessSummary {
	return ProcessSummary{
		Identifier:      s.Identifier,
		Title:           s.Title,
		Abstract:        s.Abstract,
		Version:         s.Version,
		Described:       s.Described,
		ClientSupported: s.ClientSupported(),
	}
}

// NewProcess converts a process snapshot.
func NewProcess(serviceID string, s *process.Snapshot) Process {
	out := Process{
		ProcessSummary:  newProcessSummary(s),
		ServiceID:       serviceID,
		StoreSupported:  s.StoreSupported,
		StatusSupported: s.StatusSupported,
		Inputs:          []Parameter{},
		Outputs:         []Parameter{},
		Warnings:        s.Warnings,
	}
	if s.Inputs != nil {
		for _, in := range s.Inputs.Values() {
			minOccurs, maxOccurs := in.MinOccurs, in.MaxOccurs
			p := Parameter{
				Identifier:  in.Identifier,
				Title:       in.Title,
				Abstract:    in.Abstract,
				MinOccurs:   &minOccurs,
				Description: in.Kind.Describe(),
			}
			if maxOccurs == data.Unbounded {
				p.Unbounded = true
			} else {
				p.MaxOccurs = &maxOccurs
			}
			out.Inputs = append(out.Inputs, p)
		}
	}
	if s.Outputs != nil {
		for _, o := range s.Outputs.Values() {
			out.Outputs = append(out.Outputs, Parameter{
				Identifier:  o.Identifier,
				Title:       o.Title,
				Abstract:    o.Abstract,
				Description: o.Kind.Describe(),
			})
		}
	}
	return out
}
