package models

import (
	"net/url"
	"strconv"

	"github.com/piwi3910/wpsgate/internal/storage"
	"github.com/piwi3910/wpsgate/internal/wps/execution"
)

// Pagination bounds of list endpoints.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Sort orders.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Filter represents query parameters for filtering and paginating execution records.
//
// Example:
//
//	filter := &Filter{
//	    ServiceID: "6b0f...",
//	    Status:    execution.StatusSucceeded,
//	    Limit:     50,
//	}
type Filter struct {
	// ServiceID filters by registry service ID.
	ServiceID string `json:"serviceId,omitempty"`

	// ProcessID filters by process identifier.
	ProcessID string `json:"processId,omitempty"`

	// Status filters by execution status. Unknown status names are ignored.
	Status execution.Status `json:"status,omitempty"`

	// Limit is the maximum number of results to return.
	Limit int `json:"limit,omitempty"`

	// Offset is the number of results to skip (for pagination).
	Offset int `json:"offset,omitempty"`

	// SortOrder orders by submission time: "asc" (oldest first) or "desc".
	SortOrder string `json:"sortOrder,omitempty"`
}

// ParseQueryParams parses HTTP query parameters into a Filter.
//
// Example:
//
//	// URL: /executions?status=ProcessSucceeded&limit=50&sortOrder=desc
//	filter := ParseQueryParams(r.URL.Query())
func ParseQueryParams(params url.Values) *Filter {
	filter := &Filter{}

	parseStringFields(params, filter)
	parsePaginationParams(params, filter)
	parseSortParams(params, filter)

	return filter
}

// parseStringFields parses single-value string parameters.
func parseStringFields(params url.Values, filter *Filter) {
	filter.ServiceID = params.Get("serviceId")
	filter.ProcessID = params.Get("processId")
	if status := execution.Status(params.Get("status")); status.Valid() {
		filter.Status = status
	}
}

// parsePaginationParams parses limit and offset parameters.
func parsePaginationParams(params url.Values, filter *Filter) {
	if limitStr := params.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if filter.Limit == 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}

	if offsetStr := params.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}
}

// parseSortParams parses the sortOrder parameter.
func parseSortParams(params url.Values, filter *Filter) {
	switch order := params.Get("sortOrder"); order {
	case SortAsc, SortDesc:
		filter.SortOrder = order
	default:
		filter.SortOrder = SortAsc
	}
}

// ToQueryParams converts a Filter back to URL query parameters.
// This is used to build pagination links and by wpsctl.
func (f *Filter) ToQueryParams() url.Values {
	params := url.Values{}
	if f.ServiceID != "" {
		params.Set("serviceId", f.ServiceID)
	}
	if f.ProcessID != "" {
		params.Set("processId", f.ProcessID)
	}
	if f.Status != "" {
		params.Set("status", string(f.Status))
	}
	if f.Limit > 0 {
		params.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		params.Set("offset", strconv.Itoa(f.Offset))
	}
	if f.SortOrder != "" && f.SortOrder != SortAsc {
		params.Set("sortOrder", f.SortOrder)
	}
	return params
}

// StorageFilter returns the store-level part of the filter.
func (f *Filter) StorageFilter() storage.ExecutionFilter {
	return storage.ExecutionFilter{
		ServiceID: f.ServiceID,
		ProcessID: f.ProcessID,
		Status:    f.Status,
	}
}

// IsEmpty reports whether the filter selects every record.
func (f *Filter) IsEmpty() bool {
	return f.ServiceID == "" && f.ProcessID == "" && f.Status == ""
}

// Paginate orders records (given in submission order) and cuts the requested page.
func (f *Filter) Paginate(records []*storage.ExecutionRecord) []*storage.ExecutionRecord {
	ordered := records
	if f.SortOrder == SortDesc {
		ordered = make([]*storage.ExecutionRecord, len(records))
		for i, rec := range records {
			ordered[len(records)-1-i] = rec
		}
	}
	if f.Offset >= len(ordered) {
		return []*storage.ExecutionRecord{}
	}
	end := len(ordered)
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return ordered[f.Offset:end]
}
