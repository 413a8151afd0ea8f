// Package storage persists execution records so that results and exception
// reports outlive the in-memory execution that produced them.
package storage

import (
	"encoding/json"
	"time"

	"github.com/piwi3910/wpsgate/internal/wps/execution"
)

// ExecutionRecord is the stored form of an execution.
//
// Example:
//
//	rec := &ExecutionRecord{
//	    Record:    exec.Record(),
//	    ServiceID: entry.ID,
//	    Callback:  "https://client.example.com/notify",
//	}
type ExecutionRecord struct {
	execution.Record

	// ServiceID is the registry ID of the service the process runs on
	ServiceID string `json:"serviceId"`

	// Callback is the webhook URL notified when the execution settles
	Callback string `json:"callback,omitempty"`

	// CreatedAt is when the record was first stored
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is the last update timestamp
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// ExecutionFilter selects execution records. Empty fields match everything;
// set fields are combined with AND logic.
type ExecutionFilter struct {
	ServiceID string
	ProcessID string
	Status    execution.Status
}

// MarshalBinary implements encoding.BinaryMarshaler for Redis storage.
func (r *ExecutionRecord) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Redis storage.
func (r *ExecutionRecord) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, r)
}

// Matches reports whether rec satisfies the filter.
func (f ExecutionFilter) Matches(rec *ExecutionRecord) bool {
	if f.ServiceID != "" && f.ServiceID != rec.ServiceID {
		return false
	}
	if f.ProcessID != "" && f.ProcessID != rec.ProcessID {
		return false
	}
	if f.Status != "" && f.Status != rec.Status {
		return false
	}
	return true
}
