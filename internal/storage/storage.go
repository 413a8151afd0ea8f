package storage

import (
	"context"
	"errors"
)

// Common sentinel errors for storage operations.
var (
	// ErrExecutionNotFound is returned when an execution record does not exist.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionExists is returned when attempting to create a duplicate execution record.
	ErrExecutionExists = errors.New("execution already exists")

	// ErrInvalidCallback is returned when a callback URL is invalid.
	ErrInvalidCallback = errors.New("invalid callback URL")

	// ErrInvalidID is returned when an execution ID is invalid.
	ErrInvalidID = errors.New("invalid execution ID")

	// ErrStorageUnavailable is returned when the storage backend is unavailable.
	ErrStorageUnavailable = errors.New("storage backend unavailable")
)

// Store defines the interface for execution record storage.
// Implementations must be safe for concurrent use.
//
// Example usage:
//
//	store := NewRedisStore(cfg)
//	defer store.Close()
//
//	rec := &ExecutionRecord{
//	    Record:   exec.Record(),
//	    Callback: "https://client.example.com/notify",
//	}
//
//	if err := store.Create(ctx, rec); err != nil {
//	    logger.Error("failed to persist execution", zap.Error(err))
//	}
type Store interface {
	// Create stores a new execution record.
	// Returns ErrExecutionExists if a record with the same ID already exists.
	// Returns ErrInvalidCallback if a callback URL is set and invalid.
	// Returns ErrInvalidID if the execution ID is empty.
	Create(ctx context.Context, rec *ExecutionRecord) error

	// Get retrieves an execution record by ID.
	// Returns ErrExecutionNotFound if the record does not exist or expired.
	Get(ctx context.Context, id string) (*ExecutionRecord, error)

	// Update replaces an existing execution record, preserving its creation time.
	// Terminal records start their retention period.
	// Returns ErrExecutionNotFound if the record does not exist.
	Update(ctx context.Context, rec *ExecutionRecord) error

	// Delete deletes an execution record by ID.
	// Returns ErrExecutionNotFound if the record does not exist.
	Delete(ctx context.Context, id string) error

	// List retrieves the records matching filter in submission order.
	// Returns an empty slice if nothing matches.
	List(ctx context.Context, filter ExecutionFilter) ([]*ExecutionRecord, error)

	// Close closes the storage connection and releases resources.
	Close() error

	// Ping checks if the storage backend is available.
	// Returns ErrStorageUnavailable if the backend cannot be reached.
	Ping(ctx context.Context) error
}
