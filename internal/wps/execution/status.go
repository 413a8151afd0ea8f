// Package execution drives one WPS Execute call from its submission to a
// terminal state: it applies ExecuteResponse status documents, polls the
// status location on a scheduler and decodes the final outputs.
package execution

import "errors"

// Status is the state of an execution.
type Status string

// Execution states. Initialized is set at construction, before any response
// was applied.
const (
	StatusInitialized     Status = "Initialized"
	StatusAccepted        Status = "ProcessAccepted"
	StatusStarted         Status = "ProcessStarted"
	StatusPaused          Status = "ProcessPaused"
	StatusSucceeded       Status = "ProcessSucceeded"
	StatusFailed          Status = "ProcessFailed"
	StatusTimedOut        Status = "TimedOut"
	StatusUnknown         Status = "Unknown"
	StatusCancelled       Status = "Cancelled"
	StatusTransportFailed Status = "TransportFailed"
)

// Terminal reports whether no further transition can happen from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut, StatusUnknown, StatusCancelled, StatusTransportFailed:
		return true
	}
	return false
}

// Valid reports whether s is one of the declared states.
func (s Status) Valid() bool {
	switch s {
	case StatusInitialized, StatusAccepted, StatusStarted, StatusPaused:
		return true
	}
	return s.Terminal()
}

var (
	// ErrAlreadyStarted is returned when a second Execute response is applied to an execution.
	ErrAlreadyStarted = errors.New("execution already started")

	// ErrNotStarted is returned when an execution is cancelled before it was submitted.
	ErrNotStarted = errors.New("execution not started")
)

// Messages set by the execution itself rather than read from a status document.
const (
	MessageSubmitted        = "Request send"
	MessageTransportFailed  = "Server returned a failure message"
	MessageCancelled        = "The execution was cancelled by the client."
	MessageNoStatusLocation = "The server gave no status location to poll."
	timedOutFormat          = "The response was cancelled after %d status queries."
)
