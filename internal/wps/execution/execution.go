package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/wpsgate/internal/wps/data"
	"github.com/piwi3910/wpsgate/internal/wps/ows"
	"github.com/piwi3910/wpsgate/internal/wps/process"
)

const (
	// DefaultPollInterval is the delay between two status queries.
	DefaultPollInterval = 5 * time.Second

	// DefaultMaxStatusQueries is the number of non-terminal status documents
	// after which an execution times out.
	DefaultMaxStatusQueries = 20
)

// Fetcher retrieves the document published at a status location.
type Fetcher interface {
	FetchStatus(ctx context.Context, statusURL string) ([]byte, error)
}

// Observer is told about every transition, in order. It runs outside the
// execution's lock and may read the execution.
type Observer func(rec Record, from Status)

// Config holds the optional collaborators of an execution.
type Config struct {
	// PollInterval is the delay before each status query.
	PollInterval time.Duration

	// MaxStatusQueries is the ceiling on non-terminal status documents.
	MaxStatusQueries int

	// Scheduler runs polls. Defaults to TimerScheduler.
	Scheduler Scheduler

	// Logger receives transition and warning logs.
	Logger *zap.Logger

	// Observer is called on every transition.
	Observer Observer

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Record is a point-in-time copy of an execution.
type Record struct {
	ID              string               `json:"executionId"`
	ServiceURL      string               `json:"serviceUrl"`
	ProcessID       string               `json:"processId"`
	SubmittedAt     time.Time            `json:"submittedAt"`
	CreationTime    *time.Time           `json:"creationTime,omitempty"`
	LastStatusAt    *time.Time           `json:"lastStatusAt,omitempty"`
	Status          Status               `json:"status"`
	StatusMessage   string               `json:"statusMessage"`
	PercentComplete int                  `json:"percentComplete"`
	StatusLocation  string               `json:"statusLocation,omitempty"`
	PollCount       int                  `json:"pollCount"`
	ExceptionReport *ows.ExceptionReport `json:"exceptionReport,omitempty"`
	Outputs         []*data.Result       `json:"outputs,omitempty"`
	Warnings        ows.Warnings         `json:"warnings,omitempty"`
	Error           string               `json:"error,omitempty"`
}

type transition struct {
	rec  Record
	from Status
}

// Execution tracks one Execute call. Status documents are applied one at a
// time: the next poll is scheduled only once the previous response has been
// applied, so progress never goes backwards.
type Execution struct {
	fetcher Fetcher
	outputs *process.Outputs
	cfg     Config
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	rec      Record
	started  bool
	task     Task
	pending  []transition
	flushing bool
}

// New returns an execution of the described process in state Initialized.
func New(id, serviceURL string, proc *process.Snapshot, fetcher Fetcher, cfg Config) *Execution {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxStatusQueries <= 0 {
		cfg.MaxStatusQueries = DefaultMaxStatusQueries
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = TimerScheduler{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Execution{
		fetcher: fetcher,
		outputs: proc.Outputs,
		cfg:     cfg,
		logger:  logger.With(zap.String("execution_id", id), zap.String("process_id", proc.Identifier)),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		rec: Record{
			ID:            id,
			ServiceURL:    serviceURL,
			ProcessID:     proc.Identifier,
			SubmittedAt:   cfg.Now(),
			Status:        StatusInitialized,
			StatusMessage: MessageSubmitted,
		},
	}
}

// ID returns the execution identifier.
func (e *Execution) ID() string { return e.rec.ID }

// Record returns a copy of the current state.
func (e *Execution) Record() Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Done is closed once the execution reached a terminal state and observers were told.
func (e *Execution) Done() <-chan struct{} { return e.done }

// Wait blocks until the execution is terminal or ctx ends.
func (e *Execution) Wait(ctx context.Context) (Record, error) {
	select {
	case <-e.done:
		return e.Record(), nil
	case <-ctx.Done():
		return e.Record(), ctx.Err()
	}
}

// Start applies the response to the Execute request. Polling begins when the
// response names a status location and the process is still running.
func (e *Execution) Start(body []byte) error {
	if err := e.markStarted(); err != nil {
		return err
	}
	e.apply(parseResponse(body, e.outputs))
	return nil
}

// FailSubmission records that the Execute request itself could not be sent.
func (e *Execution) FailSubmission(err error) error {
	if err2 := e.markStarted(); err2 != nil {
		return err2
	}
	e.failTransport(err)
	return nil
}

// Cancel stops polling, aborts an in-flight status query and moves the
// execution to Cancelled. Cancelling a terminal execution does nothing.
func (e *Execution) Cancel() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return ErrNotStarted
	}
	if e.rec.Status.Terminal() {
		e.mu.Unlock()
		return nil
	}
	if e.task != nil {
		e.task.Cancel()
		e.task = nil
	}
	from := e.rec.Status
	e.rec.Status = StatusCancelled
	e.rec.StatusMessage = MessageCancelled
	e.touchLocked()
	e.queueLocked(from)
	e.mu.Unlock()

	e.cancel()
	e.flush()
	return nil
}

func (e *Execution) markStarted() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true
	return nil
}

func (e *Execution) poll() {
	e.mu.Lock()
	e.task = nil
	if e.rec.Status.Terminal() {
		e.mu.Unlock()
		return
	}
	loc := e.rec.StatusLocation
	e.mu.Unlock()

	body, err := e.fetcher.FetchStatus(e.ctx, loc)
	if err != nil {
		if e.ctx.Err() != nil {
			return
		}
		e.failTransport(err)
		return
	}
	e.apply(parseResponse(body, e.outputs))
}

func (e *Execution) failTransport(err error) {
	e.mu.Lock()
	if e.rec.Status.Terminal() {
		e.mu.Unlock()
		return
	}
	from := e.rec.Status
	e.rec.Status = StatusTransportFailed
	e.rec.StatusMessage = MessageTransportFailed
	e.rec.Error = err.Error()
	e.touchLocked()
	e.queueLocked(from)
	e.mu.Unlock()

	e.logger.Warn("status query failed", zap.Error(err))
	e.flush()
}

func (e *Execution) apply(u update) {
	if len(u.warnings) > 0 {
		e.logger.Warn("status document warnings", zap.String("warnings", u.warnings.String()))
	}

	e.mu.Lock()
	if e.rec.Status.Terminal() {
		e.mu.Unlock()
		return
	}
	from := e.rec.Status
	e.touchLocked()
	e.rec.Status = u.status
	e.rec.StatusMessage = u.message
	if u.percent >= 0 {
		e.rec.PercentComplete = u.percent
	}
	if !u.creationTime.IsZero() {
		ct := u.creationTime
		e.rec.CreationTime = &ct
	}
	if u.statusLocation != "" {
		e.rec.StatusLocation = u.statusLocation
	}
	if u.report != nil {
		e.rec.ExceptionReport = u.report
	}
	if u.outputs != nil {
		e.rec.Outputs = u.outputs
	}
	e.rec.Warnings = append(e.rec.Warnings, u.warnings...)

	if !u.status.Terminal() {
		e.rec.PollCount++
		switch {
		case e.rec.PollCount >= e.cfg.MaxStatusQueries:
			e.rec.Status = StatusTimedOut
			e.rec.StatusMessage = fmt.Sprintf(timedOutFormat, e.rec.PollCount)
		case e.rec.StatusLocation == "":
			e.rec.Status = StatusUnknown
			e.rec.StatusMessage = MessageNoStatusLocation
		default:
			e.task = e.cfg.Scheduler.Schedule(e.cfg.PollInterval, e.poll)
		}
	}
	e.queueLocked(from)
	e.mu.Unlock()

	e.flush()
}

func (e *Execution) touchLocked() {
	now := e.cfg.Now()
	e.rec.LastStatusAt = &now
}

func (e *Execution) snapshotLocked() Record {
	rec := e.rec
	rec.Warnings = append(ows.Warnings(nil), e.rec.Warnings...)
	return rec
}

func (e *Execution) queueLocked(from Status) {
	e.pending = append(e.pending, transition{rec: e.snapshotLocked(), from: from})
}

// flush delivers queued transitions in order. Only one goroutine delivers at
// a time; others leave their transitions to it.
func (e *Execution) flush() {
	e.mu.Lock()
	if e.flushing {
		e.mu.Unlock()
		return
	}
	e.flushing = true
	for len(e.pending) > 0 {
		batch := e.pending
		e.pending = nil
		e.mu.Unlock()
		for _, t := range batch {
			e.deliver(t)
		}
		e.mu.Lock()
	}
	e.flushing = false
	e.mu.Unlock()
}

func (e *Execution) deliver(t transition) {
	e.logger.Info("execution status changed",
		zap.String("from", string(t.from)),
		zap.String("to", string(t.rec.Status)),
		zap.Int("percent_complete", t.rec.PercentComplete))
	if e.cfg.Observer != nil {
		e.cfg.Observer(t.rec, t.from)
	}
	if t.rec.Status.Terminal() {
		e.cancel()
		close(e.done)
	}
}
