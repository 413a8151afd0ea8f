// Package wpsclient drives WPS services over a transport: it fetches and
// applies capabilities and process descriptions, and submits Execute requests
// whose status is then polled by an execution.
package wpsclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/piwi3910/wpsgate/internal/observability"
	"github.com/piwi3910/wpsgate/internal/transport"
	"github.com/piwi3910/wpsgate/internal/wps/data"
	"github.com/piwi3910/wpsgate/internal/wps/execution"
	"github.com/piwi3910/wpsgate/internal/wps/ows"
	"github.com/piwi3910/wpsgate/internal/wps/process"
	"github.com/piwi3910/wpsgate/internal/wps/service"
)

// Config holds configuration for creating a Client.
type Config struct {
	// Transport sends requests and fetches status documents.
	Transport transport.Transport

	// Logger is the logger to use.
	Logger *zap.Logger

	// Metrics records operation outcomes. Optional.
	Metrics *observability.Metrics

	// RequestEncoding is used for GetCapabilities and DescribeProcess.
	// Default: GET.
	RequestEncoding service.Encoding

	// Reprojector converts bounding boxes into a CRS the process supports.
	Reprojector data.Reprojector

	// PollInterval is the delay between status queries of an execution.
	PollInterval time.Duration

	// MaxStatusQueries is the ceiling on non-terminal status documents.
	MaxStatusQueries int

	// Scheduler runs status polls. Default: timers.
	Scheduler execution.Scheduler
}

// Client talks to WPS services. It is safe for concurrent use.
type Client struct {
	transport   transport.Transport
	logger      *observability.Logger
	metrics     *observability.Metrics
	encoding    service.Encoding
	reprojector data.Reprojector
	execCfg     execution.Config
}

// New creates a new Client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	enc := cfg.RequestEncoding
	switch enc {
	case "":
		enc = service.EncodingGET
	case service.EncodingGET, service.EncodingPOST, service.EncodingSOAP:
	default:
		return nil, fmt.Errorf("unsupported request encoding %q", enc)
	}

	return &Client{
		transport:   cfg.Transport,
		logger:      observability.NewLogger(cfg.Logger).WithComponent("wpsclient"),
		metrics:     cfg.Metrics,
		encoding:    enc,
		reprojector: cfg.Reprojector,
		execCfg: execution.Config{
			PollInterval:     cfg.PollInterval,
			MaxStatusQueries: cfg.MaxStatusQueries,
			Scheduler:        cfg.Scheduler,
			Logger:           cfg.Logger,
		},
	}, nil
}

// ExecuteOptions are per-call settings of Execute.
type ExecuteOptions struct {
	// ID names the execution. A random UUID is used when empty.
	ID string

	// Observer is told about every status transition.
	Observer execution.Observer
}

// RefreshCapabilities fetches the capabilities of svc and applies them.
// Parse warnings are logged.
func (c *Client) RefreshCapabilities(ctx context.Context, svc *service.Service) error {
	_, err := c.FetchCapabilities(ctx, svc)
	return err
}

// FetchCapabilities fetches the capabilities of svc, applies them and returns
// the parse warnings. On error svc keeps its previous state.
func (c *Client) FetchCapabilities(ctx context.Context, svc *service.Service) (ows.Warnings, error) {
	start := time.Now()
	req, err := svc.CapabilitiesRequest(c.encoding)
	if err != nil {
		return nil, err
	}

	warnings, err := c.roundTrip(ctx, req, func(root *ows.Node) (ows.Warnings, error) {
		return svc.ParseCapabilities(root)
	})
	c.record(service.OpGetCapabilities, svc.URL(), "", start, warnings, err)
	return warnings, err
}

// DescribeProcesses fetches the descriptions of the given processes and
// hydrates them. All offered processes are described when ids is empty.
func (c *Client) DescribeProcesses(ctx context.Context, svc *service.Service, ids ...string) (ows.Warnings, error) {
	if len(ids) == 0 {
		for _, p := range svc.Processes() {
			ids = append(ids, p.Identifier())
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	start := time.Now()
	req, err := svc.DescribeProcessRequest(c.encoding, ids)
	if err != nil {
		return nil, err
	}

	warnings, err := c.roundTrip(ctx, req, func(root *ows.Node) (ows.Warnings, error) {
		return svc.ParseDescribeProcess(root, ids)
	})
	processID := ""
	if len(ids) == 1 {
		processID = ids[0]
	}
	c.record(service.OpDescribeProcess, svc.URL(), processID, start, warnings, err)
	return warnings, err
}

// EnsureDescribed returns the process id of svc, describing it first when it
// has no description yet or when force is set. Capabilities are fetched when
// the service has never been loaded.
func (c *Client) EnsureDescribed(ctx context.Context, svc *service.Service, id string, force bool) (*process.Process, ows.Warnings, error) {
	var warnings ows.Warnings
	if !svc.Loaded() {
		ws, err := c.FetchCapabilities(ctx, svc)
		warnings.Merge("", ws)
		if err != nil {
			return nil, warnings, err
		}
	}

	p, ok := svc.Process(id)
	if !ok {
		return nil, warnings, fmt.Errorf("%w: %s on %s", service.ErrUnknownProcess, id, svc.URL())
	}
	if p.Snapshot().Described && !force {
		return p, warnings, nil
	}

	ws, err := c.DescribeProcesses(ctx, svc, id)
	warnings.Merge("", ws)
	if err != nil {
		return nil, warnings, err
	}
	if !p.Snapshot().Described {
		return nil, warnings, fmt.Errorf("%w: %s", process.ErrNotDescribed, id)
	}
	return p, warnings, nil
}

// BuildExecute renders the Execute document for a described process without sending it.
func (c *Client) BuildExecute(svc *service.Service, id string, values process.Values, outputs []service.OutputSelection) (string, ows.Warnings, error) {
	return svc.BuildExecuteRequestXML(id, values, outputs, c.encoder())
}

// Execute describes the process if needed, submits the Execute request and
// returns the execution tracking it. Failures to build the request are
// returned as errors; failures to deliver it are recorded on the execution.
// Polling continues in the background after Execute returns.
func (c *Client) Execute(
	ctx context.Context,
	svc *service.Service,
	id string,
	values process.Values,
	outputs []service.OutputSelection,
	opts ExecuteOptions,
) (*execution.Execution, ows.Warnings, error) {
	p, warnings, err := c.EnsureDescribed(ctx, svc, id, false)
	if err != nil {
		return nil, warnings, err
	}

	req, ws, err := svc.ExecuteRequest(id, values, outputs, c.encoder())
	warnings.Merge("", ws)
	if err != nil {
		return nil, warnings, err
	}

	execID := opts.ID
	if execID == "" {
		execID = uuid.NewString()
	}
	cfg := c.execCfg
	cfg.Observer = opts.Observer
	exec := execution.New(execID, svc.URL(), p.Snapshot(), c.transport, cfg)

	start := time.Now()
	resp, sendErr := c.transport.Send(ctx, req)
	c.record(service.OpExecute, svc.URL(), id, start, warnings, sendErr)

	var se *transport.StatusError
	switch {
	case sendErr == nil:
		err = exec.Start(resp.Body)
	case errors.As(sendErr, &se) && len(se.Body) > 0:
		// WPS servers report rejected requests as an ExceptionReport body.
		err = exec.Start(se.Body)
	default:
		err = exec.FailSubmission(sendErr)
	}
	if err != nil {
		return nil, warnings, err
	}
	return exec, warnings, nil
}

func (c *Client) encoder() data.Encoder {
	return data.Encoder{Reprojector: c.reprojector}
}

// roundTrip sends req and hands the parsed response to apply. An error status
// whose body is an exception report yields that report as the error.
func (c *Client) roundTrip(ctx context.Context, req service.Request, apply func(*ows.Node) (ows.Warnings, error)) (ows.Warnings, error) {
	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		var se *transport.StatusError
		if errors.As(err, &se) && len(se.Body) > 0 {
			if root, perr := ows.Parse(se.Body); perr == nil {
				if report := ows.FindExceptionReport(root); report != nil {
					return nil, report
				}
			}
		}
		return nil, err
	}

	root, err := ows.Parse(resp.Body)
	if err != nil {
		return nil, err
	}
	warnings, err := apply(root)
	warnings = append(warnings, root.Warnings()...)
	return warnings, err
}

func (c *Client) record(op, serviceURL, processID string, start time.Time, warnings ows.Warnings, err error) {
	if c.metrics != nil {
		c.metrics.RecordWPSOperation(op, time.Since(start), err)
		for _, w := range warnings {
			c.metrics.RecordParseWarning(op, string(w.Code))
		}
	}

	c.logger.LogWPSOperation(op, serviceURL, processID, time.Since(start), err)
	for _, w := range warnings {
		c.logger.Warn("wps document warning",
			zap.String("operation", op),
			zap.String("service", serviceURL),
			zap.String("warning", w.String()))
	}
}
