package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/piwi3910/wpsgate/internal/models"
	"github.com/piwi3910/wpsgate/internal/wps/data"
	"github.com/piwi3910/wpsgate/internal/wps/execution"
	"github.com/piwi3910/wpsgate/internal/wps/format"
	"github.com/piwi3910/wpsgate/internal/wps/process"
	"github.com/piwi3910/wpsgate/internal/wps/service"
	"github.com/piwi3910/wpsgate/internal/wpsclient"
)

// ErrExecutionFailed is returned when an execution settles in any status
// other than ProcessSucceeded.
var ErrExecutionFailed = errors.New("execution did not succeed")

type executeOptions struct {
	inputs       []string
	outputs      []string
	inputsFile   string
	pollInterval time.Duration
	maxPolls     int
	dryRun       bool
}

func newExecuteCmd(opts *globalOptions) *cobra.Command {
	eo := &executeOptions{}

	cmd := &cobra.Command{
		Use:   "execute <url> <process>",
		Short: "Run a process and wait for its outputs",
		Long: `Run a process and poll its status until it settles.

Literal inputs are given as --input id=value and may repeat for inputs
with several occurrences. Bounding box and complex inputs are read from
--inputs-file, a JSON document in the gateway's execute request format.

Examples:
  wpsctl execute https://wps.example.com/wps echo --input in=hello
  wpsctl execute https://wps.example.com/wps buffer --inputs-file buffer.json --output result=text/xml
  wpsctl execute https://wps.example.com/wps buffer --inputs-file buffer.json --dry-run`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(cmd, opts, eo, args[0], args[1])
		},
	}

	cmd.Flags().StringArrayVarP(&eo.inputs, "input", "i", nil, "Literal input as id=value (repeatable)")
	cmd.Flags().StringArrayVarP(&eo.outputs, "output", "o", nil, "Output to request as id or id=mimeType (repeatable)")
	cmd.Flags().StringVarP(&eo.inputsFile, "inputs-file", "f", "", "JSON file with inputs and outputs")
	cmd.Flags().DurationVar(&eo.pollInterval, "poll-interval", execution.DefaultPollInterval, "Delay between status queries")
	cmd.Flags().IntVar(&eo.maxPolls, "max-polls", execution.DefaultMaxStatusQueries, "Status queries before the execution times out")
	cmd.Flags().BoolVar(&eo.dryRun, "dry-run", false, "Print the Execute request instead of sending it")
	return cmd
}

func runExecute(cmd *cobra.Command, opts *globalOptions, eo *executeOptions, serviceURL, processID string) error {
	req, err := eo.request()
	if err != nil {
		return err
	}
	values, err := req.ToValues()
	if err != nil {
		return err
	}

	logger := opts.newLogger(cmd.ErrOrStderr())
	defer func() { _ = logger.Sync() }()

	client, err := opts.newClient(logger, clientOptions{
		pollInterval:     eo.pollInterval,
		maxStatusQueries: eo.maxPolls,
	})
	if err != nil {
		return err
	}
	svc, err := opts.loadService(cmd, client, serviceURL)
	if err != nil {
		return err
	}

	if eo.dryRun {
		return printExecuteXML(cmd, client, svc, processID, values, req.Outputs)
	}

	progress := cmd.ErrOrStderr()
	exec, warnings, err := client.Execute(cmd.Context(), svc, processID, values, req.Outputs, wpsclient.ExecuteOptions{
		Observer: func(rec execution.Record, from execution.Status) {
			fmt.Fprintf(progress, "%s -> %s %d%% %s\n", from, rec.Status, rec.PercentComplete, rec.StatusMessage)
		},
	})
	printWarnings(cmd.ErrOrStderr(), warnings)
	if err != nil {
		return fmt.Errorf("Execute %s: %w", processID, err)
	}

	rec, err := exec.Wait(cmd.Context())
	if err != nil {
		// Interrupted: stop polling and report what is known.
		_ = exec.Cancel()
		rec = exec.Record()
	}

	if opts.jsonOutput() {
		if err := writeJSON(cmd.OutOrStdout(), rec); err != nil {
			return err
		}
	} else {
		printRecord(cmd.OutOrStdout(), rec)
	}

	if rec.Status != execution.StatusSucceeded {
		return fmt.Errorf("%w: %s", ErrExecutionFailed, rec.Status)
	}
	return nil
}

func printExecuteXML(
	cmd *cobra.Command,
	client *wpsclient.Client,
	svc *service.Service,
	processID string,
	values process.Values,
	outputs []service.OutputSelection,
) error {
	_, warnings, err := client.EnsureDescribed(cmd.Context(), svc, processID, false)
	printWarnings(cmd.ErrOrStderr(), warnings)
	if err != nil {
		return fmt.Errorf("DescribeProcess %s: %w", processID, err)
	}
	xml, warnings, err := client.BuildExecute(svc, processID, values, outputs)
	printWarnings(cmd.ErrOrStderr(), warnings)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), xml)
	return err
}

// request merges --inputs-file with the --input and --output flags. Flag
// occurrences are appended after those from the file.
func (eo *executeOptions) request() (models.ExecuteRequest, error) {
	var req models.ExecuteRequest
	if eo.inputsFile != "" {
		b, err := os.ReadFile(eo.inputsFile)
		if err != nil {
			return req, fmt.Errorf("reading inputs file: %w", err)
		}
		if err := json.Unmarshal(b, &req); err != nil {
			return req, fmt.Errorf("parsing inputs file %s: %w", eo.inputsFile, err)
		}
	}
	if req.Inputs == nil {
		req.Inputs = make(map[string][]models.InputValue)
	}

	for _, kv := range eo.inputs {
		id, value, ok := strings.Cut(kv, "=")
		if !ok || id == "" {
			return req, fmt.Errorf("%w: --input %q is not id=value", models.ErrInvalidInput, kv)
		}
		req.Inputs[id] = append(req.Inputs[id], models.InputValue{Value: &value})
	}

	for _, o := range eo.outputs {
		id, mime, _ := strings.Cut(o, "=")
		if id == "" {
			return req, fmt.Errorf("%w: --output %q has no identifier", models.ErrInvalidInput, o)
		}
		sel := service.OutputSelection{Identifier: id}
		if mime != "" {
			sel.Format = &format.Format{MimeType: mime}
		}
		req.Outputs = append(req.Outputs, sel)
	}
	return req, nil
}

func printRecord(w io.Writer, rec execution.Record) {
	fmt.Fprintf(w, "execution %s: %s", rec.ID, rec.Status)
	if rec.StatusMessage != "" {
		fmt.Fprintf(w, " (%s)", rec.StatusMessage)
	}
	fmt.Fprintln(w)
	if rec.ExceptionReport != nil {
		fmt.Fprintf(w, "exception: %s\n", rec.ExceptionReport.Summary())
	}
	if rec.Error != "" {
		fmt.Fprintf(w, "error: %s\n", rec.Error)
	}
	for _, out := range rec.Outputs {
		fmt.Fprintf(w, "%s: %s\n", out.Identifier, resultText(out))
	}
}

func resultText(r *data.Result) string {
	switch {
	case r.Literal != nil:
		if r.Literal.UOM != "" {
			return r.Literal.Value + " " + r.Literal.UOM
		}
		return r.Literal.Value
	case r.Reference != nil:
		return r.Reference.Href
	case r.BoundingBox != nil:
		return fmt.Sprintf("%v", *r.BoundingBox)
	case r.Complex != nil:
		return fmt.Sprintf("<%s, %d bytes>", r.Complex.MimeType, len(r.Complex.Payload))
	default:
		return ""
	}
}
