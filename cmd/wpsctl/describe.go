package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/piwi3910/wpsgate/internal/models"
)

func newDescribeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <url> <process>",
		Short: "Show the inputs and outputs of a process",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.newLogger(cmd.ErrOrStderr())
			defer func() { _ = logger.Sync() }()

			client, err := opts.newClient(logger, clientOptions{})
			if err != nil {
				return err
			}
			svc, err := opts.loadService(cmd, client, args[0])
			if err != nil {
				return err
			}

			p, warnings, err := client.EnsureDescribed(cmd.Context(), svc, args[1], false)
			printWarnings(cmd.ErrOrStderr(), warnings)
			if err != nil {
				return fmt.Errorf("DescribeProcess %s: %w", args[1], err)
			}

			out := models.NewProcess("", p.Snapshot())
			if opts.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			return printProcess(cmd.OutOrStdout(), out)
		},
	}
}

func printProcess(w io.Writer, p models.Process) error {
	fmt.Fprintf(w, "%s (version %s)\n", p.Identifier, p.Version)
	fmt.Fprintf(w, "%s\n", p.Title)
	if p.Abstract != "" {
		fmt.Fprintf(w, "%s\n", p.Abstract)
	}
	fmt.Fprintf(w, "status supported: %t, store supported: %t, client supported: %t\n\n",
		p.StatusSupported, p.StoreSupported, p.ClientSupported)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INPUT\tKIND\tOCCURS\tDETAIL\tTITLE")
	for _, in := range p.Inputs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", in.Identifier, in.Description.Kind, occurs(in), detail(in), in.Title)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "OUTPUT\tKIND\t\tDETAIL\tTITLE")
	for _, out := range p.Outputs {
		fmt.Fprintf(tw, "%s\t%s\t\t%s\t%s\n", out.Identifier, out.Description.Kind, detail(out), out.Title)
	}
	return tw.Flush()
}

func occurs(p models.Parameter) string {
	lo := "0"
	if p.MinOccurs != nil {
		lo = strconv.Itoa(*p.MinOccurs)
	}
	hi := "*"
	if p.MaxOccurs != nil {
		hi = strconv.Itoa(*p.MaxOccurs)
	}
	return lo + ".." + hi
}

// detail is a one-line summary of the data kind of a parameter.
func detail(p models.Parameter) string {
	d := p.Description
	switch {
	case d.DataType != nil:
		s := d.DataType.Name
		if d.DefaultValue != "" {
			s += " default=" + d.DefaultValue
		}
		return s
	case len(d.SupportedCRS) > 0:
		return d.SupportedCRS[0]
	case len(d.Formats) > 0:
		s := d.Formats[0].MimeType
		if n := len(d.Formats) - 1; n > 0 {
			s += fmt.Sprintf(" (+%d)", n)
		}
		return s
	default:
		return ""
	}
}
