package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/piwi3910/wpsgate/internal/models"
	"github.com/piwi3910/wpsgate/internal/wps/service"
)

type capabilitiesOutput struct {
	URL       string                  `json:"url"`
	Metadata  service.Metadata        `json:"metadata"`
	Processes []models.ProcessSummary `json:"processes"`
}

func newCapabilitiesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "capabilities <url>",
		Aliases: []string{"caps"},
		Short:   "List the processes a service offers",
		Args:    cobra.ExactArgs(1),
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

			out := capabilitiesOutput{
				URL:       svc.URL(),
				Metadata:  svc.Metadata(),
				Processes: models.NewProcessSummaries(svc.Processes()),
			}
			if opts.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s (%s %s)\n", out.Metadata.Title, out.Metadata.ServiceType, out.Metadata.ServiceTypeVersion)
			if out.Metadata.Abstract != "" {
				fmt.Fprintf(w, "%s\n", out.Metadata.Abstract)
			}
			fmt.Fprintln(w)

			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "IDENTIFIER\tVERSION\tTITLE")
			for _, p := range out.Processes {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Identifier, p.Version, p.Title)
			}
			return tw.Flush()
		},
	}
}
