package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/piwi3910/wpsgate/internal/transport"
	"github.com/piwi3910/wpsgate/internal/wps/ows"
	"github.com/piwi3910/wpsgate/internal/wps/reproject"
	"github.com/piwi3910/wpsgate/internal/wps/service"
	"github.com/piwi3910/wpsgate/internal/wpsclient"
)

var exit = os.Exit

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	v *viper.Viper
}

func (o *globalOptions) encoding() service.Encoding {
	return service.Encoding(strings.ToUpper(o.v.GetString("encoding")))
}

func (o *globalOptions) jsonOutput() bool { return o.v.GetBool("json") }

// newRootCmd builds the wpsctl command tree. Flags can also be set through
// WPSCTL_* environment variables.
func newRootCmd() *cobra.Command {
	opts := &globalOptions{v: viper.New()}

	root := &cobra.Command{
		Use:   "wpsctl",
		Short: "Talk to OGC Web Processing Service 1.0.0 endpoints",
		Long: `wpsctl lists the processes of a WPS endpoint, shows their descriptions
and runs them, polling asynchronous executions until they settle.

Examples:
  wpsctl capabilities https://wps.example.com/wps
  wpsctl describe https://wps.example.com/wps buffer
  wpsctl execute https://wps.example.com/wps echo --input in=hello`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("encoding", string(service.EncodingGET), "Request encoding for GetCapabilities and DescribeProcess (GET, POST, SOAP)")
	flags.Duration("timeout", transport.DefaultTimeout, "Timeout of each request")
	flags.String("user-agent", "wpsctl/1.0", "User-Agent sent with every request")
	flags.Bool("json", false, "Output as JSON")
	flags.BoolP("verbose", "v", false, "Enable debug logging")

	opts.v.SetEnvPrefix("WPSCTL")
	opts.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	opts.v.AutomaticEnv()
	_ = opts.v.BindPFlags(flags)

	root.AddCommand(
		newCapabilitiesCmd(opts),
		newDescribeCmd(opts),
		newExecuteCmd(opts),
	)
	return root
}

// newLogger logs to stderr so JSON output on stdout stays parseable.
func (o *globalOptions) newLogger(stderr io.Writer) *zap.Logger {
	level := zapcore.WarnLevel
	if o.v.GetBool("verbose") {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(stderr), level)
	return zap.New(core)
}

type clientOptions struct {
	pollInterval     time.Duration
	maxStatusQueries int
}

func (o *globalOptions) newClient(logger *zap.Logger, co clientOptions) (*wpsclient.Client, error) {
	tr, err := transport.NewHTTPClient(&transport.Config{
		Logger:    logger,
		Timeout:   o.v.GetDuration("timeout"),
		UserAgent: o.v.GetString("user-agent"),
	})
	if err != nil {
		return nil, err
	}
	return wpsclient.New(&wpsclient.Config{
		Transport:        tr,
		Logger:           logger,
		RequestEncoding:  o.encoding(),
		Reprojector:      reproject.New(),
		PollInterval:     co.pollInterval,
		MaxStatusQueries: co.maxStatusQueries,
	})
}

// loadService fetches the capabilities of serviceURL.
func (o *globalOptions) loadService(cmd *cobra.Command, client *wpsclient.Client, serviceURL string) (*service.Service, error) {
	svc := service.New(serviceURL)
	warnings, err := client.FetchCapabilities(cmd.Context(), svc)
	printWarnings(cmd.ErrOrStderr(), warnings)
	if err != nil {
		return nil, fmt.Errorf("GetCapabilities %s: %w", serviceURL, err)
	}
	return svc, nil
}

func printWarnings(w io.Writer, warnings ows.Warnings) {
	for _, warning := range warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
