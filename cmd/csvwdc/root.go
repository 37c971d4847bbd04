package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/csvwdc/internal/config"
	"github.com/JonMunkholm/csvwdc/internal/core"
	"github.com/JonMunkholm/csvwdc/internal/fetch"
	"github.com/JonMunkholm/csvwdc/internal/infer"
	"github.com/JonMunkholm/csvwdc/internal/logging"
)

// app holds state shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	// openSink connects the export sink; nil means connectSink.
	openSink func(ctx context.Context, a *app, replace bool) (core.Sink, func(), error)

	// flags
	logLevel  string
	delimiter string
	method    string
	token     string
	format    string
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "csvwdc",
		Short:         "Infer table schemas from CSV files and URLs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (default from LOG_LEVEL)")
	pf.StringVarP(&a.delimiter, "delimiter", "d", infer.DefaultDelimiter, "single-character field delimiter")
	pf.StringVarP(&a.method, "method", "X", "GET", "HTTP method for URL sources")
	pf.StringVar(&a.token, "token", "", "bearer token for URL sources")
	pf.StringVarP(&a.format, "format", "f", "json", "output format: json or yaml")

	root.AddCommand(newInferCmd(a), newExportCmd(a))
	return root
}

// init loads configuration and routes logs to stderr so stdout stays
// parseable.
func (a *app) init(cmd *cobra.Command) error {
	if a.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a.cfg = cfg
	}

	level := a.cfg.Logging.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	a.logger = logging.New(cmd.ErrOrStderr(), level, a.cfg.Logging.Format)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logging.WithLogger(ctx, a.logger))
	return nil
}

func (a *app) source(arg string) core.Source {
	return core.Source{URL: arg, Method: a.method, Delimiter: a.delimiter, Token: a.token}
}

// fetcher reads local files directly and everything else over HTTP.
func (a *app) fetcher() core.Fetcher {
	client := fetch.NewClient(a.cfg.Fetch, a.logger)
	return core.FetcherFunc(func(ctx context.Context, req fetch.Request) (string, error) {
		if info, err := os.Stat(req.URL); err == nil && info.Mode().IsRegular() {
			return readLocal(req.URL, a.cfg.Fetch.MaxBodySize)
		}
		return client.Fetch(ctx, req)
	})
}

func (a *app) service(opts ...core.Option) *core.Service {
	opts = append([]core.Option{
		core.WithEngine(infer.NewEngine(a.logger)),
		core.WithBatchSize(a.cfg.Load.RowBatchSize),
		core.WithTablePrefix(a.cfg.Export.TablePrefix),
		core.WithExportTimeout(a.cfg.Export.Timeout),
	}, opts...)
	return core.NewService(a.fetcher(), nil, opts...)
}

func readLocal(path string, maxSize int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if int64(len(data)) > maxSize {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", fetch.ErrTooLarge, path, maxSize)
	}
	return string(data), nil
}

// writeOutput prints v as indented JSON or YAML.
func writeOutput(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q: use json or yaml", format)
	}
}
