// Package servecmder provides the serve command, which runs the HTTP API and
// MCP server over the dialogue corpus.
package servecmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/api"
	"github.com/papercomputeco/parley/api/mcp"
	"github.com/papercomputeco/parley/cmd/parley/bootstrap"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/dotdir"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/pipeline"
)

type ServeCommander struct {
	jsonLogs  bool
	noLogFile bool
	configDir string

	cfg    *config.Config
	debug  bool
	logger *slog.Logger

	errOut io.Writer
}

const serveLongDesc string = `Run the parley API server.

The index is rebuilt from the corpus in the background when the server
starts. Until the rebuild finishes, /v1/status reports "building" and
queries wait for it; if it fails, /v1/status reports "failed" and queries
return 503.

Endpoints:
  GET  /ping         Health check
  GET  /v1/status    Index readiness and the last rebuild report
  POST /v1/ask       {"query": "..."} -> generated answer and documents
  GET  /v1/search    ?query=... -> nearest documents
       /mcp          MCP streamable HTTP (tools: ask, search)

Examples:
  parley serve
  parley serve --listen :9000 --mode paired
  parley serve --json-logs`

const serveShortDesc string = "Run the parley API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.cfg, err = bootstrap.LoadConfig(cmd, config.FlagAPIListen)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.errOut = cmd.ErrOrStderr()
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	bootstrap.AddPipelineFlags(cmd)
	bootstrap.AddListenFlag(cmd)
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Write JSON logs to stderr instead of pretty output")
	cmd.Flags().BoolVar(&cmder.noLogFile, "no-log-file", false, "Do not write logs to .parley/parley.log")

	return cmd
}

func (c *ServeCommander) run(ctx context.Context) error {
	closeLog, err := c.setupLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	pc, err := bootstrap.NewPipeline(ctx, c.cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer pc.Close()

	mcpServer, err := mcp.NewServer(mcp.Config{
		Pipeline:          pc,
		EmptyQueryMessage: c.cfg.Retrieval.EmptyQueryMessage,
		Logger:            c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiServer, err := api.NewServer(api.Config{
		ListenAddr:        c.cfg.API.Listen,
		Pipeline:          pc,
		EmptyQueryMessage: c.cfg.Retrieval.EmptyQueryMessage,
		MCPHandler:        mcpServer.Handler(),
	}, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	var rebuilding sync.WaitGroup
	defer func() {
		cancel()
		rebuilding.Wait()
	}()

	rebuilding.Add(1)
	go func() {
		defer rebuilding.Done()
		c.rebuild(ctx, pc)
	}()

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return apiServer.Shutdown()
	}
}

// rebuild runs the startup rebuild. Failures are reported through
// /v1/status rather than stopping the server.
func (c *ServeCommander) rebuild(ctx context.Context, pc *pipeline.Context) {
	c.logger.Info("rebuilding index",
		"corpus", c.cfg.Corpus.Path,
		"mode", c.cfg.Corpus.Mode,
		"vector_store", c.cfg.VectorStore.Provider,
	)

	report, err := pc.Rebuild(ctx)
	if err != nil {
		c.logger.Error("index rebuild failed", "error", err)
		return
	}

	c.logger.Info("index ready",
		"records", report.Records,
		"removed", report.Removed,
		"dimensions", report.Dimensions,
		"duration", report.Duration,
	)
}

// setupLogger builds the console logger and, unless disabled, fans it out
// to a JSON log file in the .parley/ directory.
func (c *ServeCommander) setupLogger() (func(), error) {
	console := logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(!c.jsonLogs),
		logger.WithJSON(c.jsonLogs),
		logger.WithWriter(c.errOut),
	)

	if c.noLogFile {
		c.logger = console
		return func() {}, nil
	}

	path, err := dotdir.NewManager().Path(c.configDir, dotdir.LogFile)
	if err != nil {
		return nil, fmt.Errorf("resolving log file: %w", err)
	}
	file, closer, err := logger.OpenFile(path, logger.WithDebug(c.debug), logger.WithComponent("serve"))
	if err != nil {
		return nil, err
	}
	c.logger = logger.Multi(console, file)

	return func() { _ = closer.Close() }, nil
}
