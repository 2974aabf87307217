package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hanyun2019/mcp-on-aws-demo/runtime/logger"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/mcp"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/telemetry"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/version"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/weather"
)

const serverInstructions = "Tools for Hong Kong Observatory data: current weather, " +
	"the 9-day forecast (optionally for one date) and weather warnings in force."

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the weather tools over MCP on stdio",
	Long: `Run the Hong Kong weather MCP server. Requests are read from stdin and
responses written to stdout; logs go to stderr. chat starts this command as a
child process.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("workers", 0, "Concurrent tool calls (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = telemetry.ExtractEnv(ctx, os.Environ())

	telemetrySpec := cfg.Spec.Telemetry
	if !cmd.Flags().Changed("metrics-addr") {
		telemetrySpec.MetricsAddr = ""
	}
	shutdown, err := startObservability(ctx, telemetrySpec, "hkweather-server")
	if err != nil {
		return err
	}
	defer shutdown()

	version.LogStartup(ctx, "serve")

	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = cfg.Spec.Server.Workers
	}

	source := weather.Source(cfg.Spec.Backend.Source)
	svc := weather.NewService(newBrowser(cfg.Spec.Backend), weather.WithRecipes(weather.Recipes(source)))

	srv := mcp.NewServer(serverName, version.GetVersion(),
		mcp.WithWorkers(workers),
		mcp.WithInstructions(serverInstructions))
	svc.Register(srv)

	logger.InfoContext(ctx, "Weather MCP server ready", "source", source, "workers", workers)
	err = srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	logger.InfoContext(ctx, "Weather MCP server stopped")
	return err
}
