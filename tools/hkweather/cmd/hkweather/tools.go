package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hanyun2019/mcp-on-aws-demo/runtime/mcp"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the weather tools",
	Long: `List the weather tools and their parameters. By default the tool server is
started and asked over MCP; --local prints the built-in catalog instead.`,
	RunE: runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.Flags().Bool("local", false, "Print the built-in catalog without starting the server")
	toolsCmd.Flags().Bool("json", false, "Print input schemas as JSON")
}

func runTools(cmd *cobra.Command, _ []string) error {
	local, _ := cmd.Flags().GetBool("local")
	asJSON, _ := cmd.Flags().GetBool("json")

	if local {
		return printTools(cmd.OutOrStdout(), tools.Catalog(), asJSON)
	}

	ctx := cmd.Context()
	configPath, _ := cmd.Flags().GetString("config")
	sc, err := serverConfig(ctx, cfg, configPath)
	if err != nil {
		return err
	}
	client := mcp.NewStdioClientWithOptions(sc, clientOptions(cfg))
	defer func() { _ = client.Close() }()

	if _, err := client.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to start the weather tools: %w", err)
	}
	specs, err := tools.NewMCPBridge(client).Discover(ctx)
	if err != nil {
		return err
	}
	return printTools(cmd.OutOrStdout(), specs, asJSON)
}

func printTools(w io.Writer, specs []tools.ToolSpec, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tools.ToolsForMCP(specs))
	}

	for _, spec := range specs {
		fmt.Fprintf(w, "%s\n  %s\n", spec.Name, spec.Description)
		for _, p := range spec.Params {
			line := fmt.Sprintf("    %s (%s)", p.Name, p.Type)
			if p.Required {
				line += " required"
			}
			if p.Default != nil {
				line += fmt.Sprintf(" default=%v", p.Default)
			}
			fmt.Fprintf(w, "%s: %s\n", line, p.Description)
		}
	}
	return nil
}
