package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hanyun2019/mcp-on-aws-demo/pkg/config"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema for assistant config files",
	Long: `Print the JSON schema that config files passed with --config are validated
against. Point an editor's YAML language server at it for completion.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := config.Schema()
		if err != nil {
			return fmt.Errorf("failed to generate schema: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
