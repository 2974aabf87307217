package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hanyun2019/mcp-on-aws-demo/pkg/config"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/logger"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/version"
)

// envPrefix namespaces environment overrides, e.g. HKWEATHER_MODEL_PROVIDER.
const envPrefix = "HKWEATHER"

// cfg is the configuration resolved by the root command before any subcommand runs.
var cfg *config.AssistantConfig

var rootCmd = &cobra.Command{
	Use:           "hkweather",
	Short:         "Hong Kong weather assistant over MCP",
	Version:       version.GetVersion(),
	SilenceUsage:  true,  // Don't print usage on error
	SilenceErrors: false, // Do print errors
	Long: `hkweather answers questions about Hong Kong weather. The chat command
starts the weather tool server as a child process, talks to it over MCP on stdio,
and lets a language model (or keyword rules when none is configured) pick the
tool for each question.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadDotEnv(); err != nil {
			return err
		}
		loaded, err := loadConfig(cmd, viper.GetViper())
		if err != nil {
			return err
		}
		cfg = loaded
		configureLogging(cmd, cfg.Spec.Logging)
		return nil
	},
}

func init() {
	cobra.OnInitialize(initViper)

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Assistant config file (YAML manifest)")
	flags.BoolP("verbose", "v", false, "Enable debug logging")
	flags.String("provider", "", "Model provider: none, mock, claude, openai, ollama")
	flags.String("model", "", "Model name")
	flags.String("platform", "", `Model platform ("" or bedrock)`)
	flags.String("region", "", "AWS region for the bedrock platform")
	flags.String("base-url", "", "Override the provider base URL")
	flags.String("cache", "", "Result cache: memory, redis, none")
	flags.String("redis-addr", "", "Redis address for the redis cache")
	flags.String("source", "", "Backend source: page or api")
	flags.Duration("query-timeout", 0, "Bound on one question end to end")
	flags.String("otlp-endpoint", "", "OTLP/HTTP endpoint for traces")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.String("log-format", "", "Log format: text or json")

	// Bind flags to viper
	for key, flag := range overrideFlags {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

func initViper() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// loadDotEnv reads .env from the working directory when present.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func configureLogging(cmd *cobra.Command, spec config.LoggingSpec) {
	logger.Configure(logger.Options{
		Level:        logger.ParseLevel(spec.Level),
		Format:       spec.Format,
		CommonFields: spec.CommonFields,
	})
	if cmd.Flags().Changed("verbose") {
		verbose, err := cmd.Flags().GetBool("verbose")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting verbose flag: %v\n", err)
			return
		}
		logger.SetVerbose(verbose)
	}
}

// setupVersion configures the version display
func setupVersion() {
	rootCmd.SetVersionTemplate(version.GetVersionInfo() + "\n")
}

func Execute() {
	setupVersion()
	if err := rootCmd.Execute(); err != nil {
		// Error already printed by cobra
		os.Exit(1)
	}
}

func main() {
	Execute()
}
