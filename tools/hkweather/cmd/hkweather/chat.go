package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hanyun2019/mcp-on-aws-demo/pkg/config"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/assistant"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/cache"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/logger"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/mcp"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/providers"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/version"
)

const banner = `Hong Kong weather assistant. Ask about current conditions, the 9-day
forecast or warnings in force. Type "exit" or "quit" to leave.`

// answerWrapWidth is the column answers are wrapped at on a terminal.
const answerWrapWidth = 100

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions about Hong Kong weather",
	Long: `Start the weather tool server, connect to it over MCP and answer questions
read from stdin, one per line. With --query a single question is answered and
the command exits. On a terminal answers are rendered as Markdown; piped input
gets no prompt or banner.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("query", "q", "", "Answer one question and exit")
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := startObservability(ctx, cfg.Spec.Telemetry, "hkweather-chat")
	if err != nil {
		return err
	}
	defer shutdown()
	version.LogStartup(ctx, "chat")

	model, err := buildProvider(ctx, cfg.Spec.Model)
	if err != nil {
		return err
	}
	if model == nil {
		logger.Info("No language model configured; using keyword routing and template answers")
	}
	defer closeModel(model)

	store, err := buildStore(ctx, cfg.Spec.Cache)
	if err != nil {
		return err
	}
	defer closeStore(store)

	session, err := openSession(ctx, cmd, cfg, model, store)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	var render func(string) string
	if isTerminal(cmd.OutOrStdout()) {
		render = newAnswerRenderer(glamour.WithAutoStyle())
	}

	query, err := cmd.Flags().GetString("query")
	if err != nil {
		return fmt.Errorf("failed to get query flag: %w", err)
	}
	if query != "" {
		return answerOnce(ctx, session, query, cmd.OutOrStdout(), render)
	}

	opts := []assistant.LoopOption{assistant.WithRenderer(render)}
	if isTerminal(cmd.InOrStdin()) {
		fmt.Fprintln(cmd.OutOrStdout(), banner)
	} else {
		opts = append(opts, assistant.WithoutPrompt())
	}
	return session.Loop(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), opts...)
}

func answerOnce(ctx context.Context, session *assistant.Session, query string, out io.Writer, render func(string) string) error {
	answer, err := session.Ask(ctx, query)
	if err != nil {
		return err
	}
	text := answer.Text
	if render != nil {
		text = render(text)
	}
	_, err = fmt.Fprintln(out, text)
	return err
}

// openSession builds the MCP client and opens the session. The caller owns
// model and store.
func openSession(
	ctx context.Context, cmd *cobra.Command, c *config.AssistantConfig,
	model providers.Provider, store cache.Store,
) (*assistant.Session, error) {
	configPath, _ := cmd.Flags().GetString("config")
	sc, err := serverConfig(ctx, c, configPath)
	if err != nil {
		return nil, err
	}
	client := mcp.NewStdioClientWithOptions(sc, clientOptions(c))

	session, err := assistant.Open(ctx, client, model,
		assistant.WithCache(store, c.Spec.Cache.TTLMap()),
		assistant.WithQueryTimeout(c.Spec.Timeouts.Query.Std()),
		assistant.WithCallTimeout(c.Spec.Timeouts.ToolCall.Std()),
		assistant.WithModelTimeout(c.Spec.Model.Timeout.Std()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start the weather tools: %w", err)
	}
	return session, nil
}

// newAnswerRenderer renders answers as Markdown for a terminal. Rendering
// problems fall back to the plain text.
func newAnswerRenderer(style glamour.TermRendererOption) func(string) string {
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(answerWrapWidth))
	if err != nil {
		logger.Debug("Markdown rendering unavailable", "error", err)
		return nil
	}
	return func(text string) string {
		out, err := r.Render(text)
		if err != nil {
			return text
		}
		return strings.Trim(out, "\n")
	}
}

func isTerminal(stream any) bool {
	f, ok := stream.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func closeModel(model providers.Provider) {
	if model != nil {
		_ = model.Close()
	}
}

func closeStore(store cache.Store) {
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Warn("Cache store close failed", "error", err)
		}
	}
}
