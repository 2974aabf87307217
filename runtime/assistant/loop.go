package assistant

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Prompt is written before each query in Loop.
const Prompt = "> "

type loopConfig struct {
	prompt bool
	render func(string) string
}

// LoopOption configures Loop.
type LoopOption func(*loopConfig)

// WithoutPrompt suppresses the prompt, for input that is not a terminal.
func WithoutPrompt() LoopOption {
	return func(c *loopConfig) { c.prompt = false }
}

// WithRenderer formats each answer before it is written.
func WithRenderer(render func(string) string) LoopOption {
	return func(c *loopConfig) { c.render = render }
}

// Loop reads one query per line from in and writes each answer to out. It
// returns nil on EOF, "exit" or "quit", and ctx's error on cancellation, also
// while waiting for input. A transport error ends the loop and is returned.
//
// Lines are read on a separate goroutine. If in never returns from Read, that
// goroutine outlives Loop.
func (s *Session) Loop(ctx context.Context, in io.Reader, out io.Writer, opts ...LoopOption) error {
	cfg := loopConfig{prompt: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	done := make(chan struct{})
	defer close(done)
	lines, readErr := readLines(in, done)

	for {
		if cfg.prompt {
			if _, err := io.WriteString(out, Prompt); err != nil {
				return err
			}
		}

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			endPrompt(out, cfg)
			return ctx.Err()
		case line, ok = <-lines:
		}
		if !ok {
			endPrompt(out, cfg)
			return <-readErr
		}

		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}
		switch strings.ToLower(query) {
		case "exit", "quit":
			_, _ = fmt.Fprintln(out, "Goodbye!")
			return nil
		}

		answer, err := s.Ask(ctx, query)
		if err != nil {
			_, _ = fmt.Fprintln(out, "Lost connection to the weather tools. Please restart the assistant.")
			return err
		}
		text := answer.Text
		if cfg.render != nil {
			text = cfg.render(text)
		}
		if _, err := fmt.Fprintf(out, "%s\n\n", text); err != nil {
			return err
		}
	}
}

// endPrompt finishes the prompt line so the shell starts on a fresh one.
func endPrompt(out io.Writer, cfg loopConfig) {
	if cfg.prompt {
		_, _ = io.WriteString(out, "\n")
	}
}

// readLines scans in until EOF or until done is closed. After lines is closed
// readErr holds the scanner's error.
func readLines(in io.Reader, done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		readErr <- scanner.Err()
	}()
	return lines, readErr
}
