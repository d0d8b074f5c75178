package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/harunnryd/shiori/internal/catalog"
	"github.com/harunnryd/shiori/internal/concurrency"

	"github.com/google/shlex"
)

// chatEngine is the part of conversation.Engine the REPL drives.
type chatEngine interface {
	ID() string
	Send(ctx context.Context, input string) (string, error)
	Reset()
	SaveTranscript(path string) (string, error)
	Load(path string) (int, error)
	DefaultTranscriptPath(dir string) string
}

type REPL struct {
	engine        chatEngine
	catalog       *catalog.Catalog
	in            io.Reader
	out           io.Writer
	transcriptDir string
}

func NewREPL(engine chatEngine, cat *catalog.Catalog, in io.Reader, out io.Writer, transcriptDir string) *REPL {
	return &REPL{
		engine:        engine,
		catalog:       cat,
		in:            in,
		out:           out,
		transcriptDir: transcriptDir,
	}
}

// Run reads queries until /exit, end of input, or ctx cancellation.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintf(r.out, "Shiori chat session: %s\n", r.engine.ID())
	fmt.Fprintln(r.out, "Type your question, '/help' for commands, or '/exit' to quit (Ctrl+C also exits).")

	lines := make(chan string)
	readErr := make(chan error, 1)
	concurrency.SafeGo("repl-reader", func() {
		scanner := bufio.NewScanner(r.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		readErr <- err
	}, func(err error) { readErr <- err })

	for {
		fmt.Fprint(r.out, "\nQuery: ")

		select {
		case <-ctx.Done():
			r.goodbye()
			return nil
		case err := <-readErr:
			r.goodbye()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		case line := <-lines:
			if r.handleLine(ctx, line) {
				r.goodbye()
				return nil
			}
		}
	}
}

func (r *REPL) goodbye() {
	fmt.Fprintln(r.out, "\nGoodbye!")
}

// handleLine reports whether the session should end.
func (r *REPL) handleLine(ctx context.Context, line string) bool {
	text := strings.TrimSpace(line)
	switch {
	case text == "":
		return false
	case strings.HasPrefix(text, "/"):
		return r.handleCommand(text)
	}

	answer, err := r.engine.Send(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		fmt.Fprintf(r.out, "\nError: %v\n", err)
		return false
	}

	fmt.Fprintf(r.out, "\nAI: %s\n", answer)
	return false
}

func (r *REPL) handleCommand(input string) bool {
	parts, parseErr := shlex.Split(input)
	if parseErr != nil {
		parts = strings.Fields(input)
	}
	if len(parts) == 0 {
		return false
	}
	cmd := parts[0]
	args := parts[1:]

	slog.Debug("Executing slash command", "cmd", cmd, "session_id", r.engine.ID())

	switch cmd {
	case "/exit", "/quit":
		return true
	case "/reset":
		r.engine.Reset()
		fmt.Fprintln(r.out, "Conversation cleared.")
	case "/tools":
		format := OutputFormatTable
		if len(args) > 0 {
			format = OutputFormat(strings.ToLower(args[0]))
		}
		formatter, err := NewToolFormatter(format)
		if err != nil {
			fmt.Fprintf(r.out, "Command failed: %v\n", err)
			return false
		}
		listing, err := formatter.FormatTools(r.catalog.Schemas())
		if err != nil {
			fmt.Fprintf(r.out, "Command failed: %v\n", err)
			return false
		}
		fmt.Fprintln(r.out, listing)
	case "/save":
		path := r.engine.DefaultTranscriptPath(r.transcriptDir)
		if len(args) > 0 {
			path = args[0]
		}
		saved, err := r.engine.SaveTranscript(path)
		if err != nil {
			fmt.Fprintf(r.out, "Command failed: %v\n", err)
			return false
		}
		fmt.Fprintf(r.out, "Transcript saved to %s\n", saved)
	case "/load":
		if len(args) == 0 {
			fmt.Fprintln(r.out, "Usage: /load <path>")
			return false
		}
		n, err := r.engine.Load(args[0])
		if err != nil {
			fmt.Fprintf(r.out, "Command failed: %v\n", err)
			return false
		}
		fmt.Fprintf(r.out, "Loaded %d messages from %s\n", n, args[0])
	case "/help":
		fmt.Fprintln(r.out, helpText())
	default:
		fmt.Fprintf(r.out, "Unknown command: %s\n", cmd)
	}
	return false
}

func helpText() string {
	return strings.Join([]string{
		"Commands:",
		"  /tools [fmt]   list the tools the model can call (table, json, yaml)",
		"  /reset         start a fresh conversation",
		"  /save [path]   write the conversation to a JSON file",
		"  /load <path>   continue a saved conversation",
		"  /exit          quit",
	}, "\n")
}
