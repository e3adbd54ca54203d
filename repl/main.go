// Command askdir-repl asks about files by hand, without watching a directory.
// It reads one path per line from stdin, sends each through the same
// dispatcher as the daemon and writes a TOML record of every exchange to
// stdout. Answers are rendered on stderr.
//
// A line of the form "prompt :: path" overrides the prompt that would
// otherwise be taken from the path's parent directory.
//
// Usage:
//
//	./askdir-repl                      # interactive
//	./askdir-repl > log.toml           # answers on screen, TOML to file
//	find inbox -type f | ./askdir-repl # batch
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"
	"mvdan.cc/sh/v3/shell"

	askdir "github.com/Paranoid-AF/askdir"
	"github.com/Paranoid-AF/askdir/dispatch"
)

const prompt = "> "

// promptSeparator splits an explicit prompt from the path on one line.
const promptSeparator = " :: "

// Dispatcher asks about one file.
type Dispatcher interface {
	Dispatch(ctx context.Context, path, prompt string) (*askdir.Answer, error)
}

type session struct {
	dispatcher  Dispatcher
	pricing     askdir.Pricing
	out         io.Writer // TOML records
	tty         io.Writer // prompts and notices
	interactive bool
}

func main() {
	verbose := flag.Bool("verbose", false, "log every request to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := askdir.LoadDotEnv(); err != nil {
		slog.Warn("failed to load .env", "error", err)
	}
	cfg, err := askdir.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	for _, w := range askdir.ValidateConfig(cfg) {
		slog.Warn(w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	s := &session{
		dispatcher:  dispatch.NewFromConfig(cfg, dispatch.Config{Out: os.Stderr, NoClear: true}),
		pricing:     cfg.Pricing,
		out:         os.Stdout,
		tty:         os.Stderr,
		interactive: term.IsTerminal(int(os.Stdin.Fd())),
	}
	if s.interactive {
		fmt.Fprintf(s.tty, "askdir repl (model %s)\n", askdir.ResolveModel(cfg))
		fmt.Fprintf(s.tty, "enter a path, or \"prompt%spath\"; :quit to exit\n\n", promptSeparator)
	}

	if err := s.run(ctx, os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "read error: %v\n", err)
		os.Exit(1)
	}
}

// run handles lines from in until EOF, :quit or ctx is done.
func (s *session) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		if s.interactive {
			fmt.Fprint(s.tty, prompt)
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := scanner.Text()
		text := strings.TrimSpace(line)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if text == ":quit" || text == ":q" {
			return nil
		}

		path, question, err := parseLine(line)
		if err != nil {
			fmt.Fprintf(s.tty, "error: %v\n", err)
			continue
		}

		answer, err := s.dispatcher.Dispatch(ctx, path, question)
		if werr := writeEntry(s.out, newExchange(path, question, answer, err, s.pricing)); werr != nil {
			return werr
		}
	}
}

// parseLine splits a line into an absolute path and its prompt.
func parseLine(line string) (path, question string, err error) {
	raw := strings.TrimSpace(line)
	if i := strings.Index(line, promptSeparator); i >= 0 {
		question = strings.TrimSpace(line[:i])
		raw = strings.TrimSpace(line[i+len(promptSeparator):])
		if raw == "" {
			return "", "", fmt.Errorf("no path after %q", strings.TrimSpace(promptSeparator))
		}
	}

	path, err = resolvePath(raw)
	if err != nil {
		return "", "", err
	}
	if question == "" {
		question = askdir.PromptFor(path)
	}
	return path, question, nil
}

// resolvePath expands a path the way a shell would, so quoted paths pasted
// from a terminal work. Anything that is not a single shell word, such as an
// unquoted path with spaces, is taken literally.
func resolvePath(raw string) (string, error) {
	if fields, err := shell.Fields(raw, nil); err == nil && len(fields) == 1 {
		return filepath.Abs(fields[0])
	}
	return askdir.ExpandPath(raw)
}
