// Package dispatch turns created files into vision requests and renders the
// answers to a console.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	askdir "github.com/Paranoid-AF/askdir"
	"github.com/Paranoid-AF/askdir/generate"
)

// Asker sends one vision request and returns the model's answer.
type Asker interface {
	Ask(ctx context.Context, in generate.Input) (*askdir.Answer, error)
}

// Config configures a Dispatcher.
type Config struct {
	// Model names the model in console output.
	Model    string
	Template *generate.Template
	Pricing  askdir.Pricing
	// Out receives the rendered answers. Defaults to os.Stdout.
	Out io.Writer
	// NoClear keeps earlier output on screen when Out is a terminal.
	NoClear bool
	Logger  *slog.Logger
}

// DispatchError reports a file that could not be answered.
type DispatchError struct {
	Path string
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.Path, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Dispatcher sends files to an Asker one at a time.
type Dispatcher struct {
	client   Asker
	model    string
	template *generate.Template
	pricing  askdir.Pricing
	console  *console
	logger   *slog.Logger
}

// New creates a Dispatcher that sends requests through client.
func New(client Asker, cfg Config) *Dispatcher {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Template == nil {
		cfg.Template = generate.NewTemplate("")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		client:   client,
		model:    cfg.Model,
		template: cfg.Template,
		pricing:  cfg.Pricing,
		console:  newConsole(cfg.Out, !cfg.NoClear),
		logger:   cfg.Logger.With("component", "dispatcher"),
	}
}

// NewFromConfig builds a Dispatcher backed by an HTTP client configured from
// cfg and the environment. Zero fields of opts are filled from cfg.
func NewFromConfig(cfg *askdir.Config, opts Config) *Dispatcher {
	client := generate.NewClient(generate.ClientConfig{
		BaseURL:   askdir.ResolveBaseURL(cfg),
		APIKey:    askdir.ResolveAPIKey(cfg),
		Model:     askdir.ResolveModel(cfg),
		MaxTokens: cfg.Generation.MaxTokens,
		Detail:    cfg.Generation.Detail,
		Timeout:   askdir.RequestTimeout(cfg),
	})
	if opts.Model == "" {
		opts.Model = client.Model()
	}
	if opts.Template == nil {
		opts.Template = generate.NewTemplate(askdir.LoadPrompt())
	}
	if opts.Pricing == (askdir.Pricing{}) {
		opts.Pricing = cfg.Pricing
	}
	return New(client, opts)
}

// Dispatch reads the file at path, asks prompt about it and prints the answer.
// Failures are printed as a single diagnostic line and returned as a
// *DispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, path, prompt string) (*askdir.Answer, error) {
	id := uuid.NewString()
	logger := d.logger.With("dispatch_id", id, "path", path)
	start := time.Now()

	d.console.sending(path, d.model)

	answer, err := d.ask(ctx, path, prompt)
	if err != nil {
		logger.Warn("dispatch failed", "error", err, "elapsed", time.Since(start))
		d.console.failure(d.model, err)
		return nil, &DispatchError{Path: path, Err: err}
	}

	cost := d.pricing.Cost(answer.Usage)
	logger.Info("answered",
		"prompt", prompt,
		"prompt_tokens", answer.Usage.PromptTokens,
		"completion_tokens", answer.Usage.CompletionTokens,
		"cost", cost,
		"elapsed", time.Since(start),
	)
	d.console.answer(answer, cost)
	return answer, nil
}

func (d *Dispatcher) ask(ctx context.Context, path, prompt string) (*askdir.Answer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	in := generate.Input{
		Text:     d.template.Render(generate.PromptData{Prompt: prompt, Path: path}),
		ImageURL: generate.DataURI(generate.ImageTag(path), data),
	}
	d.logger.Debug("request", "text", in.Text, "bytes", len(data))

	return d.client.Ask(ctx, in)
}

// Run dispatches file events from events one at a time until ctx is done or
// events is closed. Directory events are skipped. A request that has started
// is allowed to finish after ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, events <-chan askdir.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			if ev.IsDir {
				d.logger.Debug("skipping directory", "path", ev.Path)
				continue
			}
			// Errors are already reported on the console and in the log.
			_, _ = d.Dispatch(context.WithoutCancel(ctx), ev.Path, ev.Prompt())
		}
	}
}
