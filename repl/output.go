package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	askdir "github.com/Paranoid-AF/askdir"
	"github.com/Paranoid-AF/askdir/dispatch"
	"github.com/Paranoid-AF/askdir/generate"
)

// transcript is one or more exchanges. Each record is written as a single-element
// array of tables, so appended records still form one valid TOML document.
type transcript struct {
	Exchange []exchange `toml:"exchange"`
}

type exchange struct {
	Request request       `toml:"request"`
	Answer  *answerRecord `toml:"answer,omitempty"`
	Error   *askdir.Error `toml:"error,omitempty"`
}

type request struct {
	Timestamp time.Time `toml:"timestamp"`
	Path      string    `toml:"path"`
	Prompt    string    `toml:"prompt"`
}

type answerRecord struct {
	Content string       `toml:"content"`
	Model   string       `toml:"model,omitempty"`
	Cost    float64      `toml:"cost"`
	Usage   askdir.Usage `toml:"usage"`
}

// writeEntry writes a single TOML-formatted exchange to w.
func writeEntry(w io.Writer, ex exchange) error {
	fmt.Fprintf(w, "# %s\n\n", strings.Repeat("═", 60))
	if err := toml.NewEncoder(w).Encode(transcript{Exchange: []exchange{ex}}); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

func newExchange(path, prompt string, answer *askdir.Answer, err error, pricing askdir.Pricing) exchange {
	ex := exchange{Request: request{Timestamp: time.Now().Truncate(time.Second), Path: path, Prompt: prompt}}
	if err != nil {
		ex.Error = errorRecord(err)
		return ex
	}
	ex.Answer = &answerRecord{
		Content: answer.Content,
		Model:   answer.Model,
		Cost:    pricing.Cost(answer.Usage),
		Usage:   answer.Usage,
	}
	return ex
}

// errorRecord classifies err into a machine-readable code.
func errorRecord(err error) *askdir.Error {
	var dispatchErr *dispatch.DispatchError
	if errors.As(err, &dispatchErr) {
		err = dispatchErr.Err
	}

	var (
		pathErr   *fs.PathError
		apiErr    *generate.APIError
		malformed *generate.MalformedResponseError
	)
	code := "request_error"
	switch {
	case errors.As(err, &pathErr):
		code = "read_error"
	case errors.As(err, &apiErr):
		code = "api_error"
	case errors.As(err, &malformed):
		code = "malformed_response"
	}
	return &askdir.Error{Code: code, Message: err.Error()}
}
