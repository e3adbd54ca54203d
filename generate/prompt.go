package generate

import (
	"log/slog"
	"strings"
	"text/template"

	defaults "github.com/Paranoid-AF/askdir/default"
)

// PromptData holds the data passed to the instruction template.
type PromptData struct {
	// Prompt is the question derived from the directory name.
	Prompt string
	// Path is the file being asked about.
	Path string
}

// Template renders the text part of a request.
type Template struct {
	tmpl *template.Template
}

// NewTemplate parses src, falling back to the built-in default when src is
// empty or does not parse.
func NewTemplate(src string) *Template {
	if strings.TrimSpace(src) == "" {
		src = defaults.DefaultPrompt
	}
	t, err := template.New("prompt").Parse(src)
	if err != nil {
		slog.Warn("failed to parse prompt template, falling back to default", "error", err)
		t = template.Must(template.New("prompt").Parse(defaults.DefaultPrompt))
	}
	return &Template{tmpl: t}
}

// Render returns the instruction text with the prompt inserted verbatim.
func (t *Template) Render(data PromptData) string {
	var buf strings.Builder
	if err := t.tmpl.Execute(&buf, data); err != nil {
		slog.Warn("failed to execute prompt template, falling back to default", "error", err)
		buf.Reset()
		template.Must(template.New("prompt").Parse(defaults.DefaultPrompt)).Execute(&buf, data)
	}
	return strings.TrimRight(buf.String(), " \t\n")
}
