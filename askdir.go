// Package askdir defines the shared types for askdir.
// A new file dropped into a directory becomes a question for a vision model;
// the directory's name is the question.
package askdir

import "path/filepath"

// Event is a creation observed under the watch root.
type Event struct {
	// Path is the absolute path of the created entry.
	Path string `toml:"path"`
	// IsDir is true when the created entry is a directory.
	IsDir bool `toml:"is_dir,omitempty"`
}

// Prompt returns the base name of the event's parent directory.
// It is used verbatim as the question sent with the file.
func (e Event) Prompt() string {
	return PromptFor(e.Path)
}

// PromptFor derives the prompt for a file path.
func PromptFor(path string) string {
	return filepath.Base(filepath.Dir(path))
}

// Usage holds token counts reported by the API.
type Usage struct {
	PromptTokens     int `toml:"prompt_tokens"`
	CompletionTokens int `toml:"completion_tokens"`
}

// Answer is the model's reply to one dispatched file.
type Answer struct {
	// Content is the text of the first choice.
	Content string `toml:"content"`
	// Model is the model name echoed by the API, if any.
	Model string `toml:"model,omitempty"`
	Usage Usage  `toml:"usage"`
}

// Pricing holds per-thousand-token unit prices in dollars.
type Pricing struct {
	PromptPer1K     float64 `toml:"prompt_per_1k"`
	CompletionPer1K float64 `toml:"completion_per_1k"`
}

// Cost estimates the dollar cost of a request from its usage.
func (p Pricing) Cost(u Usage) float64 {
	return float64(u.CompletionTokens)*p.CompletionPer1K/1000 +
		float64(u.PromptTokens)*p.PromptPer1K/1000
}

// Error describes a failed dispatch in machine-readable form.
type Error struct {
	// Code is a short identifier (e.g. "read_error", "api_error", "malformed_response").
	Code string `toml:"code"`
	// Message is a human-readable error description.
	Message string `toml:"message"`
}
