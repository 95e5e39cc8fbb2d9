// Package llm defines the language-model collaborator interface consumed by
// the extraction, discovery, and synthesis stages. Concrete providers live
// under pkg/.
package llm

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrNoCredentials is returned when no API key is configured. There is no
// fallback for structured extraction or synthesis, so callers surface this
// as a named error rather than degrading.
var ErrNoCredentials = eris.New("llm: no credentials configured")

// Request is a single-turn completion request. Valid responses are plain
// text that may contain a JSON document, optionally wrapped in a fenced
// code block.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature float64
}

// Client is the language-model collaborator: single-turn, no conversation
// state.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
