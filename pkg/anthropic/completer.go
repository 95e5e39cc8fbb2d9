package anthropic

import (
	"context"

	"github.com/sells-group/compete-cli/internal/llm"
)

const defaultMaxTokens = 2048

// Completer adapts Client to the llm.Client collaborator interface used by
// the extraction, discovery, and synthesis stages.
type Completer struct {
	client Client
	model  string
}

// NewCompleter wires an Anthropic client as the pipeline's language model.
// An empty API key yields a completer that fails with llm.ErrNoCredentials,
// so the degraded paths trigger without a live client.
func NewCompleter(apiKey, model string) *Completer {
	var c Client
	if apiKey != "" {
		c = NewClient(apiKey)
	}
	return &Completer{client: c, model: model}
}

// NewCompleterWithClient wraps an existing client (used by tests).
func NewCompleterWithClient(client Client, model string) *Completer {
	return &Completer{client: client, model: model}
}

func (c *Completer) Complete(ctx context.Context, req llm.Request) (string, error) {
	if c.client == nil {
		return "", llm.ErrNoCredentials
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	msgReq := MessageRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  []Message{{Role: "user", Content: req.Prompt}},
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		msgReq.Temperature = &temp
	}

	resp, err := c.client.CreateMessage(ctx, msgReq)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
