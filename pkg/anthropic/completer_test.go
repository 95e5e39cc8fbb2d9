package anthropic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compete-cli/internal/llm"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MessageResponse), args.Error(1)
}

func TestCompleter_NoCredentials(t *testing.T) {
	c := NewCompleter("", "claude-sonnet-4-5-20250929")

	_, err := c.Complete(context.Background(), llm.Request{Prompt: "hello"})
	assert.ErrorIs(t, err, llm.ErrNoCredentials)
}

func TestCompleter_PassesRequestThrough(t *testing.T) {
	m := &mockClient{}
	m.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req MessageRequest) bool {
		return req.Model == "claude-sonnet-4-5-20250929" &&
			req.System == "be terse" &&
			req.MaxTokens == defaultMaxTokens &&
			req.Temperature != nil && *req.Temperature == 0.1 &&
			len(req.Messages) == 1 && req.Messages[0].Content == "hello"
	})).Return(&MessageResponse{
		Content: []ContentBlock{{Type: "text", Text: "hi "}, {Type: "text", Text: "there"}},
	}, nil)

	c := NewCompleterWithClient(m, "claude-sonnet-4-5-20250929")

	text, err := c.Complete(context.Background(), llm.Request{
		System:      "be terse",
		Prompt:      "hello",
		Temperature: 0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", text)
	m.AssertExpectations(t)
}

func TestCompleter_CustomMaxTokens(t *testing.T) {
	m := &mockClient{}
	m.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req MessageRequest) bool {
		return req.MaxTokens == 512 && req.Temperature == nil
	})).Return(&MessageResponse{Content: []ContentBlock{{Type: "text", Text: "ok"}}}, nil)

	c := NewCompleterWithClient(m, "claude-sonnet-4-5-20250929")

	text, err := c.Complete(context.Background(), llm.Request{Prompt: "p", MaxTokens: 512})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}
