package llm

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	apiKey string
}

// NewAnthropicClient builds a client for the Messages API. SDK-level retries
// are disabled: a failed call is recorded once and never replayed.
func NewAnthropicClient(opts Options) *AnthropicClient {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(reqOpts...),
		apiKey: opts.APIKey,
	}
}

// Generate sends the prompt as a single user message and returns the text of
// the first content block.
func (c *AnthropicClient) Generate(ctx context.Context, req Request) (Completion, error) {
	if c.apiKey == "" {
		return Completion{}, missingKey("ANTHROPIC_API_KEY")
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return Completion{}, err
	}
	if len(msg.Content) == 0 {
		return Completion{}, nil
	}
	return Completion{Text: msg.Content[0].Text, HasContent: true}, nil
}
