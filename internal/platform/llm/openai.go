package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient calls the OpenAI chat completion API.
type OpenAIClient struct {
	client *openai.Client
	apiKey string
}

func NewOpenAIClient(opts Options) *OpenAIClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		apiKey: opts.APIKey,
	}
}

// Generate sends the prompt as a single user message and returns the content
// of the first choice.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (Completion, error) {
	if c.apiKey == "" {
		return Completion{}, missingKey("OPENAI_API_KEY")
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	})
	if err != nil {
		return Completion{}, err
	}
	if len(resp.Choices) == 0 {
		return Completion{}, nil
	}
	return Completion{Text: resp.Choices[0].Message.Content, HasContent: true}, nil
}
