package llm

import "fmt"

// New returns the Generator for the named provider ("anthropic" or "openai").
func New(provider string, opts Options) (Generator, error) {
	switch provider {
	case "anthropic":
		return NewAnthropicClient(opts), nil
	case "openai":
		return NewOpenAIClient(opts), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", provider)
	}
}
