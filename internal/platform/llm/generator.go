// Package llm wraps the third-party text-generation APIs used to draft care
// plans. Credentials are injected at construction; a client built without one
// still constructs and reports ErrMissingAPIKey when asked to generate.
package llm

import (
	"context"
	"errors"
)

// ErrMissingAPIKey is returned by Generate when no credential was configured.
var ErrMissingAPIKey = errors.New("API key is not configured")

// Request is a single-turn generation request.
type Request struct {
	Model     string
	MaxTokens int
	Prompt    string
}

// Completion is the outcome of a successful call. HasContent is false when the
// provider answered without any content block.
type Completion struct {
	Text       string
	HasContent bool
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (Completion, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (Completion, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Completion, error) {
	return f(ctx, req)
}

// Options configures a provider client.
type Options struct {
	APIKey  string
	BaseURL string
}

// missingKeyError names the unset variable and matches ErrMissingAPIKey.
type missingKeyError struct{ envVar string }

func (e *missingKeyError) Error() string { return e.envVar + " is not configured." }

func (e *missingKeyError) Is(target error) bool { return target == ErrMissingAPIKey }

func missingKey(envVar string) error {
	return &missingKeyError{envVar: envVar}
}
