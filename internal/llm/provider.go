// Package llm adapts text generation providers (OpenAI-compatible chat, Anthropic Messages)
// to the narrow interface used by query planning and answer generation.
package llm

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by constructors when no provider is configured.
var ErrNotConfigured = errors.New("generation provider not configured")

// Request is a single-turn generation request.
type Request struct {
	System string
	Prompt string
	// JSON asks the provider for a JSON object response when it supports it.
	JSON        bool
	MaxTokens   int
	Temperature *float32
}

// Provider generates text. A nil Provider means generation is not configured.
type Provider interface {
	Name() string
	GenerateText(ctx context.Context, req Request) (string, error)
	// StreamText calls onFragment for each incremental fragment. Returning an error from
	// onFragment aborts the stream with that error.
	StreamText(ctx context.Context, req Request, onFragment func(string) error) error
}

// Float32 returns a pointer to v.
func Float32(v float32) *float32 { return &v }
