// Package generator adapts an eino chat model to the narrow text-generation
// surface the retrieval pipeline consumes: one system prompt, one user
// prompt, one string back.
package generator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatGenerator wraps a chat model and exposes single-shot prompt-pair
// generation. It is stateless and safe for concurrent use.
type ChatGenerator struct {
	// model is the underlying chat backend.
	model model.ToolCallingChatModel
}

// New wraps the given chat model.
func New(m model.ToolCallingChatModel) (*ChatGenerator, error) {
	if m == nil {
		return nil, fmt.Errorf("generator: chat model must not be nil")
	}
	return &ChatGenerator{model: m}, nil
}

// Generate sends the prompt pair to the model and returns the response text
// verbatim. Callers bound the call with a context deadline.
func (g *ChatGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	}
	resp, err := g.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("generator: generate failed: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("generator: model returned nil response")
	}
	return resp.Content, nil
}
