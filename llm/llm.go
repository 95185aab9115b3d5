package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sweetpotato0/blackwell/message"
)

// Client defines the interface for LLM providers
type Client interface {
	// Generate generates a response from the LLM
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest bundles inputs for a non-streaming LLM invocation.
type GenerateRequest struct {
	Messages []*message.Message
	Tools    []map[string]any
}

// GenerateResponse captures the LLM reply for non-streaming calls.
type GenerateResponse struct {
	Message *message.Message
}

// GenerationError wraps a transient provider failure. Callers that loop or
// retry should test for it with errors.As.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsGenerationError reports whether err is (or wraps) a GenerationError.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}

// Pool holds the named generator variants used by the pipeline. Fast handles
// cheap single-shot calls, Pro the long-form synthesis, Agentic the tool-use
// loops. Missing variants fall back to Fast.
type Pool struct {
	Fast    Client
	Pro     Client
	Agentic Client
}

// ForSynthesis returns the high-quality variant.
func (p Pool) ForSynthesis() Client {
	if p.Pro != nil {
		return p.Pro
	}
	return p.Fast
}

// ForTools returns the variant tuned for tool-calling loops.
func (p Pool) ForTools() Client {
	if p.Agentic != nil {
		return p.Agentic
	}
	return p.Fast
}

// Generate is a convenience wrapper that sends role-tagged messages with no
// tools and returns the reply text.
func Generate(ctx context.Context, c Client, msgs ...*message.Message) (string, error) {
	if c == nil {
		return "", fmt.Errorf("llm client is nil")
	}
	resp, err := c.Generate(ctx, &GenerateRequest{Messages: msgs})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Message == nil {
		return "", &GenerationError{Provider: "unknown", Err: fmt.Errorf("empty response")}
	}
	return resp.Message.Text(), nil
}
