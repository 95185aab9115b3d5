package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sweetpotato0/blackwell/llm"
	"github.com/sweetpotato0/blackwell/message"
)

const geminiAPIURL = "https://generativelanguage.googleapis.com/v1/models"

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "gemini-2.5-flash",
		MaxTokens:   8192,
		Temperature: 0.1,
	}
}

// Provider implements the llm.Client interface for Google Gemini. Tool calls
// are not supported on this provider; use it for the fast/pro variants only.
type Provider struct {
	config *Config
	client *http.Client
}

// New creates a new Gemini provider
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Model == "" {
		config.Model = "gemini-2.5-flash"
	}

	return &Provider{
		config: config,
		client: &http.Client{},
	}
}

// geminiMessage represents a message in Gemini API format
type geminiMessage struct {
	Role  string `json:"role"`
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

type geminiRequest struct {
	Contents    []geminiMessage `json:"contents"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *geminiError `json:"error,omitempty"`
}

type geminiError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Generate implements llm.Client
func (p *Provider) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	if p.config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key not configured")
	}
	if req == nil {
		return nil, fmt.Errorf("generate request cannot be nil")
	}
	if len(req.Tools) > 0 {
		return nil, fmt.Errorf("gemini provider does not support tool calls")
	}

	geminiMessages := make([]geminiMessage, len(req.Messages))
	for i, msg := range req.Messages {
		role := string(msg.Role)
		// The v1 API only knows user/model roles.
		switch msg.Role {
		case message.RoleAssistant:
			role = "model"
		case message.RoleSystem, message.RoleTool:
			role = "user"
		}
		geminiMessages[i] = geminiMessage{
			Role: role,
			Parts: []struct {
				Text string `json:"text"`
			}{
				{Text: msg.Text()},
			},
		}
	}

	payload := geminiRequest{
		Contents:    geminiMessages,
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", geminiAPIURL, p.config.Model, p.config.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &llm.GenerationError{Provider: "gemini", Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &llm.GenerationError{
			Provider: "gemini",
			Err:      fmt.Errorf("status %d: %s", httpResp.StatusCode, string(respBody)),
		}
	}

	var resp geminiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return nil, &llm.GenerationError{
			Provider: "gemini",
			Err:      fmt.Errorf("code %d: %s", resp.Error.Code, resp.Error.Message),
		}
	}

	if len(resp.Candidates) == 0 {
		return nil, &llm.GenerationError{Provider: "gemini", Err: fmt.Errorf("no candidates in response")}
	}
	if len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &llm.GenerationError{Provider: "gemini", Err: fmt.Errorf("no content parts in candidate")}
	}

	msg := message.NewMessage(message.RoleAssistant, resp.Candidates[0].Content.Parts[0].Text)
	return &llm.GenerateResponse{Message: msg}, nil
}
