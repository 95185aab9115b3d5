package research

import (
	"context"
	"strings"
	"testing"

	"github.com/sweetpotato0/blackwell/llm"
	"github.com/sweetpotato0/blackwell/message"
	"github.com/sweetpotato0/blackwell/tool"
)

// scriptedClient replays a fixed sequence of responses.
type scriptedClient struct {
	responses []*message.Message
	requests  []*llm.GenerateRequest
}

func (c *scriptedClient) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	c.requests = append(c.requests, req)
	if len(c.responses) == 0 {
		return &llm.GenerateResponse{Message: message.NewMessage(message.RoleAssistant, "out of script")}, nil
	}
	next := c.responses[0]
	c.responses = c.responses[1:]
	return &llm.GenerateResponse{Message: next}, nil
}

func searchRegistry(t *testing.T, calls *[]map[string]any) *tool.Registry {
	t.Helper()
	registry := tool.NewRegistry()
	err := registry.Register(&tool.Tool{
		Name:        "retrieve_documents",
		Description: "search",
		Parameters: []tool.Parameter{
			{Name: "query", Type: "string", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			*calls = append(*calls, args)
			return "[Document 1 | source: guide.pdf]\nmigraine evidence", nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	return registry
}

func TestResearchToolLoop(t *testing.T) {
	var toolCalls []map[string]any
	registry := searchRegistry(t, &toolCalls)

	client := &scriptedClient{responses: []*message.Message{
		message.NewToolCallMessage([]message.ToolCall{
			{ID: "c1", Name: "retrieve_documents", Args: map[string]any{"query": "migraine"}},
		}),
		message.NewMessage(message.RoleAssistant, "**Research Summary**\nFindings.\n\n**References:**\n* guide.pdf"),
	}}

	agent := NewSubAgent("knowledge", client, registry, "system prompt", 15)
	result, err := agent.Research(context.Background(), "what causes bilateral headaches?")
	if err != nil {
		t.Fatalf("Research() error: %v", err)
	}

	if result.ToolCalls != 1 {
		t.Errorf("ToolCalls = %d, want 1", result.ToolCalls)
	}
	if len(toolCalls) != 1 || toolCalls[0]["query"] != "migraine" {
		t.Errorf("tool invocations = %v", toolCalls)
	}
	if !strings.Contains(result.Report, "**References:**") {
		t.Errorf("Report = %q", result.Report)
	}
	// system, user, tool-call, tool-response, final answer
	if len(result.Transcript) != 5 {
		t.Errorf("Transcript length = %d, want 5", len(result.Transcript))
	}

	// First request must advertise the tools, so the model can call them.
	if len(client.requests[0].Tools) != 1 {
		t.Errorf("first request carried %d tools, want 1", len(client.requests[0].Tools))
	}
}

func TestResearchToolFailureBecomesObservation(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(&tool.Tool{
		Name: "retrieve_documents",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", context.DeadlineExceeded
		},
	})

	client := &scriptedClient{responses: []*message.Message{
		message.NewToolCallMessage([]message.ToolCall{
			{ID: "c1", Name: "retrieve_documents", Args: map[string]any{}},
		}),
		message.NewMessage(message.RoleAssistant, "No evidence was retrievable."),
	}}

	agent := NewSubAgent("knowledge", client, registry, "system", 15)
	result, err := agent.Research(context.Background(), "question")
	if err != nil {
		t.Fatalf("Research() should degrade tool failures, got error: %v", err)
	}

	var observation string
	for _, msg := range result.Transcript {
		if msg.Role == message.RoleTool {
			observation = msg.Text()
		}
	}
	if !strings.Contains(observation, "failed") {
		t.Errorf("tool failure observation = %q", observation)
	}
}

func TestResearchBudgetExhaustion(t *testing.T) {
	var toolCalls []map[string]any
	registry := searchRegistry(t, &toolCalls)

	// The model keeps asking for tools; with budget 2 the agent must force a
	// final synthesis after the second call.
	client := &scriptedClient{responses: []*message.Message{
		message.NewToolCallMessage([]message.ToolCall{{ID: "c1", Name: "retrieve_documents", Args: map[string]any{"query": "a"}}}),
		message.NewToolCallMessage([]message.ToolCall{{ID: "c2", Name: "retrieve_documents", Args: map[string]any{"query": "b"}}}),
		message.NewMessage(message.RoleAssistant, "Forced synthesis.\n\n**References:**\n* guide.pdf"),
	}}

	agent := NewSubAgent("knowledge", client, registry, "system", 2)
	result, err := agent.Research(context.Background(), "question")
	if err != nil {
		t.Fatalf("Research() error: %v", err)
	}
	if result.ToolCalls != 2 {
		t.Errorf("ToolCalls = %d, want 2", result.ToolCalls)
	}

	// The final request must not offer tools once the budget is spent.
	last := client.requests[len(client.requests)-1]
	if len(last.Tools) != 0 {
		t.Errorf("final request still advertised %d tools", len(last.Tools))
	}
	var forced bool
	for _, msg := range last.Messages {
		if msg.Role == message.RoleUser && strings.Contains(msg.Text(), "budget is exhausted") {
			forced = true
		}
	}
	if !forced {
		t.Error("missing forced-synthesis instruction after budget exhaustion")
	}
}

func TestResearchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agent := NewSubAgent("knowledge", &scriptedClient{}, tool.NewRegistry(), "system", 5)
	if _, err := agent.Research(ctx, "question"); err == nil {
		t.Fatal("Research() with cancelled context should fail")
	}
}
