// Package research implements the bounded tool-use sub-agents that gather
// evidence for the evaluation pipeline. A sub-agent receives one research
// question, runs an explicit tool-dispatch loop against its registry until the
// model produces a final answer or the budget runs out, and returns the full
// transcript plus the synthesized report.
package research

import (
	"context"
	"fmt"

	"github.com/sweetpotato0/blackwell/llm"
	"github.com/sweetpotato0/blackwell/message"
	"github.com/sweetpotato0/blackwell/pkg/logging"
	"github.com/sweetpotato0/blackwell/pkg/telemetry"
	"github.com/sweetpotato0/blackwell/tool"
)

// Result is the outcome of one research call.
type Result struct {
	// Transcript holds every message exchanged, including tool calls and
	// observations. The orchestrator inspects its length to detect a
	// sub-agent that answered without doing any research.
	Transcript []*message.Message
	// Report is the text of the final assistant turn.
	Report string
	// ToolCalls counts the tool invocations actually executed.
	ToolCalls int
}

// SubAgent runs the tool-dispatch loop for one research flavor.
type SubAgent struct {
	name     string
	client   llm.Client
	registry *tool.Registry
	system   string
	budget   int
}

// NewSubAgent creates a sub-agent. budget caps the number of tool invocations
// per Research call.
func NewSubAgent(name string, client llm.Client, registry *tool.Registry, systemPrompt string, budget int) *SubAgent {
	if budget <= 0 {
		budget = 10
	}
	return &SubAgent{
		name:     name,
		client:   client,
		registry: registry,
		system:   systemPrompt,
		budget:   budget,
	}
}

// Name returns the sub-agent's identifier.
func (a *SubAgent) Name() string { return a.name }

// Research answers one question. Tool execution errors never abort the loop;
// they are fed back to the model as observations so it can adjust course.
func (a *SubAgent) Research(ctx context.Context, question string) (res *Result, err error) {
	ctx, span := telemetry.Tracer("research").Start(ctx, "research."+a.name)
	defer func() { telemetry.End(span, err) }()

	log := logging.WithComponent("research").With("agent", a.name)

	messages := []*message.Message{
		message.NewMessage(message.RoleSystem, a.system),
		message.NewMessage(message.RoleUser, question),
	}
	schemas := a.registry.ToJSONSchemas()
	calls := 0

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req := &llm.GenerateRequest{Messages: messages}
		if calls < a.budget {
			req.Tools = schemas
		}

		resp, err := a.client.Generate(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("sub-agent %s: %w", a.name, err)
		}
		messages = append(messages, resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			return &Result{
				Transcript: messages,
				Report:     resp.Message.Text(),
				ToolCalls:  calls,
			}, nil
		}

		for _, call := range resp.Message.ToolCalls {
			calls++
			out, err := a.registry.Execute(ctx, call.Name, call.Args)
			if err != nil {
				log.Warn("tool call failed", "tool", call.Name, "error", err)
				out = fmt.Sprintf("Tool %s failed: %v. Adjust your approach or synthesize with what you have.", call.Name, err)
			}
			messages = append(messages, message.NewToolResponseMessage(call.ID, out))
		}

		if calls >= a.budget {
			log.Info("tool budget exhausted", "calls", calls, "budget", a.budget)
			messages = append(messages, message.NewMessage(message.RoleUser,
				"Your tool budget is exhausted. Synthesize your final research summary now from the evidence gathered so far, including the **References:** section."))
		}
	}
}
