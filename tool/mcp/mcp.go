// Package mcp exposes tools from an MCP server through the tool.Provider
// interface, so external clinical services (drug interaction checkers,
// terminology servers) can extend a research sub-agent's toolset without code
// changes.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/blackwell/tool"
)

// ErrClosed is returned after the provider has been closed.
var ErrClosed = errors.New("mcp provider closed")

// Config describes how to reach the MCP server. Exactly one of Endpoint
// (streamable HTTP) or Command (stdio subprocess) must be set.
type Config struct {
	Endpoint string
	Command  string
	Args     []string
}

// Provider adapts a connected MCP session to tool.Provider.
type Provider struct {
	client  *sdkmcp.Client
	session *sdkmcp.ClientSession
}

// Connect dials the MCP server and verifies it lists tools. The caller owns
// the provider and must Close it.
func Connect(ctx context.Context, cfg Config) (*Provider, error) {
	var transport sdkmcp.Transport
	switch {
	case strings.TrimSpace(cfg.Endpoint) != "":
		transport = &sdkmcp.StreamableClientTransport{Endpoint: cfg.Endpoint}
	case strings.TrimSpace(cfg.Command) != "":
		transport = &sdkmcp.CommandTransport{Command: exec.Command(cfg.Command, cfg.Args...)}
	default:
		return nil, errors.New("mcp: either endpoint or command is required")
	}

	impl := &sdkmcp.Implementation{Name: "blackwell", Version: "1.0.0"}
	client := sdkmcp.NewClient(impl, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: connect failed: %w", err)
	}

	p := &Provider{client: client, session: session}
	if _, err := p.Tools(ctx); err != nil {
		_ = session.Close()
		return nil, err
	}
	return p, nil
}

// Tools lists the server's tools as local registrations. Each handler proxies
// its call back to the server.
func (p *Provider) Tools(ctx context.Context) ([]*tool.Tool, error) {
	if p == nil || p.session == nil {
		return nil, ErrClosed
	}

	var (
		cursor string
		defs   []*sdkmcp.Tool
	)
	for {
		res, err := p.session.ListTools(ctx, &sdkmcp.ListToolsParams{Cursor: cursor})
		if err != nil {
			return nil, fmt.Errorf("mcp: list tools: %w", err)
		}
		defs = append(defs, res.Tools...)
		if res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}

	tools := make([]*tool.Tool, 0, len(defs))
	for _, def := range defs {
		if def == nil {
			continue
		}
		name := def.Name
		tools = append(tools, &tool.Tool{
			Name:        name,
			Description: def.Description,
			Parameters:  parametersFromSchema(def.InputSchema),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				return p.call(ctx, name, args)
			},
		})
	}
	return tools, nil
}

// Register lists the server's tools and adds them to the registry, replacing
// any local tool with the same name.
func (p *Provider) Register(ctx context.Context, registry *tool.Registry) error {
	tools, err := p.Tools(ctx)
	if err != nil {
		return err
	}
	for _, t := range tools {
		if err := registry.Upsert(t); err != nil {
			return fmt.Errorf("mcp: register tool %s: %w", t.Name, err)
		}
	}
	return nil
}

// Close terminates the session.
func (p *Provider) Close() error {
	if p == nil || p.session == nil {
		return nil
	}
	session := p.session
	p.session = nil
	return session.Close()
}

func (p *Provider) call(ctx context.Context, name string, args map[string]any) (string, error) {
	if p.session == nil {
		return "", ErrClosed
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := p.session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", err
	}
	text := flattenContent(result.Content)
	if result.IsError {
		if text == "" {
			text = "tool returned an error without a message"
		}
		return "", fmt.Errorf("mcp tool %s: %s", name, text)
	}
	return text, nil
}

func flattenContent(content []sdkmcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case *sdkmcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := c.MarshalJSON(); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// parametersFromSchema translates the tool's JSON schema into flat parameter
// definitions. Only top-level object properties are mapped; nested schemas
// pass through as type object.
func parametersFromSchema(schema any) []tool.Parameter {
	m := schemaMap(schema)
	if m == nil {
		return nil
	}
	props, ok := m["properties"].(map[string]any)
	if !ok || len(props) == 0 {
		return nil
	}

	required := map[string]bool{}
	if list, ok := m["required"].([]any); ok {
		for _, item := range list {
			if name, ok := item.(string); ok {
				required[name] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]tool.Parameter, 0, len(names))
	for _, name := range names {
		param := tool.Parameter{Name: name, Type: "string", Required: required[name]}
		if spec, ok := props[name].(map[string]any); ok {
			if t, ok := spec["type"].(string); ok && t != "" {
				param.Type = t
			}
			if d, ok := spec["description"].(string); ok {
				param.Description = d
			}
			if def, ok := spec["default"]; ok {
				param.Default = def
			}
			if enum, ok := spec["enum"].([]any); ok {
				for _, e := range enum {
					if s, ok := e.(string); ok {
						param.Enum = append(param.Enum, s)
					}
				}
			}
		}
		params = append(params, param)
	}
	return params
}

// schemaMap normalizes the SDK's schema value, which may surface as a decoded
// map or as raw JSON depending on the transport.
func schemaMap(v any) map[string]any {
	switch value := v.(type) {
	case map[string]any:
		return value
	case json.RawMessage:
		var out map[string]any
		if err := json.Unmarshal(value, &out); err != nil {
			return nil
		}
		return out
	case []byte:
		var out map[string]any
		if err := json.Unmarshal(value, &out); err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}
