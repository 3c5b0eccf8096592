// Package agent implements the dispatchable-agent protocol and
// registry (spec.md §4.8): every agent exposes a name, description,
// and a single Invoke entrypoint, and the registry exposes a
// lazily-constructed call_agent tool so one agent can delegate to
// another without the caller holding a concrete reference.
package agent

import (
	"context"
	"fmt"

	"github.com/CheKilo/bot-agent/pkg/protocol"
	"github.com/CheKilo/bot-agent/pkg/registry"
	"github.com/CheKilo/bot-agent/pkg/tools"
)

// Protocol is the contract every dispatchable agent implements.
type Protocol interface {
	AgentName() string
	AgentDescription() string
	Invoke(ctx context.Context, msg protocol.AgentMessage) protocol.AgentResponse
}

// Registry is a name -> agent map preserving registration order.
// CallAgentTool builds the shared call_agent tool on demand rather
// than eagerly at construction time, since it is only needed by
// agents whose toolkit includes delegation.
type Registry struct {
	reg *registry.BaseRegistry[Protocol]
}

func NewRegistry() *Registry {
	return &Registry{reg: registry.NewBaseRegistry[Protocol]()}
}

// Register adds an agent under its own AgentName().
func (r *Registry) Register(a Protocol) error {
	return r.reg.Register(a.AgentName(), a)
}

// Get looks up an agent by name.
func (r *Registry) Get(name string) (Protocol, bool) {
	return r.reg.Get(name)
}

// List returns every registered agent in registration order.
func (r *Registry) List() []Protocol {
	return r.reg.List()
}

// Names returns every registered agent name in registration order.
func (r *Registry) Names() []string {
	return r.reg.Names()
}

// Describe renders "- name: description" for every registered agent, one
// per line, for embedding in a system prompt.
func (r *Registry) Describe() string {
	out := ""
	for _, a := range r.List() {
		out += fmt.Sprintf("- %s: %s\n", a.AgentName(), a.AgentDescription())
	}
	return out
}

// CallAgentTool builds a new call_agent tool on every call, so each
// caller gets its own extraMetadata closure. extraMetadata is merged into every dispatch's metadata
// in addition to whatever the caller passes as "metadata" (spec.md
// §4.8: "any additional named keyword arguments ... are merged into
// metadata").
func (r *Registry) CallAgentTool(extraMetadata func() map[string]any) tools.Tool {
	return tools.New(
		"call_agent",
		"Calls another registered agent by name and returns its response. Use the exact agent_name from the available agents list.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agent_name": map[string]any{"type": "string"},
				"input":      map[string]any{"type": "string"},
				"metadata":   map[string]any{"type": "object"},
			},
			"required": []string{"agent_name", "input"},
		},
		func(ctx context.Context, args map[string]any) protocol.ToolResult {
			name, _ := args["agent_name"].(string)
			input, _ := args["input"].(string)

			a, ok := r.Get(name)
			if !ok {
				return protocol.Fail(fmt.Sprintf("Unknown agent: %s. Available: %v", name, r.Names()))
			}

			metadata := map[string]any{}
			if m, ok := args["metadata"].(map[string]any); ok {
				for k, v := range m {
					metadata[k] = v
				}
			}
			if extraMetadata != nil {
				for k, v := range extraMetadata() {
					metadata[k] = v
				}
			}

			resp := a.Invoke(ctx, protocol.AgentMessage{Content: input, Metadata: metadata})
			if !resp.Success {
				return protocol.Fail(resp.Error)
			}
			return protocol.Ok(map[string]any{"content": resp.Content, "metadata": resp.Metadata})
		},
	)
}
