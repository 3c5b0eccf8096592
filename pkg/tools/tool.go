// Package tools implements the Tool/Toolkit contract (spec.md §4.1):
// a declarative tool descriptor, safe invocation that never panics a
// caller, and bounded-concurrency batch execution that preserves the
// caller's ordering.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/CheKilo/bot-agent/pkg/protocol"
	"github.com/CheKilo/bot-agent/pkg/registry"
	"golang.org/x/sync/errgroup"
)

// Execute is what a tool actually does, given its named arguments.
type Execute func(ctx context.Context, args map[string]any) protocol.ToolResult

// Tool is an immutable descriptor. Name must be unique inside one
// Toolkit.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
	run         Execute
}

// New builds a Tool. Name is globally unique inside one Toolkit.
func New(name, description string, parameters map[string]any, run Execute) Tool {
	return Tool{Name: name, Description: description, Parameters: parameters, run: run}
}

// Call invokes the tool, catching any panic from a misbehaving
// implementation (including a failed type assertion on an argument)
// and any argument listed as "required" in Parameters that is missing,
// turning both into a ToolResult fail carrying the received argument
// names (spec.md §7). Argument types are not checked against the schema.
func (t Tool) Call(ctx context.Context, args map[string]any) (result protocol.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			result = protocol.Fail(fmt.Sprintf("tool %q panicked: %v (args: %s)", t.Name, r, argNames(args)))
		}
	}()
	if t.run == nil {
		return protocol.Fail(fmt.Sprintf("tool %q has no implementation", t.Name))
	}
	if required, ok := t.Parameters["required"].([]string); ok {
		for _, name := range required {
			if _, present := args[name]; !present {
				return protocol.Fail(fmt.Sprintf("tool %q missing required argument %q (args: %s)", t.Name, name, argNames(args)))
			}
		}
	}
	return t.run(ctx, args)
}

func argNames(args map[string]any) string {
	names := make([]string, 0, len(args))
	for k := range args {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Call is one request to invoke a named tool, tagged with a caller ID
// so batch results can be reordered to match the call order.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// Result pairs a Call's ID with its outcome.
type Result struct {
	CallID string
	Result protocol.ToolResult
}

// Toolkit is an ordered set of Tools, looked up by name and invoked
// individually or as a concurrent batch.
type Toolkit struct {
	reg        *registry.BaseRegistry[Tool]
	maxWorkers int
}

const defaultMaxWorkers = 5

// NewToolkit builds an empty Toolkit with the default bounded worker
// pool size (5, capped at batch size per spec.md §4.1(c)).
func NewToolkit(tools ...Tool) *Toolkit {
	tk := &Toolkit{reg: registry.NewBaseRegistry[Tool](), maxWorkers: defaultMaxWorkers}
	for _, t := range tools {
		_ = tk.Register(t)
	}
	return tk
}

// Register adds a tool to the toolkit.
func (tk *Toolkit) Register(t Tool) error {
	return tk.reg.Register(t.Name, t)
}

// Get looks up a tool by name.
func (tk *Toolkit) Get(name string) (Tool, bool) {
	return tk.reg.Get(name)
}

// Names returns every registered tool name in registration order.
func (tk *Toolkit) Names() []string {
	return tk.reg.Names()
}

// Len reports how many tools are registered.
func (tk *Toolkit) Len() int {
	return tk.reg.Count()
}

// NamesJoined returns a comma-joined list of tool names, for prompt
// assembly.
func (tk *Toolkit) NamesJoined() string {
	return strings.Join(tk.Names(), ", ")
}

// Invoke calls a single tool by name. Unknown names fail rather than
// panicking the caller.
func (tk *Toolkit) Invoke(ctx context.Context, name string, args map[string]any) protocol.ToolResult {
	t, ok := tk.Get(name)
	if !ok {
		return protocol.Fail(fmt.Sprintf("Unknown tool: %s", name))
	}
	return t.Call(ctx, args)
}

// InvokeBatch runs every call concurrently with a worker pool bounded
// by min(maxWorkers, len(calls)), and returns results in the same
// order the calls were supplied in regardless of completion order.
func (tk *Toolkit) InvokeBatch(ctx context.Context, calls []Call) []Result {
	results := make([]Result, len(calls))

	limit := tk.maxWorkers
	if limit > len(calls) {
		limit = len(calls)
	}
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			results[i] = Result{CallID: call.ID, Result: tk.Invoke(gctx, call.Name, call.Args)}
			return nil
		})
	}
	_ = g.Wait() // tool failures are carried in results, never returned as a group error

	return results
}

// SchemaJSON renders every tool's {name, description, parameters} as a
// JSON array suitable for embedding in a system prompt.
func (tk *Toolkit) SchemaJSON() string {
	type def struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	}
	defs := make([]def, 0, tk.Len())
	for _, t := range tk.reg.List() {
		defs = append(defs, def{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	b, err := json.MarshalIndent(defs, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}
