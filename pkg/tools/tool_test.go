package tools

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/CheKilo/bot-agent/pkg/protocol"
)

func TestInvokeUnknownTool(t *testing.T) {
	tk := NewToolkit()
	res := tk.Invoke(context.Background(), "missing", nil)
	if res.OK {
		t.Fatal("expected failure for unknown tool")
	}
	if res.Error != "Unknown tool: missing" {
		t.Errorf("unexpected error message: %q", res.Error)
	}
}

func TestCallRecoversFromPanic(t *testing.T) {
	tool := New("boom", "panics", nil, func(ctx context.Context, args map[string]any) protocol.ToolResult {
		panic("kaboom")
	})
	res := tool.Call(context.Background(), map[string]any{"x": 1})
	if res.OK {
		t.Fatal("expected failure result")
	}
}

func TestInvokeBatchPreservesOrder(t *testing.T) {
	tk := NewToolkit(New("echo", "echoes n after a jittered delay", nil, func(ctx context.Context, args map[string]any) protocol.ToolResult {
		n := args["n"].(int)
		time.Sleep(time.Duration(10-n) * time.Millisecond)
		return protocol.Ok(n)
	}))

	calls := make([]Call, 20)
	for i := range calls {
		calls[i] = Call{ID: fmt.Sprintf("c%d", i), Name: "echo", Args: map[string]any{"n": i % 10}}
	}

	results := tk.InvokeBatch(context.Background(), calls)
	if len(results) != len(calls) {
		t.Fatalf("expected %d results, got %d", len(calls), len(results))
	}
	for i, r := range results {
		if r.CallID != calls[i].ID {
			t.Errorf("result %d: expected call id %s, got %s", i, calls[i].ID, r.CallID)
		}
	}
}
