package mcp

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
	toolx "github.com/tanpawarit/whiteboard-agent/agent/tool"
)

type cannedModel struct {
	reply string
}

func (m cannedModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m cannedModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func newInProcessRegistry(t *testing.T, opts ...toolx.HostOption) *Registry {
	t.Helper()
	client, err := mcpclient.NewInProcessClient(toolx.NewHost(opts...).MCPServer())
	if err != nil {
		t.Fatalf("NewInProcessClient() error = %v", err)
	}
	reg, err := New(client, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func TestRegistryListTools(t *testing.T) {
	t.Parallel()

	reg := newInProcessRegistry(t)
	tools, err := reg.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}

	byName := map[string]contractx.ToolDescriptor{}
	for _, d := range tools {
		byName[d.Name] = d
	}
	sum, ok := byName[toolx.ToolSum]
	if !ok {
		t.Fatalf("sum tool missing from %#v", tools)
	}
	if sum.Description == "" {
		t.Fatal("sum description is empty")
	}
	if sum.ParameterSchema["type"] != "object" {
		t.Fatalf("schema type = %v, want object", sum.ParameterSchema["type"])
	}
	props, _ := sum.ParameterSchema["properties"].(map[string]any)
	if _, ok := props["numbers"]; !ok {
		t.Fatalf("numbers property missing: %#v", sum.ParameterSchema)
	}
	for _, name := range []string{toolx.ToolMathEvaluate, toolx.ToolTodo} {
		if _, ok := byName[name]; !ok {
			t.Fatalf("%s tool missing", name)
		}
	}
	for _, name := range []string{toolx.ToolThink, toolx.ToolWrite} {
		if _, ok := byName[name]; ok {
			t.Fatalf("%s must not be listed without a chat model", name)
		}
	}
}

func TestRegistryCall(t *testing.T) {
	t.Parallel()

	reg := newInProcessRegistry(t)
	out, err := reg.Call(context.Background(), toolx.ToolSum, map[string]any{"numbers": []any{2.0, 3.0}})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if out != "5" {
		t.Fatalf("Call() = %q, want 5", out)
	}
}

func TestRegistryReasoningTools(t *testing.T) {
	t.Parallel()

	reg := newInProcessRegistry(t, toolx.WithChatModel(cannedModel{reply: `{"think_process":"Add them.","plan":["sum the numbers"]}`}))
	tools, err := reg.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}
	names := map[string]bool{}
	for _, d := range tools {
		names[d.Name] = true
	}
	if !names[toolx.ToolThink] || !names[toolx.ToolWrite] {
		t.Fatalf("reasoning tools missing from %v", names)
	}

	out, err := reg.Call(context.Background(), toolx.ToolThink, map[string]any{"question": "What is 2+3?"})
	if err != nil {
		t.Fatalf("Call(think) error = %v", err)
	}
	if out != "Thought: Add them.\nPlan:\n[] step_1: sum the numbers" {
		t.Fatalf("Call(think) = %q", out)
	}

	// The plan lands on the shared todo board.
	board, err := reg.Call(context.Background(), toolx.ToolTodo, map[string]any{"action": toolx.TodoShow})
	if err != nil || board != "[] step_1: sum the numbers" {
		t.Fatalf("todo_show = %q, %v", board, err)
	}

	_, err = reg.Call(context.Background(), toolx.ToolThink, map[string]any{})
	var execErr *contractx.ToolExecutionError
	if !errors.As(err, &execErr) || execErr.Tool != toolx.ToolThink {
		t.Fatalf("Call(think) without question error = %v", err)
	}
}

func TestRegistryCallToolErrorResult(t *testing.T) {
	t.Parallel()

	reg := newInProcessRegistry(t)
	_, err := reg.Call(context.Background(), toolx.ToolMathEvaluate, map[string]any{"expression": "1/0"})
	var execErr *contractx.ToolExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Call() error = %v, want ToolExecutionError", err)
	}
	if execErr.Tool != toolx.ToolMathEvaluate || execErr.Detail != toolx.ErrDivisionByZero.Error() {
		t.Fatalf("unexpected error: %+v", execErr)
	}
}

func TestRegistryCallUnknownTool(t *testing.T) {
	t.Parallel()

	reg := newInProcessRegistry(t)
	_, err := reg.Call(context.Background(), "missing", nil)
	var execErr *contractx.ToolExecutionError
	if !errors.As(err, &execErr) || execErr.Tool != "missing" {
		t.Fatalf("Call() error = %v, want ToolExecutionError for missing", err)
	}
}

func TestRegistryUnreachableServer(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(nil)
	url := server.URL + "/mcp"
	server.Close()

	reg, err := Dial(Config{URL: url})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	_, err = reg.ListTools(context.Background())
	var discoveryErr *contractx.ToolDiscoveryError
	if !errors.As(err, &discoveryErr) {
		t.Fatalf("ListTools() error = %v, want ToolDiscoveryError", err)
	}
	_, err = reg.Call(context.Background(), toolx.ToolSum, nil)
	var execErr *contractx.ToolExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Call() error = %v, want ToolExecutionError", err)
	}
}

func TestInputSchemaToMapDefaultsToObject(t *testing.T) {
	t.Parallel()

	m := inputSchemaToMap(mcpgo.ToolInputSchema{Required: []string{"x"}})
	if m["type"] != "object" {
		t.Fatalf("type = %v, want object", m["type"])
	}
	if _, ok := m["properties"]; ok {
		t.Fatal("empty properties must be omitted")
	}
}

func TestDialRequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := Dial(Config{URL: " "}); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := New(nil, Config{}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("New(nil) error = %v", err)
	}
}
