package tool

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
)

const (
	hostName    = "whiteboard-tools"
	hostVersion = "1.0.0"
)

type HostConfig struct {
	Addr string `split_words:"true" default:":3458"`
	Path string `split_words:"true" default:"/mcp"`
}

// Host serves the built-in tools over MCP.
type Host struct {
	mcp      *server.MCPServer
	todos    *TodoBoards
	reasoner *Reasoner
}

type HostOption func(*Host)

// WithChatModel enables the think and write tools.
func WithChatModel(m model.BaseChatModel) HostOption {
	return func(h *Host) {
		if r, err := NewReasoner(m, h.todos); err == nil {
			h.reasoner = r
		}
	}
}

func NewHost(opts ...HostOption) *Host {
	h := &Host{
		mcp:   server.NewMCPServer(hostName, hostVersion, server.WithToolCapabilities(true)),
		todos: NewTodoBoards(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	h.mcp.AddTool(mcp.NewTool(ToolSum,
		mcp.WithDescription("Add a list of numbers and return the total."),
		mcp.WithArray("numbers",
			mcp.Required(),
			mcp.Description("Numbers to add"),
			mcp.Items(map[string]any{"type": "number"}),
		),
	), h.handleSum)

	h.mcp.AddTool(mcp.NewTool(ToolMathEvaluate,
		mcp.WithDescription("Evaluate an arithmetic expression with + - * / % ^ and parentheses."),
		mcp.WithString("expression",
			mcp.Required(),
			mcp.Description("Expression to evaluate"),
		),
	), h.handleMath)

	h.mcp.AddTool(mcp.NewTool(ToolTodo,
		mcp.WithDescription("Manage a task list with dependencies (a DAG): create it, mark tasks completed or failed, show it. "+
			"todo_text lines look like \"[] task_1: design dependency [task_0]\"."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Enum(TodoCreate, TodoComplete, TodoFailure, TodoShow),
			mcp.Description("Operation to perform"),
		),
		mcp.WithString("todo_text", mcp.Description("Task DAG text, required for todo_create")),
		mcp.WithString("task_id", mcp.Description("Task id, required for todo_complete and todo_failure")),
		mcp.WithString("board", mcp.Description("Board id, defaults to \"default\"")),
	), h.handleTodo)

	if h.reasoner == nil {
		return h
	}

	h.mcp.AddTool(mcp.NewTool(ToolThink,
		mcp.WithDescription("Reason about the question and the notes gathered so far, then write a step plan to a todo board. "+
			"Fetches no data and changes nothing."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The user's question")),
		mcp.WithString("notes", mcp.Description("Facts and tool results gathered so far")),
		mcp.WithString("board", mcp.Description("Todo board for the plan, defaults to \"default\"")),
	), h.handleThink)

	h.mcp.AddTool(mcp.NewTool(ToolWrite,
		mcp.WithDescription("Compose the final reply to the user from the question and the gathered material."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The user's question")),
		mcp.WithString("material", mcp.Description("Reasoning and tool results to base the reply on")),
	), h.handleWrite)

	return h
}

func (h *Host) MCPServer() *server.MCPServer { return h.mcp }

func (h *Host) Handler(path string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, server.NewStreamableHTTPServer(h.mcp, server.WithEndpointPath(path)))
	return mux
}

// Serve blocks until ctx is done or the listener fails.
func (h *Host) Serve(ctx context.Context, cfg HostConfig) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h.Handler(cfg.Path),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("path", cfg.Path).Msg("tool host listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (h *Host) handleSum(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := Sum(req.GetArguments())
	return toolResult(ToolSum, out, err), nil
}

func (h *Host) handleMath(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expression := stringArg(req.GetArguments(), "expression")
	v, err := Evaluate(expression)
	return toolResult(ToolMathEvaluate, formatNumber(v), err), nil
}

func (h *Host) handleTodo(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := h.todos.Do(req.GetArguments())
	return toolResult(ToolTodo, out, err), nil
}

func (h *Host) handleThink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := h.reasoner.Think(ctx, req.GetArguments())
	return toolResult(ToolThink, out, err), nil
}

func (h *Host) handleWrite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := h.reasoner.Write(ctx, req.GetArguments())
	return toolResult(ToolWrite, out, err), nil
}

// toolResult reports failures as MCP error results so the caller sees them
// as tool output, not as transport errors.
func toolResult(name, out string, err error) *mcp.CallToolResult {
	if err != nil {
		log.Debug().Str("tool", name).Err(err).Msg("tool call failed")
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(out)
}
