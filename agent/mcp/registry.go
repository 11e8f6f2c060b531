package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
)

const (
	clientName    = "whiteboard-agent"
	clientVersion = "1.0.0"
)

var ErrNilClient = errors.New("mcp client is nil")

type Config struct {
	URL         string        `envconfig:"URL" default:"http://127.0.0.1:3458/mcp"`
	ListTimeout time.Duration `split_words:"true" default:"10s"`
	CallTimeout time.Duration `split_words:"true" default:"60s"`
}

// Registry exposes the tools of one MCP server as a contract.ToolRegistry.
// The session is started and initialized on first use; a failed handshake is
// retried on the next call.
type Registry struct {
	cfg    Config
	client *mcpclient.Client

	mu          sync.Mutex
	started     bool
	initialized bool
}

// Dial prepares a streamable-HTTP client for cfg.URL without connecting.
func Dial(cfg Config) (*Registry, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("mcp url is required")
	}
	client, err := mcpclient.NewStreamableHttpClient(url)
	if err != nil {
		return nil, fmt.Errorf("create mcp client: %w", err)
	}
	return New(client, cfg)
}

func New(client *mcpclient.Client, cfg Config) (*Registry, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if cfg.ListTimeout <= 0 {
		cfg.ListTimeout = 10 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	return &Registry{cfg: cfg, client: client}, nil
}

func (r *Registry) ensure(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return nil
	}
	if !r.started {
		if err := r.client.Start(ctx); err != nil {
			return fmt.Errorf("start mcp client: %w", err)
		}
		r.started = true
	}

	req := mcpgo.InitializeRequest{}
	req.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcpgo.Implementation{Name: clientName, Version: clientVersion}
	if _, err := r.client.Initialize(ctx, req); err != nil {
		return fmt.Errorf("initialize mcp session: %w", err)
	}
	r.initialized = true
	return nil
}

// ListTools returns every advertised tool, following pagination cursors.
// The order is the server's order.
func (r *Registry) ListTools(ctx context.Context) ([]contractx.ToolDescriptor, error) {
	listCtx, cancel := context.WithTimeout(ctx, r.cfg.ListTimeout)
	defer cancel()

	if err := r.ensure(listCtx); err != nil {
		return nil, &contractx.ToolDiscoveryError{Err: err}
	}

	var out []contractx.ToolDescriptor
	req := mcpgo.ListToolsRequest{}
	for {
		res, err := r.client.ListTools(listCtx, req)
		if err != nil {
			return nil, &contractx.ToolDiscoveryError{Err: err}
		}
		for _, t := range res.Tools {
			out = append(out, contractx.ToolDescriptor{
				Name:            t.Name,
				Description:     t.Description,
				ParameterSchema: toolSchema(t),
			})
		}
		if res.NextCursor == "" {
			break
		}
		req.Params.Cursor = res.NextCursor
	}
	log.Debug().Int("tools", len(out)).Msg("mcp tools listed")
	return out, nil
}

// Call invokes one tool and returns its concatenated text output. Tool-side
// failures, including MCP error results, become ToolExecutionError.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	if err := r.ensure(callCtx); err != nil {
		return "", &contractx.ToolExecutionError{Tool: name, Detail: err.Error(), Err: err}
	}
	if args == nil {
		args = map[string]any{}
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := r.client.CallTool(callCtx, req)
	if err != nil {
		detail := err.Error()
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			detail = fmt.Sprintf("timeout after %s", r.cfg.CallTimeout)
		}
		return "", &contractx.ToolExecutionError{Tool: name, Detail: detail, Err: err}
	}

	text := extractTextContent(result)
	if result.IsError {
		return "", &contractx.ToolExecutionError{Tool: name, Detail: text}
	}
	return text, nil
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}
	r.started, r.initialized = false, false
	return r.client.Close()
}

// toolSchema prefers the raw schema the server sent and falls back to the
// structured one.
func toolSchema(t mcpgo.Tool) map[string]any {
	if len(t.RawInputSchema) > 0 {
		var m map[string]any
		if err := json.Unmarshal(t.RawInputSchema, &m); err == nil {
			return m
		}
	}
	return inputSchemaToMap(t.InputSchema)
}

func inputSchemaToMap(schema mcpgo.ToolInputSchema) map[string]any {
	m := map[string]any{"type": schema.Type}
	if schema.Type == "" {
		m["type"] = "object"
	}
	if len(schema.Properties) > 0 {
		m["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		m["required"] = schema.Required
	}
	if schema.AdditionalProperties != nil {
		m["additionalProperties"] = schema.AdditionalProperties
	}
	return m
}

func extractTextContent(result *mcpgo.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcpgo.TextContent:
			parts = append(parts, v.Text)
		case *mcpgo.TextContent:
			parts = append(parts, v.Text)
		default:
			parts = append(parts, fmt.Sprintf("[non-text content: %T]", c))
		}
	}
	return strings.Join(parts, "\n")
}
