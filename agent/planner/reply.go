package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
)

// reply is the backend-neutral shape of one model response.
type reply struct {
	Content      string
	ToolCalls    []replyCall
	FinishReason string
}

type replyCall struct {
	ID        string
	Name      string
	Arguments string
}

// decisionFromReply is the single place a model response becomes a
// Decision. Non-empty content wins over tool calls.
func decisionFromReply(r reply) (contractx.Decision, error) {
	if strings.TrimSpace(r.Content) != "" {
		return contractx.Answer{Text: r.Content}, nil
	}
	if len(r.ToolCalls) == 0 {
		return nil, &contractx.EmptyDecisionError{FinishReason: r.FinishReason}
	}

	calls := make([]contractx.ToolCall, 0, len(r.ToolCalls))
	for i, rc := range r.ToolCalls {
		name := strings.TrimSpace(rc.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tool call %d has no name", contractx.ErrSchemaViolation, i)
		}
		args, err := parseArguments(rc.Arguments)
		if err != nil {
			return nil, fmt.Errorf("%w: tool call %d (%s): %v", contractx.ErrSchemaViolation, i, name, err)
		}
		id := strings.TrimSpace(rc.ID)
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		calls = append(calls, contractx.ToolCall{ID: id, Name: name, Arguments: args})
	}
	return contractx.ToolRequest{Calls: calls}, nil
}

func parseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}, nil
	}
	var args map[string]any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if dec.More() {
		return nil, errors.New("arguments carry trailing data")
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func marshalArguments(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
