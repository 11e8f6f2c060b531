package transcript

import (
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
)

// payload is the persisted form of an entry. The sequence lives in the
// storage key, never in the payload.
type payload struct {
	Role       contractx.Role       `json:"role"`
	Content    *string              `json:"content"`
	ToolCalls  []contractx.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
}

func encodeEntry(e contractx.Entry) (string, error) {
	raw, err := json.Marshal(payload{
		Role:       e.Role,
		Content:    e.Content,
		ToolCalls:  e.ToolCalls,
		ToolCallID: e.ToolCallID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}
	return string(raw), nil
}

// decodeEntry keeps argument numbers as json.Number so large ids survive
// a round trip unchanged.
func decodeEntry(seq int64, raw string) (contractx.Entry, error) {
	var p payload
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return contractx.Entry{}, fmt.Errorf("unmarshal entry %d: %w", seq, err)
	}
	return contractx.Entry{
		Sequence:   seq,
		Role:       p.Role,
		Content:    p.Content,
		ToolCalls:  p.ToolCalls,
		ToolCallID: p.ToolCallID,
	}, nil
}

func checkSession(sessionID string) error {
	return contractx.CheckSessionID(sessionID)
}

// errUnknownCall rejects a tool result whose call id was never requested
// earlier in the session.
func errUnknownCall(callID string) error {
	return fmt.Errorf("%w: tool_call_id %q answers no earlier call", contractx.ErrValidation, callID)
}

func storageErr(op, sessionID string, err error) error {
	if err == nil {
		return nil
	}
	return &contractx.StorageError{Op: op, SessionID: sessionID, Err: err}
}
