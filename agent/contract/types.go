package contract

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// ToolCall is one tool invocation requested by the planner.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Entry is one record of a session transcript. Sequence is assigned by the
// store on append; the value set by the caller is ignored.
type Entry struct {
	Sequence   int64      `json:"sequence"`
	Role       Role       `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

func UserEntry(text string) Entry {
	return Entry{Role: RoleUser, Content: &text}
}

func AnswerEntry(text string) Entry {
	return Entry{Role: RoleAssistant, Content: &text}
}

func ToolRequestEntry(calls []ToolCall) Entry {
	return Entry{Role: RoleAssistant, ToolCalls: cloneCalls(calls)}
}

func ToolResultEntry(callID string, content string) Entry {
	return Entry{Role: RoleTool, Content: &content, ToolCallID: callID}
}

// IsTerminal reports whether the entry is a final answer. Non-null content on
// an assistant entry wins over any accompanying tool calls.
func (e Entry) IsTerminal() bool {
	return e.Role == RoleAssistant && e.Content != nil
}

// Text returns the content or "" for null content.
func (e Entry) Text() string {
	if e.Content == nil {
		return ""
	}
	return *e.Content
}

// CheckSessionID rejects empty ids and ids with surrounding whitespace.
// Ids are used verbatim as storage keys, so they are never trimmed.
func CheckSessionID(sessionID string) error {
	if sessionID == "" || strings.TrimSpace(sessionID) != sessionID {
		return ErrInvalidSession
	}
	return nil
}

// Validate checks the shape of a single entry.
func (e Entry) Validate() error {
	if !e.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, e.Role)
	}
	switch e.Role {
	case RoleUser:
		if e.Content == nil {
			return fmt.Errorf("%w: user entry requires content", ErrValidation)
		}
		if len(e.ToolCalls) > 0 || e.ToolCallID != "" {
			return fmt.Errorf("%w: user entry cannot carry tool fields", ErrValidation)
		}
	case RoleAssistant:
		if e.Content == nil && len(e.ToolCalls) == 0 {
			return fmt.Errorf("%w: assistant entry needs content or tool calls", ErrValidation)
		}
		for i, call := range e.ToolCalls {
			if strings.TrimSpace(call.ID) == "" || strings.TrimSpace(call.Name) == "" {
				return fmt.Errorf("%w: tool call %d needs id and name", ErrValidation, i)
			}
		}
		if e.ToolCallID != "" {
			return fmt.Errorf("%w: assistant entry cannot carry tool_call_id", ErrValidation)
		}
	case RoleTool:
		if e.Content == nil {
			return fmt.Errorf("%w: tool entry requires content", ErrValidation)
		}
		if strings.TrimSpace(e.ToolCallID) == "" {
			return fmt.Errorf("%w: tool entry requires tool_call_id", ErrValidation)
		}
		if len(e.ToolCalls) > 0 {
			return fmt.Errorf("%w: tool entry cannot request tools", ErrValidation)
		}
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate stored entries.
func (e Entry) Clone() Entry {
	out := e
	if e.Content != nil {
		c := *e.Content
		out.Content = &c
	}
	out.ToolCalls = cloneCalls(e.ToolCalls)
	return out
}

// CheckTranscript verifies the ordering and back-reference invariants of a
// whole transcript as returned by a store.
func CheckTranscript(entries []Entry) error {
	known := make(map[string]struct{})
	for i, e := range entries {
		if e.Sequence != int64(i) {
			return fmt.Errorf("%w: entry %d has sequence %d", ErrCorruptTranscript, i, e.Sequence)
		}
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrCorruptTranscript, i, err)
		}
		for _, call := range e.ToolCalls {
			known[call.ID] = struct{}{}
		}
		if e.Role == RoleTool {
			if _, ok := known[e.ToolCallID]; !ok {
				return fmt.Errorf("%w: entry %d answers unknown call %q", ErrCorruptTranscript, i, e.ToolCallID)
			}
		}
	}
	return nil
}

// PendingCalls returns the calls of the latest tool request that have no
// result entry yet, in request order.
func PendingCalls(entries []Entry) []ToolCall {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Role != RoleAssistant {
			continue
		}
		if e.IsTerminal() {
			return nil
		}
		answered := make(map[string]struct{})
		for _, later := range entries[i+1:] {
			if later.Role == RoleTool {
				answered[later.ToolCallID] = struct{}{}
			}
		}
		var pending []ToolCall
		for _, call := range e.ToolCalls {
			if _, ok := answered[call.ID]; !ok {
				pending = append(pending, call)
			}
		}
		return pending
	}
	return nil
}

type ToolDescriptor struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	ParameterSchema map[string]any `json:"parameter_schema"`
}

// Decision is the closed result of one planner round: Answer or ToolRequest.
type Decision interface {
	decision()
}

type Answer struct {
	Text string
	// Degraded marks a diagnostic answer synthesized from a planner failure.
	Degraded bool
}

type ToolRequest struct {
	Calls []ToolCall
}

func (Answer) decision()      {}
func (ToolRequest) decision() {}

func cloneCalls(calls []ToolCall) []ToolCall {
	if calls == nil {
		return nil
	}
	out := make([]ToolCall, len(calls))
	for i, c := range calls {
		out[i] = ToolCall{ID: c.ID, Name: c.Name, Arguments: cloneMap(c.Arguments)}
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
