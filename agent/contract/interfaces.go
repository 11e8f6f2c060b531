package contract

import "context"

// TranscriptStore is the durable, per-session, append-only log.
type TranscriptStore interface {
	Append(ctx context.Context, sessionID string, entry Entry) (int64, error)
	Read(ctx context.Context, sessionID string) ([]Entry, error)
	Clear(ctx context.Context, sessionID string) error
	Count(ctx context.Context, sessionID string) (int, error)
}

// ToolRegistry discovers and invokes the tools exposed to the planner.
type ToolRegistry interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	Call(ctx context.Context, name string, args map[string]any) (string, error)
}

// Planner performs one round-trip to the language model. Implementations
// degrade model-side failures into a diagnostic Answer and only return an
// error when ctx is done.
type Planner interface {
	Decide(ctx context.Context, transcript []Entry, tools []ToolDescriptor) (Decision, error)
}
