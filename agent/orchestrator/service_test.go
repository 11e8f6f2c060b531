package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
	transcriptx "github.com/tanpawarit/whiteboard-agent/agent/transcript"
)

type fakeStore struct {
	mu        sync.Mutex
	entries   map[string][]contractx.Entry
	appendErr error
	readErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: map[string][]contractx.Entry{}}
}

func (f *fakeStore) Append(ctx context.Context, sessionID string, e contractx.Entry) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return 0, &contractx.StorageError{Op: "append", SessionID: sessionID, Err: f.appendErr}
	}
	if err := e.Validate(); err != nil {
		return 0, err
	}
	e = e.Clone()
	e.Sequence = int64(len(f.entries[sessionID]))
	f.entries[sessionID] = append(f.entries[sessionID], e)
	return e.Sequence, nil
}

func (f *fakeStore) Read(ctx context.Context, sessionID string) ([]contractx.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, &contractx.StorageError{Op: "read", SessionID: sessionID, Err: f.readErr}
	}
	out := make([]contractx.Entry, len(f.entries[sessionID]))
	for i, e := range f.entries[sessionID] {
		out[i] = e.Clone()
	}
	return out, nil
}

func (f *fakeStore) Clear(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, sessionID)
	return nil
}

func (f *fakeStore) Count(ctx context.Context, sessionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries[sessionID]), nil
}

type fakeTools struct {
	mu      sync.Mutex
	listErr error
	failing map[string]error
	calls   []string
	lists   int
}

func (f *fakeTools) ListTools(ctx context.Context) ([]contractx.ToolDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return []contractx.ToolDescriptor{{Name: "sum", Description: "Add numbers", ParameterSchema: map[string]any{"type": "object"}}}, nil
}

func (f *fakeTools) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if err := f.failing[name]; err != nil {
		return "", err
	}
	if name == "sum" {
		nums, _ := args["numbers"].([]any)
		var total float64
		for _, n := range nums {
			switch v := n.(type) {
			case float64:
				total += v
			case json.Number:
				f, _ := v.Float64()
				total += f
			}
		}
		if total == 5 {
			return "5", nil
		}
	}
	return "ok", nil
}

// scriptedPlanner replays decisions in order and repeats the last one.
type scriptedPlanner struct {
	decisions []contractx.Decision
	calls     int
	seen      [][]contractx.Entry
	tools     [][]contractx.ToolDescriptor
}

func (p *scriptedPlanner) Decide(ctx context.Context, transcript []contractx.Entry, tools []contractx.ToolDescriptor) (contractx.Decision, error) {
	p.seen = append(p.seen, transcript)
	p.tools = append(p.tools, tools)
	i := p.calls
	p.calls++
	if i >= len(p.decisions) {
		i = len(p.decisions) - 1
	}
	return p.decisions[i], nil
}

func sumRequest(id string) contractx.ToolRequest {
	return contractx.ToolRequest{Calls: []contractx.ToolCall{{ID: id, Name: "sum", Arguments: map[string]any{"numbers": []any{2.0, 3.0}}}}}
}

func newTestOrchestrator(t *testing.T, store contractx.TranscriptStore, tools contractx.ToolRegistry, planner contractx.Planner, cfg Config) *Orchestrator {
	t.Helper()
	o, err := New(store, tools, planner, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func TestSolveToolThenAnswer(t *testing.T) {
	t.Parallel()

	store, err := transcriptx.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "wb.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	planner := &scriptedPlanner{decisions: []contractx.Decision{sumRequest("call_1"), contractx.Answer{Text: "5"}}}
	o := newTestOrchestrator(t, store, &fakeTools{}, planner, Config{})

	answer, err := o.Solve(context.Background(), "s1", "What is 2+3?")
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if answer != "5" {
		t.Fatalf("Solve() = %q, want 5", answer)
	}

	entries, _ := store.Read(context.Background(), "s1")
	if len(entries) != 4 {
		t.Fatalf("len(entries) = %d, want 4", len(entries))
	}
	wantRoles := []contractx.Role{contractx.RoleUser, contractx.RoleAssistant, contractx.RoleTool, contractx.RoleAssistant}
	for i, role := range wantRoles {
		if entries[i].Role != role {
			t.Fatalf("entries[%d].Role = %s, want %s", i, entries[i].Role, role)
		}
	}
	if entries[1].Content != nil || entries[1].ToolCalls[0].ID != "call_1" {
		t.Fatalf("tool request entry = %#v", entries[1])
	}
	if entries[2].ToolCallID != "call_1" || entries[2].Text() != "5" {
		t.Fatalf("tool result entry = %#v", entries[2])
	}
	if !entries[3].IsTerminal() || entries[3].Text() != "5" {
		t.Fatalf("answer entry = %#v", entries[3])
	}
	if got := planner.seen[1]; len(got) != 3 || got[2].Text() != "5" {
		t.Fatalf("second planner call saw %#v", got)
	}
}

func TestSolveBudgetExhausted(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	planner := &scriptedPlanner{}
	for i := 0; i < 5; i++ {
		planner.decisions = append(planner.decisions, sumRequest(fmt.Sprintf("call_%d", i)))
	}
	o := newTestOrchestrator(t, store, &fakeTools{}, planner, Config{MaxTurns: 3})

	out, err := o.HandleMessage(context.Background(), "s1", "loop forever")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if out.Status != StatusBudgetExhausted || out.Answer != DefaultFallbackMessage || out.Turns != 3 {
		t.Fatalf("HandleMessage() = %#v", out)
	}
	if planner.calls != 3 {
		t.Fatalf("planner calls = %d, want 3", planner.calls)
	}
	for _, e := range store.entries["s1"] {
		if e.IsTerminal() {
			t.Fatalf("terminal entry appended on exhaustion: %#v", e)
		}
	}
	if n := len(store.entries["s1"]); n != 7 {
		t.Fatalf("len(entries) = %d, want 7", n)
	}
}

func TestSolveRecordsToolFailureAsData(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	tools := &fakeTools{failing: map[string]error{"sum": &contractx.ToolExecutionError{Tool: "sum", Detail: "numbers must be an array"}}}
	planner := &scriptedPlanner{decisions: []contractx.Decision{sumRequest("call_1"), contractx.Answer{Text: "gave up"}}}
	o := newTestOrchestrator(t, store, tools, planner, Config{})

	answer, err := o.Solve(context.Background(), "s1", "What is 2+3?")
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if answer != "gave up" {
		t.Fatalf("Solve() = %q", answer)
	}
	toolEntry := store.entries["s1"][2]
	if toolEntry.Role != contractx.RoleTool || !strings.Contains(toolEntry.Text(), "numbers must be an array") {
		t.Fatalf("tool entry = %#v", toolEntry)
	}
	if planner.calls != 2 {
		t.Fatalf("planner calls = %d, want 2", planner.calls)
	}
}

func TestSolveContinuesWithoutToolsOnDiscoveryFailure(t *testing.T) {
	t.Parallel()

	tools := &fakeTools{listErr: &contractx.ToolDiscoveryError{Err: errors.New("connection refused")}}
	planner := &scriptedPlanner{decisions: []contractx.Decision{contractx.Answer{Text: "no tools needed"}}}
	o := newTestOrchestrator(t, newFakeStore(), tools, planner, Config{})

	answer, err := o.Solve(context.Background(), "s1", "hello")
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if answer != "no tools needed" || len(planner.tools[0]) != 0 {
		t.Fatalf("Solve() = %q, tools = %#v", answer, planner.tools[0])
	}
}

func TestSolveAbortsOnStorageError(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.appendErr = errors.New("database is locked")
	planner := &scriptedPlanner{decisions: []contractx.Decision{contractx.Answer{Text: "x"}}}
	o := newTestOrchestrator(t, store, &fakeTools{}, planner, Config{})

	_, err := o.Solve(context.Background(), "s1", "hello")
	var storageErr *contractx.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("Solve() error = %v, want StorageError", err)
	}
	if planner.calls != 0 {
		t.Fatalf("planner called %d times after storage failure", planner.calls)
	}
}

func TestSolveValidatesInput(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, newFakeStore(), &fakeTools{}, &scriptedPlanner{decisions: []contractx.Decision{contractx.Answer{Text: "x"}}}, Config{})
	if _, err := o.Solve(context.Background(), "", "hi"); !errors.Is(err, contractx.ErrInvalidSession) {
		t.Fatalf("Solve() error = %v, want ErrInvalidSession", err)
	}
	if _, err := o.Solve(context.Background(), " s1", "hi"); !errors.Is(err, contractx.ErrInvalidSession) {
		t.Fatalf("Solve() padded id error = %v, want ErrInvalidSession", err)
	}
	if _, err := o.Run(context.Background(), "s1 "); !errors.Is(err, contractx.ErrInvalidSession) {
		t.Fatalf("Run() padded id error = %v, want ErrInvalidSession", err)
	}
	if _, err := o.Solve(context.Background(), "s1", "  "); !errors.Is(err, contractx.ErrInvalidMessage) {
		t.Fatalf("Solve() error = %v, want ErrInvalidMessage", err)
	}
}

func TestRunReturnsCachedAnswer(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	ctx := context.Background()
	_, _ = store.Append(ctx, "s1", contractx.UserEntry("q"))
	_, _ = store.Append(ctx, "s1", contractx.AnswerEntry("42"))
	planner := &scriptedPlanner{decisions: []contractx.Decision{contractx.Answer{Text: "new"}}}
	o := newTestOrchestrator(t, store, &fakeTools{}, planner, Config{})

	out, err := o.Run(ctx, "s1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Status != StatusCached || out.Answer != "42" || planner.calls != 0 {
		t.Fatalf("Run() = %#v, planner calls = %d", out, planner.calls)
	}
	if _, err := o.Run(ctx, "empty"); !errors.Is(err, contractx.ErrEmptyTranscript) {
		t.Fatalf("Run(empty) error = %v, want ErrEmptyTranscript", err)
	}
}

func TestRunExecutesPendingCallsFirst(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	ctx := context.Background()
	_, _ = store.Append(ctx, "s1", contractx.UserEntry("What is 2+3?"))
	_, _ = store.Append(ctx, "s1", contractx.ToolRequestEntry(sumRequest("call_1").Calls))

	tools := &fakeTools{}
	planner := &scriptedPlanner{decisions: []contractx.Decision{contractx.Answer{Text: "5"}}}
	o := newTestOrchestrator(t, store, tools, planner, Config{})

	out, err := o.Run(ctx, "s1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Status != StatusAnswered || out.Answer != "5" || out.Turns != 1 {
		t.Fatalf("Run() = %#v", out)
	}
	if len(tools.calls) != 1 {
		t.Fatalf("tool calls = %v, want one", tools.calls)
	}
	seen := planner.seen[0]
	if len(seen) != 3 || seen[2].ToolCallID != "call_1" {
		t.Fatalf("planner saw %#v", seen)
	}
}

func TestHandleMessageSettlesPendingBeforeUserEntry(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	ctx := context.Background()
	_, _ = store.Append(ctx, "s1", contractx.UserEntry("first"))
	_, _ = store.Append(ctx, "s1", contractx.ToolRequestEntry(sumRequest("call_1").Calls))

	planner := &scriptedPlanner{decisions: []contractx.Decision{contractx.Answer{Text: "done"}}}
	o := newTestOrchestrator(t, store, &fakeTools{}, planner, Config{})

	if _, err := o.Solve(ctx, "s1", "second"); err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	entries := store.entries["s1"]
	if entries[2].Role != contractx.RoleTool || entries[3].Role != contractx.RoleUser {
		t.Fatalf("unexpected order: %#v", entries)
	}
	if err := contractx.CheckTranscript(entries); err != nil {
		t.Fatalf("CheckTranscript() error = %v", err)
	}
}

func TestSolveReturnsDegradedAnswer(t *testing.T) {
	t.Parallel()

	planner := &scriptedPlanner{decisions: []contractx.Decision{contractx.Answer{Text: "The planner could not produce a decision: timeout", Degraded: true}}}
	o := newTestOrchestrator(t, newFakeStore(), &fakeTools{}, planner, Config{})

	out, err := o.HandleMessage(context.Background(), "s1", "hi")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !out.Degraded || out.Status != StatusAnswered {
		t.Fatalf("HandleMessage() = %#v", out)
	}
}

func TestSolveCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	planner := &scriptedPlanner{decisions: []contractx.Decision{contractx.Answer{Text: "x"}}}
	o := newTestOrchestrator(t, newFakeStore(), &fakeTools{}, planner, Config{})

	_, err := o.Solve(ctx, "s1", "hi")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Solve() error = %v, want context.Canceled", err)
	}
	if planner.calls != 0 {
		t.Fatalf("planner calls = %d", planner.calls)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &fakeTools{}, &scriptedPlanner{}, Config{}); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := New(newFakeStore(), nil, &scriptedPlanner{}, Config{}); err == nil {
		t.Fatal("expected error for nil tools")
	}
	if _, err := New(newFakeStore(), &fakeTools{}, nil, Config{}); err == nil {
		t.Fatal("expected error for nil planner")
	}
}
