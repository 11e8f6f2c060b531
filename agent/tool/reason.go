package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	ToolThink = "think"
	ToolWrite = "write"
)

var ErrMalformedThought = errors.New("thought must be JSON with a think_process string and a plan list")

const thinkPrompt = `You are a reasoning assistant. You do not fetch new data and you do not change anything.
Read the question and the notes gathered so far, reason about how to answer, and plan the remaining steps.
Every step must use a tool the agent already has.

Reply with JSON only, no other text:
{"think_process": "your reasoning", "plan": ["first step", "second step"]}`

const writePrompt = `You write the final reply to the user from the question, the reasoning so far and the
intermediate tool results. Be accurate and clear. Answer the question directly and do not invent data
that the material does not contain.`

// Thought is the structured output of the think tool.
type Thought struct {
	Process string   `json:"think_process"`
	Plan    []string `json:"plan"`
}

// Reasoner backs the think and write tools with a chat model. Plans from
// think are written to a todo board so later steps can be checked off.
type Reasoner struct {
	model model.BaseChatModel
	todos *TodoBoards
}

func NewReasoner(m model.BaseChatModel, todos *TodoBoards) (*Reasoner, error) {
	if m == nil {
		return nil, errors.New("chat model is required")
	}
	if todos == nil {
		todos = NewTodoBoards()
	}
	return &Reasoner{model: m, todos: todos}, nil
}

// Think records reasoning and a plan. Arguments: question (required), notes,
// board.
func (r *Reasoner) Think(ctx context.Context, args map[string]any) (string, error) {
	question := stringArg(args, "question")
	if question == "" {
		return "", errors.New("question is required")
	}
	raw, err := r.generate(ctx, thinkPrompt, composeInput(question, stringArg(args, "notes")))
	if err != nil {
		return "", err
	}
	thought, err := parseThought(raw)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Thought: ")
	b.WriteString(thought.Process)
	if len(thought.Plan) == 0 {
		return b.String(), nil
	}

	board, err := r.todos.Do(map[string]any{
		"action":    TodoCreate,
		"board":     stringArg(args, "board"),
		"todo_text": planToTodo(thought.Plan),
	})
	if err != nil {
		return "", err
	}
	b.WriteString("\nPlan:\n")
	b.WriteString(strings.TrimPrefix(board, "Todo DAG created.\n"))
	return b.String(), nil
}

// Write composes the final reply. Arguments: question (required), material.
func (r *Reasoner) Write(ctx context.Context, args map[string]any) (string, error) {
	question := stringArg(args, "question")
	if question == "" {
		return "", errors.New("question is required")
	}
	out, err := r.generate(ctx, writePrompt, composeInput(question, stringArg(args, "material")))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", errors.New("model returned an empty reply")
	}
	return strings.TrimSpace(out), nil
}

func (r *Reasoner) generate(ctx context.Context, system, user string) (string, error) {
	msg, err := r.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	})
	if err != nil {
		return "", fmt.Errorf("model call failed: %w", err)
	}
	if msg == nil {
		return "", errors.New("model returned no message")
	}
	return msg.Content, nil
}

func composeInput(question, material string) string {
	if material == "" {
		return "Question:\n" + question
	}
	return "Question:\n" + question + "\n\nNotes:\n" + material
}

func parseThought(raw string) (Thought, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var t Thought
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &t); err != nil {
		return Thought{}, fmt.Errorf("%w: %v", ErrMalformedThought, err)
	}
	t.Process = strings.TrimSpace(t.Process)
	if t.Process == "" {
		return Thought{}, fmt.Errorf("%w: think_process is empty", ErrMalformedThought)
	}
	plan := t.Plan[:0]
	for _, step := range t.Plan {
		step = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(step), strings.TrimSpace(markPending)))
		if step != "" {
			plan = append(plan, step)
		}
	}
	t.Plan = plan
	return t, nil
}

// planToTodo chains plan steps so each depends on the one before it.
func planToTodo(plan []string) string {
	lines := make([]string, 0, len(plan))
	for i, step := range plan {
		line := fmt.Sprintf("%sstep_%d: %s", markPending, i+1, step)
		if i > 0 {
			line += fmt.Sprintf(" dependency [step_%d]", i)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
