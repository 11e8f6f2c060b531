package tool

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

const (
	ToolTodo = "todo"

	TodoCreate   = "todo_create"
	TodoComplete = "todo_complete"
	TodoFailure  = "todo_failure"
	TodoShow     = "todo_show"

	defaultBoardID = "default"

	markPending   = "[] "
	markCompleted = "✓ "
	markFailed    = "✗ "
)

var ErrNoTodoList = errors.New("no todo list found, create one first")

// TodoBoards keeps one task DAG per board id. Lines look like
// "[] task_1: design dependency [task_0]"; the leading marker tracks status.
type TodoBoards struct {
	mu     sync.Mutex
	boards map[string]string
}

func NewTodoBoards() *TodoBoards {
	return &TodoBoards{boards: make(map[string]string)}
}

// Do runs one todo action and returns the text shown to the model.
func (b *TodoBoards) Do(args map[string]any) (string, error) {
	action := stringArg(args, "action")
	boardID := stringArg(args, "board")
	if boardID == "" {
		boardID = defaultBoardID
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if action == TodoCreate {
		text := stringArg(args, "todo_text")
		if strings.TrimSpace(text) == "" {
			return "", errors.New("todo_text is required for todo_create")
		}
		b.boards[boardID] = text
		return "Todo DAG created.\n" + text, nil
	}

	current, ok := b.boards[boardID]
	if !ok {
		return "", ErrNoTodoList
	}

	switch action {
	case TodoShow:
		return current, nil
	case TodoComplete, TodoFailure:
		taskID := stringArg(args, "task_id")
		if taskID == "" {
			return "", fmt.Errorf("task_id is required for %s", action)
		}
		mark, verb := markCompleted, "completed"
		if action == TodoFailure {
			mark, verb = markFailed, "failed"
		}
		updated, err := markTask(current, taskID, mark)
		if err != nil {
			return "", err
		}
		b.boards[boardID] = updated
		return fmt.Sprintf("%s marked as %s.\n%s", taskID, verb, updated), nil
	default:
		return "", fmt.Errorf("unknown action: %s", action)
	}
}

func markTask(text, taskID, mark string) (string, error) {
	lines := strings.Split(text, "\n")
	found := false
	for i, line := range lines {
		if !strings.Contains(line, " "+taskID+":") {
			continue
		}
		if !strings.Contains(line, markPending) {
			return "", fmt.Errorf("task %s is not pending", taskID)
		}
		lines[i] = strings.Replace(line, markPending, mark, 1)
		found = true
	}
	if !found {
		return "", fmt.Errorf("task %s not found", taskID)
	}
	return strings.Join(lines, "\n"), nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}
