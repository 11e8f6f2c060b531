package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
)

const (
	NodeLoadTranscript = "load_transcript"
	NodeFetchTools     = "fetch_tools"
	NodeDecide         = "decide"
	NodeRecordAnswer   = "record_answer"
	NodeExecuteTools   = "execute_tools"
)

var ErrNilDecision = errors.New("decision is nil")

type TurnInput struct {
	SessionID string
	Turn      int
}

// TurnState flows between the nodes of one turn.
type TurnState struct {
	SessionID  string
	Turn       int
	Transcript []contractx.Entry
	Tools      []contractx.ToolDescriptor
	Decision   contractx.Decision
}

type TurnOutput struct {
	Terminal bool
	Answer   string
	Degraded bool
	Calls    int
}

func LoadTranscript(ctx context.Context, in TurnInput, store contractx.TranscriptStore) (*TurnState, error) {
	sessionID := in.SessionID
	if err := contractx.CheckSessionID(sessionID); err != nil {
		return nil, err
	}
	entries, err := store.Read(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := contractx.CheckTranscript(entries); err != nil {
		return nil, &contractx.StorageError{Op: "read", SessionID: sessionID, Err: err}
	}
	return &TurnState{SessionID: sessionID, Turn: in.Turn, Transcript: entries}, nil
}

// FetchTools lists tools fresh every turn. A discovery failure leaves the
// turn with no tools instead of failing it.
func FetchTools(ctx context.Context, st *TurnState, registry contractx.ToolRegistry) (*TurnState, error) {
	tools, err := registry.ListTools(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Warn().Str("session_id", st.SessionID).Int("turn", st.Turn).Err(err).Msg("tool discovery failed, continuing without tools")
		tools = nil
	}
	st.Tools = tools
	return st, nil
}

func Decide(ctx context.Context, st *TurnState, planner contractx.Planner) (*TurnState, error) {
	d, err := planner.Decide(ctx, st.Transcript, st.Tools)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		d = contractx.Answer{Text: fmt.Sprintf("planner failed: %v", err), Degraded: true}
	}
	if d == nil {
		return nil, ErrNilDecision
	}
	if req, ok := d.(contractx.ToolRequest); ok && len(req.Calls) == 0 {
		d = contractx.Answer{Text: contractx.ErrEmptyDecision.Error(), Degraded: true}
	}
	st.Decision = d
	return st, nil
}

// Route picks the node that consumes the decision.
func Route(st *TurnState) (string, error) {
	switch st.Decision.(type) {
	case contractx.Answer:
		return NodeRecordAnswer, nil
	case contractx.ToolRequest:
		return NodeExecuteTools, nil
	default:
		return "", fmt.Errorf("%w: unexpected decision %T", contractx.ErrSchemaViolation, st.Decision)
	}
}

func RecordAnswer(ctx context.Context, st *TurnState, store contractx.TranscriptStore) (TurnOutput, error) {
	ans, ok := st.Decision.(contractx.Answer)
	if !ok {
		return TurnOutput{}, fmt.Errorf("%w: record_answer got %T", contractx.ErrSchemaViolation, st.Decision)
	}
	seq, err := store.Append(ctx, st.SessionID, contractx.AnswerEntry(ans.Text))
	if err != nil {
		return TurnOutput{}, err
	}
	log.Info().Str("session_id", st.SessionID).Int("turn", st.Turn).Int64("sequence", seq).Bool("degraded", ans.Degraded).Msg("answer recorded")
	return TurnOutput{Terminal: true, Answer: ans.Text, Degraded: ans.Degraded}, nil
}

// ExecuteTools appends the tool request, then one result per call in the
// order the planner listed them.
func ExecuteTools(ctx context.Context, st *TurnState, store contractx.TranscriptStore, registry contractx.ToolRegistry, concurrency int) (TurnOutput, error) {
	req, ok := st.Decision.(contractx.ToolRequest)
	if !ok {
		return TurnOutput{}, fmt.Errorf("%w: execute_tools got %T", contractx.ErrSchemaViolation, st.Decision)
	}
	if _, err := store.Append(ctx, st.SessionID, contractx.ToolRequestEntry(req.Calls)); err != nil {
		return TurnOutput{}, err
	}
	if err := ExecuteCalls(ctx, st.SessionID, req.Calls, store, registry, concurrency); err != nil {
		return TurnOutput{}, err
	}
	return TurnOutput{Calls: len(req.Calls)}, nil
}
