package orchestrator

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
	nodex "github.com/tanpawarit/whiteboard-agent/agent/nodes"
)

const DefaultFallbackMessage = "unable to resolve"

type Status string

const (
	StatusAnswered        Status = "answered"
	StatusBudgetExhausted Status = "budget_exhausted"
	StatusCached          Status = "cached"
)

type Config struct {
	MaxTurns        int    `split_words:"true" default:"10"`
	FallbackMessage string `split_words:"true" default:"unable to resolve"`
	ToolConcurrency int    `split_words:"true" default:"1"`
}

// Outcome describes how a solve ended.
type Outcome struct {
	Answer   string `json:"answer"`
	Status   Status `json:"status"`
	Turns    int    `json:"turns"`
	Degraded bool   `json:"degraded"`
}

type Orchestrator struct {
	store   contractx.TranscriptStore
	tools   contractx.ToolRegistry
	planner contractx.Planner
	cfg     Config

	turnRunner compose.Runnable[nodex.TurnInput, nodex.TurnOutput]
}

func New(
	store contractx.TranscriptStore,
	tools contractx.ToolRegistry,
	planner contractx.Planner,
	cfg Config,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("transcript store is required")
	}
	if tools == nil {
		return nil, errors.New("tool registry is required")
	}
	if planner == nil {
		return nil, errors.New("planner is required")
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 10
	}
	if strings.TrimSpace(cfg.FallbackMessage) == "" {
		cfg.FallbackMessage = DefaultFallbackMessage
	}
	if cfg.ToolConcurrency <= 0 {
		cfg.ToolConcurrency = 1
	}

	o := &Orchestrator{store: store, tools: tools, planner: planner, cfg: cfg}
	runner, err := o.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.turnRunner = runner
	return o, nil
}

// Solve appends the user message and runs turns until an answer or the
// budget runs out. On exhaustion it returns the fallback message.
func (o *Orchestrator) Solve(ctx context.Context, sessionID string, userMessage string) (string, error) {
	out, err := o.HandleMessage(ctx, sessionID, userMessage)
	if err != nil {
		return "", err
	}
	return out.Answer, nil
}

func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID string, text string) (Outcome, error) {
	in, err := nodex.ValidateRequest(nodex.MessageInput{SessionID: sessionID, Text: text})
	if err != nil {
		return Outcome{}, err
	}

	// Calls left unanswered by an interrupted run are settled first so the
	// new user entry never splits a request from its results.
	entries, err := o.store.Read(ctx, in.SessionID)
	if err != nil {
		return Outcome{}, err
	}
	if err := o.settlePending(ctx, in.SessionID, entries); err != nil {
		return Outcome{}, err
	}

	seq, err := o.store.Append(ctx, in.SessionID, contractx.UserEntry(in.Text))
	if err != nil {
		return Outcome{}, err
	}
	log.Info().Str("session_id", in.SessionID).Int64("sequence", seq).Msg("user message recorded")

	return o.loop(ctx, in.SessionID)
}

// Run resumes a session without adding input. A session whose latest entry
// is already an answer returns it as cached without calling the planner.
func (o *Orchestrator) Run(ctx context.Context, sessionID string) (Outcome, error) {
	if err := contractx.CheckSessionID(sessionID); err != nil {
		return Outcome{}, err
	}
	entries, err := o.store.Read(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if len(entries) == 0 {
		return Outcome{}, contractx.ErrEmptyTranscript
	}
	if last := entries[len(entries)-1]; last.IsTerminal() {
		return Outcome{Answer: last.Text(), Status: StatusCached}, nil
	}
	if err := o.settlePending(ctx, sessionID, entries); err != nil {
		return Outcome{}, err
	}
	return o.loop(ctx, sessionID)
}

func (o *Orchestrator) settlePending(ctx context.Context, sessionID string, entries []contractx.Entry) error {
	pending := contractx.PendingCalls(entries)
	if len(pending) == 0 {
		return nil
	}
	log.Info().Str("session_id", sessionID).Int("calls", len(pending)).Msg("executing calls left pending")
	return nodex.ExecuteCalls(ctx, sessionID, pending, o.store, o.tools, o.cfg.ToolConcurrency)
}

func (o *Orchestrator) loop(ctx context.Context, sessionID string) (Outcome, error) {
	for turn := 1; turn <= o.cfg.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return Outcome{Turns: turn - 1}, err
		}
		out, err := o.turnRunner.Invoke(ctx, nodex.TurnInput{SessionID: sessionID, Turn: turn})
		if err != nil {
			return Outcome{Turns: turn}, err
		}
		if out.Terminal {
			return Outcome{Answer: out.Answer, Status: StatusAnswered, Turns: turn, Degraded: out.Degraded}, nil
		}
		log.Debug().Str("session_id", sessionID).Int("turn", turn).Int("calls", out.Calls).Msg("turn finished with tool calls")
	}

	log.Warn().Str("session_id", sessionID).Int("max_turns", o.cfg.MaxTurns).Msg("turn budget exhausted")
	return Outcome{Answer: o.cfg.FallbackMessage, Status: StatusBudgetExhausted, Turns: o.cfg.MaxTurns}, nil
}
