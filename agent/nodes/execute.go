package nodes

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
)

type callResult struct {
	content string
}

// ExecuteCalls invokes calls and appends their results in call order. With
// concurrency > 1 the calls run in parallel but appends stay ordered. Tool
// failures become result content; only storage faults and a done ctx are
// returned.
func ExecuteCalls(ctx context.Context, sessionID string, calls []contractx.ToolCall, store contractx.TranscriptStore, registry contractx.ToolRegistry, concurrency int) error {
	if concurrency <= 1 {
		for _, call := range calls {
			res := invoke(ctx, sessionID, call, registry)
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := appendResult(ctx, sessionID, call, res, store); err != nil {
				return err
			}
		}
		return nil
	}

	results := make([]callResult, len(calls))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = invoke(ctx, sessionID, call, registry)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, call := range calls {
		if err := appendResult(ctx, sessionID, call, results[i], store); err != nil {
			return err
		}
	}
	return nil
}

func invoke(ctx context.Context, sessionID string, call contractx.ToolCall, registry contractx.ToolRegistry) callResult {
	start := time.Now()
	out, err := registry.Call(ctx, call.Name, call.Arguments)
	logger := log.With().Str("session_id", sessionID).Str("tool", call.Name).Str("call_id", call.ID).Dur("elapsed", time.Since(start)).Logger()
	if err != nil {
		logger.Warn().Err(err).Msg("tool call failed")
		return callResult{content: errorContent(call.Name, err)}
	}
	logger.Debug().Msg("tool call finished")
	return callResult{content: out}
}

// errorContent is the text the planner sees for a failed call.
func errorContent(tool string, err error) string {
	var execErr *contractx.ToolExecutionError
	if errors.As(err, &execErr) {
		return "Error: " + execErr.Error()
	}
	return "Error: " + (&contractx.ToolExecutionError{Tool: tool, Err: err}).Error()
}

func appendResult(ctx context.Context, sessionID string, call contractx.ToolCall, res callResult, store contractx.TranscriptStore) error {
	_, err := store.Append(ctx, sessionID, contractx.ToolResultEntry(call.ID, res.content))
	return err
}
