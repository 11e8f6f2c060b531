package planner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
)

const degradedPrefix = "The planner could not produce a decision: "

type retryConfig struct {
	MaxAttempts int
	Timeout     time.Duration
}

type attemptFunc func(ctx context.Context) (reply, error)

// run calls attempt until it yields a valid decision. Transport failures are
// retried up to MaxAttempts; malformed or empty replies are not. Whatever
// failure remains is degraded into a diagnostic Answer. Only a done ctx is
// returned as an error.
func run(ctx context.Context, backend string, cfg retryConfig, attempt attemptFunc) (contractx.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		r, err := callOnce(ctx, cfg.Timeout, attempt)
		if err == nil {
			d, derr := decisionFromReply(r)
			if derr == nil {
				return d, nil
			}
			lastErr = derr
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
		if i == attempts || !retryable(err) {
			break
		}
		log.Warn().Str("backend", backend).Int("attempt", i).Err(err).Msg("planner call failed, retrying")
	}

	return degrade(backend, lastErr), nil
}

func degrade(backend string, err error) contractx.Answer {
	log.Error().Str("backend", backend).Err(err).Msg("planner degraded to diagnostic answer")
	return contractx.Answer{Text: degradedPrefix + err.Error(), Degraded: true}
}

func callOnce(ctx context.Context, timeout time.Duration, attempt attemptFunc) (reply, error) {
	if timeout <= 0 {
		return attempt(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return attempt(attemptCtx)
}

// retryable rejects client errors the model endpoint will keep returning.
func retryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode == http.StatusConflict,
			apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode >= http.StatusInternalServerError:
			return true
		default:
			return false
		}
	}
	return true
}
