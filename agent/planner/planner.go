package planner

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
	openrouterx "github.com/tanpawarit/whiteboard-agent/pkg/openrouter"
)

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg Config, systemPrompt string) (contractx.Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	orCfg := cfg.OpenRouter()
	switch cfg.backend() {
	case BackendOpenAI:
		return NewOpenAIPlanner(openrouterx.NewClient(orCfg), systemPrompt, cfg)
	default:
		model, err := orCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
		}
		return NewChatPlanner(model, systemPrompt, cfg)
	}
}
