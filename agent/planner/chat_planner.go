package planner

import (
	"context"
	"errors"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
)

var ErrNilChatModel = errors.New("chat model is nil")

// ChatPlanner drives an eino tool-calling chat model.
type ChatPlanner struct {
	model        einomodel.ToolCallingChatModel
	systemPrompt string
	retry        retryConfig
}

var _ contractx.Planner = (*ChatPlanner)(nil)

func NewChatPlanner(model einomodel.ToolCallingChatModel, systemPrompt string, cfg Config) (*ChatPlanner, error) {
	if model == nil {
		return nil, ErrNilChatModel
	}
	return &ChatPlanner{model: model, systemPrompt: systemPrompt, retry: cfg.retry()}, nil
}

func (p *ChatPlanner) Decide(ctx context.Context, transcript []contractx.Entry, tools []contractx.ToolDescriptor) (contractx.Decision, error) {
	msgs := toEinoMessages(p.systemPrompt, transcript)

	bound := p.model
	if len(tools) > 0 {
		m, err := p.model.WithTools(toToolInfos(tools))
		if err != nil {
			return degrade(BackendEino, fmt.Errorf("%w: bind tools: %v", contractx.ErrModelInvoke, err)), nil
		}
		bound = m
	}

	return run(ctx, BackendEino, p.retry, func(ctx context.Context) (reply, error) {
		msg, err := bound.Generate(ctx, msgs)
		if err != nil {
			return reply{}, err
		}
		return fromEinoMessage(msg), nil
	})
}
