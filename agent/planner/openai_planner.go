package planner

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
)

var ErrNilClient = errors.New("openai client is nil")

// OpenAIPlanner calls the chat completions endpoint directly with function
// tools.
type OpenAIPlanner struct {
	client       *openai.Client
	cfg          Config
	systemPrompt string
}

var _ contractx.Planner = (*OpenAIPlanner)(nil)

func NewOpenAIPlanner(client *openai.Client, systemPrompt string, cfg Config) (*OpenAIPlanner, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &OpenAIPlanner{client: client, cfg: cfg, systemPrompt: systemPrompt}, nil
}

func (p *OpenAIPlanner) Decide(ctx context.Context, transcript []contractx.Entry, tools []contractx.ToolDescriptor) (contractx.Decision, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.cfg.Model),
		Messages: toOpenAIMessages(p.systemPrompt, transcript),
		Tools:    toOpenAITools(tools),
	}
	if p.cfg.Temperature >= 0 {
		params.Temperature = openai.Float(float64(p.cfg.Temperature))
	}
	if p.cfg.MaxCompletionToken > 0 {
		params.MaxCompletionTokens = openai.Int(int64(p.cfg.MaxCompletionToken))
	}

	return run(ctx, BackendOpenAI, p.cfg.retry(), func(ctx context.Context) (reply, error) {
		resp, err := p.client.Chat.Completions.New(ctx, params, option.WithMaxRetries(0))
		if err != nil {
			return reply{}, err
		}
		if len(resp.Choices) == 0 {
			return reply{}, nil
		}
		choice := resp.Choices[0]
		r := reply{Content: choice.Message.Content, FinishReason: choice.FinishReason}
		for _, tc := range choice.Message.ToolCalls {
			r.ToolCalls = append(r.ToolCalls, replyCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		return r, nil
	})
}

func toOpenAIMessages(systemPrompt string, transcript []contractx.Entry) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(transcript)+1)
	if systemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(systemPrompt))
	}
	for _, e := range transcript {
		switch e.Role {
		case contractx.RoleUser:
			msgs = append(msgs, openai.UserMessage(e.Text()))
		case contractx.RoleAssistant:
			if len(e.ToolCalls) == 0 {
				msgs = append(msgs, openai.AssistantMessage(e.Text()))
				continue
			}
			assistant := &openai.ChatCompletionAssistantMessageParam{}
			for _, call := range e.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: marshalArguments(call.Arguments),
					},
				})
			}
			msgs = append(msgs, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
		case contractx.RoleTool:
			msgs = append(msgs, openai.ToolMessage(e.Text(), e.ToolCallID))
		}
	}
	return msgs
}

func toOpenAITools(tools []contractx.ToolDescriptor) []openai.ChatCompletionToolParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		fn := openai.FunctionDefinitionParam{Name: t.Name}
		if t.Description != "" {
			fn.Description = openai.String(t.Description)
		}
		if len(t.ParameterSchema) > 0 {
			fn.Parameters = openai.FunctionParameters(t.ParameterSchema)
		}
		out = append(out, openai.ChatCompletionToolParam{Function: fn})
	}
	return out
}
