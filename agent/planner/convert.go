package planner

import (
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/getkin/kin-openapi/openapi3"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
)

func toEinoMessages(systemPrompt string, transcript []contractx.Entry) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(transcript)+1)
	if systemPrompt != "" {
		msgs = append(msgs, schema.SystemMessage(systemPrompt))
	}
	for _, e := range transcript {
		switch e.Role {
		case contractx.RoleUser:
			msgs = append(msgs, schema.UserMessage(e.Text()))
		case contractx.RoleAssistant:
			msg := &schema.Message{Role: schema.Assistant, Content: e.Text()}
			for _, call := range e.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
					ID:   call.ID,
					Type: "function",
					Function: schema.FunctionCall{
						Name:      call.Name,
						Arguments: marshalArguments(call.Arguments),
					},
				})
			}
			msgs = append(msgs, msg)
		case contractx.RoleTool:
			msgs = append(msgs, schema.ToolMessage(e.Text(), e.ToolCallID))
		}
	}
	return msgs
}

// toToolInfos converts JSON-schema descriptors through kin-openapi. A tool
// whose schema cannot be parsed is offered without parameters.
func toToolInfos(tools []contractx.ToolDescriptor) []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info := &schema.ToolInfo{Name: t.Name, Desc: t.Description}
		if s, err := openAPISchema(t.ParameterSchema); err == nil && s != nil {
			info.ParamsOneOf = schema.NewParamsOneOfByOpenAPIV3(s)
		}
		infos = append(infos, info)
	}
	return infos
}

func openAPISchema(m map[string]any) (*openapi3.Schema, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal tool schema: %w", err)
	}
	s := openapi3.NewObjectSchema()
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("decode tool schema: %w", err)
	}
	return s, nil
}

func fromEinoMessage(msg *schema.Message) reply {
	if msg == nil {
		return reply{}
	}
	r := reply{Content: msg.Content}
	if msg.ResponseMeta != nil {
		r.FinishReason = msg.ResponseMeta.FinishReason
	}
	for _, tc := range msg.ToolCalls {
		r.ToolCalls = append(r.ToolCalls, replyCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return r
}
