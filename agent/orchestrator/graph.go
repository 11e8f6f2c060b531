package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/tanpawarit/whiteboard-agent/agent/nodes"
)

// compileTurnGraph wires one planner round:
// load_transcript -> fetch_tools -> decide -> {record_answer | execute_tools}.
func (o *Orchestrator) compileTurnGraph(ctx context.Context) (compose.Runnable[nodex.TurnInput, nodex.TurnOutput], error) {
	graph := compose.NewGraph[nodex.TurnInput, nodex.TurnOutput]()

	if err := graph.AddLambdaNode(nodex.NodeLoadTranscript,
		compose.InvokableLambda(func(ctx context.Context, in nodex.TurnInput) (*nodex.TurnState, error) {
			return nodex.LoadTranscript(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.NodeLoadTranscript, err)
	}

	if err := graph.AddLambdaNode(nodex.NodeFetchTools,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.TurnState) (*nodex.TurnState, error) {
			return nodex.FetchTools(ctx, in, o.tools)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.NodeFetchTools, err)
	}

	if err := graph.AddLambdaNode(nodex.NodeDecide,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.TurnState) (*nodex.TurnState, error) {
			return nodex.Decide(ctx, in, o.planner)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.NodeDecide, err)
	}

	if err := graph.AddLambdaNode(nodex.NodeRecordAnswer,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.TurnState) (nodex.TurnOutput, error) {
			return nodex.RecordAnswer(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.NodeRecordAnswer, err)
	}

	if err := graph.AddLambdaNode(nodex.NodeExecuteTools,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.TurnState) (nodex.TurnOutput, error) {
			return nodex.ExecuteTools(ctx, in, o.store, o.tools, o.cfg.ToolConcurrency)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.NodeExecuteTools, err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.TurnState) (string, error) {
			return nodex.Route(in)
		},
		map[string]bool{
			nodex.NodeRecordAnswer: true,
			nodex.NodeExecuteTools: true,
		},
	)
	if err := graph.AddBranch(nodex.NodeDecide, branch); err != nil {
		return nil, fmt.Errorf("add decide branch: %w", err)
	}

	edges := [][2]string{
		{compose.START, nodex.NodeLoadTranscript},
		{nodex.NodeLoadTranscript, nodex.NodeFetchTools},
		{nodex.NodeFetchTools, nodex.NodeDecide},
		{nodex.NodeRecordAnswer, compose.END},
		{nodex.NodeExecuteTools, compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.turn"))
	if err != nil {
		return nil, fmt.Errorf("compile turn graph: %w", err)
	}
	return runner, nil
}
