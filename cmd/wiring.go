package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	mcpx "github.com/tanpawarit/whiteboard-agent/agent/mcp"
	orchestratorx "github.com/tanpawarit/whiteboard-agent/agent/orchestrator"
	plannerx "github.com/tanpawarit/whiteboard-agent/agent/planner"
	promptx "github.com/tanpawarit/whiteboard-agent/agent/prompt"
	transcriptx "github.com/tanpawarit/whiteboard-agent/agent/transcript"
	configx "github.com/tanpawarit/whiteboard-agent/pkg/config"
)

type agentConfig struct {
	orchestratorx.Config
	PromptFile string `split_words:"true"`
}

// runtime bundles the long-lived collaborators of one process.
type runtime struct {
	store        transcriptx.Store
	tools        *mcpx.Registry
	orchestrator *orchestratorx.Orchestrator
}

func (r *runtime) Close() error {
	var errs []error
	if r.tools != nil {
		errs = append(errs, r.tools.Close())
	}
	if r.store != nil {
		errs = append(errs, r.store.Close())
	}
	return errors.Join(errs...)
}

func openStore(ctx context.Context) (transcriptx.Store, error) {
	cfg, err := configx.New[transcriptx.Config]("TRANSCRIPT")
	if err != nil {
		return nil, err
	}
	store, err := transcriptx.Open(ctx, *cfg)
	if err != nil {
		return nil, fmt.Errorf("open transcript store: %w", err)
	}
	log.Debug().Str("driver", cfg.Driver).Msg("transcript store opened")
	return store, nil
}

func openRegistry() (*mcpx.Registry, error) {
	cfg, err := configx.New[mcpx.Config]("MCP")
	if err != nil {
		return nil, err
	}
	return mcpx.Dial(*cfg)
}

func newRuntime(ctx context.Context) (*runtime, error) {
	agentCfg, err := configx.New[agentConfig]("AGENT")
	if err != nil {
		return nil, err
	}
	plannerCfg, err := configx.New[plannerx.Config]("PLANNER")
	if err != nil {
		return nil, err
	}
	prompts, err := promptx.Load(agentCfg.PromptFile)
	if err != nil {
		return nil, err
	}
	planner, err := plannerx.New(ctx, *plannerCfg, prompts.Master)
	if err != nil {
		return nil, fmt.Errorf("build planner: %w", err)
	}

	rt := &runtime{}
	if rt.store, err = openStore(ctx); err != nil {
		return nil, err
	}
	if rt.tools, err = openRegistry(); err != nil {
		_ = rt.Close()
		return nil, err
	}
	if rt.orchestrator, err = orchestratorx.New(rt.store, rt.tools, planner, agentCfg.Config); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}
