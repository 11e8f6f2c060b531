package cmd

import (
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	plannerx "github.com/tanpawarit/whiteboard-agent/agent/planner"
	serverx "github.com/tanpawarit/whiteboard-agent/agent/server"
	toolx "github.com/tanpawarit/whiteboard-agent/agent/tool"
	configx "github.com/tanpawarit/whiteboard-agent/pkg/config"
	qstashx "github.com/tanpawarit/whiteboard-agent/pkg/qstash"
)

func toolhostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toolhost",
		Short: "Serve the built-in tools over MCP (streamable HTTP)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configx.New[toolx.HostConfig]("TOOLHOST")
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var opts []toolx.HostOption
			plannerCfg, err := configx.New[plannerx.Config]("PLANNER")
			if err != nil {
				return err
			}
			if err := plannerCfg.Validate(); err != nil {
				log.Warn().Err(err).Msg("no chat model configured, think and write tools disabled")
			} else {
				orCfg := plannerCfg.OpenRouter()
				chatModel, err := orCfg.New(ctx)
				if err != nil {
					return err
				}
				opts = append(opts, toolx.WithChatModel(chatModel))
			}
			return toolx.NewHost(opts...).Serve(ctx, *cfg)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := configx.New[serverx.Config]("SERVE")
			if err != nil {
				return err
			}
			qcfg, err := configx.New[qstashx.Config]("QSTASH")
			if err != nil {
				return err
			}

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			verifier := qstashx.NewVerifier(qcfg.CurrentSigningKey, qcfg.NextSigningKey)
			h, err := serverx.NewHandler(rt.orchestrator, rt.store, verifier, *cfg)
			if err != nil {
				return err
			}
			return serverx.ListenAndServe(ctx, *cfg, h)
		},
	}
}
