package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	configx "github.com/tanpawarit/whiteboard-agent/pkg/config"
)

var envFile string

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "whiteboard",
		Short:         "Tool-using agent with a persistent whiteboard transcript",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configx.SetEnvFile(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "path to a .env file (default ./.env)")

	root.AddCommand(solveCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(resumeCmd())
	root.AddCommand(transcriptCmd())
	root.AddCommand(toolsCmd())
	root.AddCommand(toolhostCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(enqueueCmd())
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
