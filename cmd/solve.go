package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	orchestratorx "github.com/tanpawarit/whiteboard-agent/agent/orchestrator"
)

func solveCmd() *cobra.Command {
	var sessionID string
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "solve [question]",
		Short: "Answer one question in a session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			out, err := rt.orchestrator.HandleMessage(ctx, sessionID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			printOutcome(sessionID, out, jsonOutput)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID (default: new random ID)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func resumeCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "resume [session]",
		Short: "Continue an interrupted session from its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			out, err := rt.orchestrator.Run(ctx, args[0])
			if err != nil {
				return err
			}
			printOutcome(args[0], out, jsonOutput)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func chatCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat in one session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			fmt.Printf("Session: %s (type \"exit\" to quit)\n", sessionID)

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					return nil
				}
				out, err := rt.orchestrator.HandleMessage(ctx, sessionID, line)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: %s\n", err)
					continue
				}
				fmt.Println(out.Answer)
			}
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID (default: new random ID)")
	return cmd
}

func printOutcome(sessionID string, out orchestratorx.Outcome, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(struct {
			SessionID string `json:"session_id"`
			orchestratorx.Outcome
		}{sessionID, out}, "", "  ")
		fmt.Println(string(data))
		return
	}
	fmt.Println(out.Answer)
	fmt.Fprintf(os.Stderr, "session=%s status=%s turns=%d degraded=%t\n", sessionID, out.Status, out.Turns, out.Degraded)
}
