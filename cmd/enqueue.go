package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	serverx "github.com/tanpawarit/whiteboard-agent/agent/server"
	configx "github.com/tanpawarit/whiteboard-agent/pkg/config"
	qstashx "github.com/tanpawarit/whiteboard-agent/pkg/qstash"
)

func enqueueCmd() *cobra.Command {
	var sessionID string
	var target string
	cmd := &cobra.Command{
		Use:   "enqueue [question]",
		Short: "Publish a solve job to QStash for a running serve endpoint",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				serveCfg, err := configx.New[serverx.Config]("SERVE")
				if err != nil {
					return err
				}
				target = serveCfg.PublicURL
			}
			target = strings.TrimRight(strings.TrimSpace(target), "/")
			if target == "" {
				return errors.New("no target: pass --target or set SERVE_PUBLIC_URL")
			}

			qcfg, err := configx.New[qstashx.Config]("QSTASH")
			if err != nil {
				return err
			}
			client, err := qstashx.NewClient(*qcfg)
			if err != nil {
				return err
			}

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			body, err := json.Marshal(serverx.SolveRequest{SessionID: sessionID, Message: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			id, err := client.Publish(cmd.Context(), target+serverx.SolvePath, body, nil)
			if err != nil {
				return err
			}
			fmt.Printf("Enqueued message %s for session %s\n", id, sessionID)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID (default: new random ID)")
	cmd.Flags().StringVar(&target, "target", "", "public base URL of the serve endpoint")
	return cmd
}
