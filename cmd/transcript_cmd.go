package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
)

func transcriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Inspect and manage session transcripts",
	}
	cmd.AddCommand(transcriptShowCmd())
	cmd.AddCommand(transcriptCountCmd())
	cmd.AddCommand(transcriptClearCmd())
	return cmd
}

func transcriptShowCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show [session]",
		Short: "Print every entry of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Read(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				if entries == nil {
					entries = []contractx.Entry{}
				}
				data, _ := json.MarshalIndent(entries, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			if len(entries) == 0 {
				fmt.Println("No entries.")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tROLE\tDETAIL")
			for _, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", e.Sequence, e.Role, describeEntry(e))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func transcriptCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count [session]",
		Short: "Print the number of entries in a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Count(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
}

func transcriptClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [session]",
		Short: "Delete every entry of a session and reset its sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Clear(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Cleared session: %s\n", args[0])
			return nil
		},
	}
}

func describeEntry(e contractx.Entry) string {
	switch {
	case len(e.ToolCalls) > 0:
		names := make([]string, 0, len(e.ToolCalls))
		for _, c := range e.ToolCalls {
			names = append(names, c.Name+"#"+c.ID)
		}
		return "calls " + strings.Join(names, ", ")
	case e.ToolCallID != "":
		return e.ToolCallID + ": " + truncate(e.Text(), 80)
	default:
		return truncate(e.Text(), 80)
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
