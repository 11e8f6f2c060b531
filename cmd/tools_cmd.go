package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func toolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and call tools on the MCP server",
	}
	cmd.AddCommand(toolsListCmd())
	cmd.AddCommand(toolsCallCmd())
	return cmd
}

func toolsListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tools advertised by the MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			defer reg.Close()

			tools, err := reg.ListTools(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				data, _ := json.MarshalIndent(tools, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDESCRIPTION")
			for _, t := range tools {
				fmt.Fprintf(tw, "%s\t%s\n", t.Name, truncate(t.Description, 70))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func toolsCallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call [name] [json-arguments]",
		Short: "Call one tool with a JSON object of arguments",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			arguments := map[string]any{}
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &arguments); err != nil {
					return fmt.Errorf("arguments must be a JSON object: %w", err)
				}
			}

			reg, err := openRegistry()
			if err != nil {
				return err
			}
			defer reg.Close()

			out, err := reg.Call(cmd.Context(), args[0], arguments)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
}
