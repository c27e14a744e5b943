package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-waternet/pkg/journal"
)

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the mutation journal",
	}

	var dir string
	var limit int
	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "List journal entries without replaying them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := journal.Inspect(dir)
			if err != nil {
				return fmt.Errorf("inspect %s: %w", dir, err)
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LSN\tOP\tTIME\tBYTES")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\n",
					e.LSN, e.OpType, time.Unix(0, e.Timestamp).UTC().Format(time.RFC3339), len(e.Data))
			}
			fmt.Fprintf(w, "\n%d entries\n", len(entries))
			return w.Flush()
		},
	}
	inspect.Flags().StringVarP(&dir, "dir", "d", "./data/journal", "journal directory")
	inspect.Flags().IntVarP(&limit, "tail", "n", 0, "show only the last n entries")

	cmd.AddCommand(inspect)
	return cmd
}
