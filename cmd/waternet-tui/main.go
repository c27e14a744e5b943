package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr     string
		actor    string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:          "waternet-tui",
		Short:        "Operator dashboard for zones and alerts",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}
			if actor == "" {
				return fmt.Errorf("--actor is required to acknowledge alerts")
			}
			m := initialModel(newClient(addr, interval), actor, interval)
			_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "waternetd base URL")
	cmd.Flags().StringVar(&actor, "actor", os.Getenv("USER"), "operator name recorded on acknowledgements")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "poll interval")
	return cmd
}
