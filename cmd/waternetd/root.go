package main

import (
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "waternetd",
		Short:         "Water network topology and non-revenue water analytics",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newServeCmd())
	root.AddCommand(newJournalCmd())
	root.AddCommand(newVersionCmd())
	return root
}
