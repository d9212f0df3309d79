package main

import (
	"fmt"
	"os"

	"github.com/cadencehq/cadence/internal/cli"
	"github.com/cadencehq/cadence/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cadenced",
		Short: "Cadence daemon and CLI",
		Long:  "Cadence daemon for running the outreach API server and scheduler, with admin commands for enrollment, suppressions and progression status",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.EnrollCmd())
	rootCmd.AddCommand(admin.SuppressCmd())
	rootCmd.AddCommand(admin.StatusCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
