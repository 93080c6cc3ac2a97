// Package cmd implements the netprint command line tool.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version of the netprint tool.
const Version = "0.3.0"

// NewRootCmd builds the netprint command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "netprint",
		Short: "talk raw TCP to network printers and similar devices",
		Long: fmt.Sprintf(`netprint (v%s)

Sends raw bytes to a TCP device such as a receipt printer on port 9100 and
reads its answers. Before every write and read the socket is checked for
readiness and reconnected once if needed.

Every flag can also be set as NETPRINT_<FLAG> (e.g. NETPRINT_ENDPOINT),
in .env / .env.local, or in the file given by --config.`, Version),
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file (yaml, toml, json, ini, env)")
	root.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error, disabled")
	root.PersistentFlags().String("log-file", "", "append JSON logs to this file instead of stderr")

	root.AddCommand(newSendCmd(), newReadCmd(), newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version number of netprint",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "netprint v%s\n", Version)
		},
	}
}

// Execute runs the root command and exits non-zero on failure.
// This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
