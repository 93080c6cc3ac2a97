package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/cyberinferno/netprint/devicesim"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run a fake device that records what it receives",
		Long: `Runs a fake raw TCP device for testing. Every received chunk is echoed to
stdout as it arrives and answered with --reply, if set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := newViper()
			if err := bindFlags(v, cmd); err != nil {
				return err
			}

			reply, err := unescape(v.GetString("reply"))
			if err != nil {
				return err
			}

			log, err := newLogger(v)
			if err != nil {
				return err
			}
			defer log.Close()

			device := devicesim.NewServer(v.GetString("name"), v.GetString("listen"), reply)
			device.Logger = log
			if err := device.Start(); err != nil {
				return err
			}
			defer device.Stop()

			fmt.Fprintf(cmd.ErrOrStderr(), "%s listening on %s\n", device.Name, device.BoundAddr())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return device.Stream(ctx, cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("listen", ":9100", "listen address")
	cmd.Flags().String("name", "printer", "device name used in logs")
	cmd.Flags().String("reply", "", `answer sent after every received chunk; Go escapes such as \n are interpreted`)
	return cmd
}
