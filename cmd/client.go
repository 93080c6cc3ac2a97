package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cyberinferno/netprint/netconn"
	"github.com/spf13/cobra"
)

// withConnection loads the client settings, connects and runs fn.
func withConnection(cmd *cobra.Command, fn func(conn *netconn.Connection) error) error {
	v := newViper()
	if err := bindFlags(v, cmd); err != nil {
		return err
	}

	settings, err := loadSettings(v)
	if err != nil {
		return err
	}

	log, err := newLogger(v)
	if err != nil {
		return err
	}
	defer log.Close()

	conn, closeConn, err := settings.open(log)
	if err != nil {
		return err
	}
	defer closeConn()

	if err := conn.Connect(cmd.Context()); err != nil {
		return err
	}

	err = fn(conn)

	if v.GetBool("metrics") {
		netconn.WriteMetrics(cmd.ErrOrStderr())
	}

	return err
}

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [file]",
		Short: "send a file (or stdin) to the device",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			wait, _ := cmd.Flags().GetBool("wait-reply")

			return withConnection(cmd, func(conn *netconn.Connection) error {
				if err := conn.Write(data); err != nil {
					return err
				}

				fmt.Fprintf(cmd.ErrOrStderr(), "sent %d bytes to %s\n", len(data), conn.Endpoint())

				if wait {
					_, err := cmd.OutOrStdout().Write(conn.Read())
					return err
				}

				return nil
			})
		},
	}

	addClientFlags(cmd)
	cmd.Flags().StringP("data", "d", "", `send this string instead of a file; Go escapes such as \n or \x1b are interpreted`)
	cmd.Flags().Bool("wait-reply", false, "read one reply after sending and print it to stdout")
	return cmd
}

// readInput returns --data, the named file, or stdin.
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if data, _ := cmd.Flags().GetString("data"); data != "" {
		return unescape(data)
	}

	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}

		return data, nil
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}

	return data, nil
}

func newReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read",
		Short: "read from the device and print to stdout",
		Long: `Reads up to --count chunks from the device. An empty chunk means either
that the device had nothing to say or that the connection is broken; use
--strict to fail in the second case.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			interval, _ := cmd.Flags().GetDuration("interval")
			strict, _ := cmd.Flags().GetBool("strict")

			return withConnection(cmd, func(conn *netconn.Connection) error {
				return readChunks(cmd.Context(), conn, cmd.OutOrStdout(), count, interval, strict)
			})
		},
	}

	addClientFlags(cmd)
	cmd.Flags().IntP("count", "n", 1, "number of reads")
	cmd.Flags().Duration("interval", 0, "pause between reads")
	cmd.Flags().Bool("strict", false, "fail on read errors instead of printing nothing")
	return cmd
}

func readChunks(ctx context.Context, conn *netconn.Connection, out io.Writer, count int, interval time.Duration, strict bool) error {
	for i := 0; i < count; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}

		var chunk []byte
		if strict {
			var err error
			if chunk, err = conn.ReadErr(); err != nil {
				return err
			}
		} else {
			chunk = conn.Read()
		}

		if _, err := out.Write(chunk); err != nil {
			return err
		}
	}

	return nil
}
