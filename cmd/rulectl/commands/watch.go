package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/TimurManjosov/gorules/internal/client"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print a line whenever the rule list changes",
	Long: `Follow the server's rule stream until interrupted.

Example:
  rulectl watch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		err = c.Watch(ctx, func(ev client.StreamEvent) error {
			_, err := fmt.Fprintf(out, "%s\t%s\t%s\n", time.Now().Format(time.TimeOnly), ev.Event, ev.ETag)
			return err
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
