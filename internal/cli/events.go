package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/amqp"
	"fintrack/internal/events"
)

func newEventsCommand(opts *RootOptions) *cobra.Command {
	var kinds []string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print store events published to AMQP by a running watch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cfg.AMQPURL == "" {
				return NewExitError(ExitCommandError, "AMQP_URL is not set")
			}

			client, err := amqp.NewClient(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.logger)
			if err != nil {
				return err
			}
			defer client.Close()

			runCtx, stop := context.WithCancel(cmd.Context())
			defer stop()
			ctx, done := GracefulShutdown(runCtx, a.logger, 5*time.Second, nil)

			selected := make([]events.Kind, 0, len(kinds))
			for _, k := range kinds {
				selected = append(selected, events.Kind(k))
			}
			err = client.Tail(ctx, selected, func(msg *amqp.StoreEventMessage) error {
				return writeEvent(a.out, msg)
			})
			stop()
			<-done
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Only show these event kinds, e.g. record:deleted (repeatable)")
	return cmd
}
