package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/log"
)

// syncer is the part of a store the watch loop drives.
type syncer interface {
	Name() string
	FetchAll(ctx context.Context) error
	FetchStats(ctx context.Context) (core.Stats, error)
	Close() error
}

func newWatchCommand(opts *RootOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep every collection in sync until interrupted",
		Long: `Refetch every collection and its stats on a fixed interval, keeping
the local cache current. Store events are printed as they happen and,
when AMQP_URL is set, forwarded to the AMQP exchange.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.openState(); err != nil {
				return err
			}
			if interval <= 0 {
				interval = a.cfg.WatchInterval
			}

			runCtx, stop := context.WithCancel(cmd.Context())
			defer stop()
			ctx, done := GracefulShutdown(runCtx, a.logger, 10*time.Second, nil)

			stores := []syncer{
				openStore[core.Ticket](ctx, a, api.Tickets, nil),
				openStore[core.Expense](ctx, a, api.Expenses, nil),
				openStore[core.Revenue](ctx, a, api.Revenues, nil),
				openStore[core.Category](ctx, a, api.Categories, nil),
			}
			defer func() {
				for _, s := range stores {
					s.Close()
				}
			}()

			g, ctx := errgroup.WithContext(ctx)

			printed, cancelPrinted := a.bus.Subscribe(64)
			defer cancelPrinted()
			g.Go(func() error { return printEvents(ctx, a.out, printed) })

			if a.cfg.AMQPURL != "" {
				publisher, err := amqp.NewClient(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.logger)
				if err != nil {
					return err
				}
				defer publisher.Close()
				forwarded, cancelForwarded := a.bus.Subscribe(256)
				defer cancelForwarded()
				g.Go(func() error { return publisher.Forward(ctx, forwarded) })
			}

			for _, s := range stores {
				g.Go(func() error { return poll(ctx, a.logger, s, interval) })
			}

			a.logger.Info("Watching collections", "interval", interval.String(), "stores", len(stores))
			err = g.Wait()
			stop()
			<-done
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Refetch interval (default FINTRACK_WATCH_INTERVAL)")
	return cmd
}

// poll syncs s immediately and then on every tick. Failures are logged;
// they are already recorded in the store state. Stats are no longer
// requested once the backend proves not to offer them for s.
func poll(ctx context.Context, logger *log.Logger, s syncer, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	withStats := true
	for {
		if err := s.FetchAll(ctx); err != nil && ctx.Err() == nil {
			logger.WarnContext(ctx, "Sync failed",
				log.NewFields().WithStore(s.Name()).WithOperation(log.OpFetch).WithError(err).ToSlice()...)
		}
		if withStats {
			if _, err := s.FetchStats(ctx); api.IsUnsupported(err) {
				withStats = false
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func printEvents(ctx context.Context, out *OutputFormatter, ch <-chan events.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if err := writeEvent(out, amqp.NewStoreEventMessage(e)); err != nil {
				return err
			}
		}
	}
}

func writeEvent(out *OutputFormatter, msg *amqp.StoreEventMessage) error {
	return out.Success(msg, func(w io.Writer) error {
		line := fmt.Sprintf("%s %-10s %-20s count=%d", msg.Timestamp.Format(time.TimeOnly), msg.Store, msg.Kind, msg.Count)
		if msg.RecordID != 0 {
			line += fmt.Sprintf(" id=%d", msg.RecordID)
		}
		if msg.Error != "" {
			line += " error=" + msg.Error
		}
		_, err := fmt.Fprintln(w, line)
		return err
	})
}
