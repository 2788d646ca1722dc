package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/clock"
	"fintrack/internal/core"
	"fintrack/internal/fakeapi"
)

func newFakeAPICommand(opts *RootOptions) *cobra.Command {
	var (
		addr   string
		tokens []string
		demo   bool
	)

	cmd := &cobra.Command{
		Use:   "fake-api",
		Short: "Run an in-memory backend for local development",
		Long: `Run an in-memory implementation of the backend REST API.

Every --token is accepted as a valid bearer token. With --demo each token
also starts with a few sample records in every collection.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.cfg.FakeAPIAddr
			}
			if len(tokens) == 0 {
				return NewExitError(ExitCommandError, "at least one --token is required")
			}

			clk := clock.Real()
			srv := fakeapi.NewServer(a.logger, clk)
			for _, token := range tokens {
				srv.AddToken(token)
				if demo {
					seedDemo(srv, token, clk.Now())
				}
			}

			runCtx, stop := context.WithCancel(cmd.Context())
			defer stop()
			ctx, done := GracefulShutdown(runCtx, a.logger, 10*time.Second, nil)
			err = srv.ListenAndServe(ctx, addr)
			stop()
			<-done
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default FINTRACK_FAKE_API_ADDR)")
	cmd.Flags().StringSliceVar(&tokens, "token", nil, "Accepted bearer token (repeatable)")
	cmd.Flags().BoolVar(&demo, "demo", false, "Seed sample records for every token")
	return cmd
}

func seedDemo(srv *fakeapi.Server, token string, now time.Time) {
	today := core.Date{Time: now.UTC().Truncate(24 * time.Hour)}
	lastMonth := core.Date{Time: today.AddDate(0, -1, 0)}

	srv.SeedTickets(token,
		core.Ticket{Merchant: "Esselunga", Description: "Groceries", Amount: core.Money{Cents: 4530}, Date: today, Category: "Food"},
		core.Ticket{Merchant: "Trenitalia", Description: "Milano - Torino", Amount: core.Money{Cents: 1290}, Date: lastMonth, Category: "Transport"},
	)
	srv.SeedExpenses(token,
		core.Expense{Description: "Rent", Amount: core.Money{Cents: 85000}, Date: today, Category: "Home"},
		core.Expense{Description: "Electricity", Amount: core.Money{Cents: 6420}, Date: lastMonth, Category: "Home", Subcategory: "Utilities"},
	)
	srv.SeedRevenues(token,
		core.Revenue{Description: "Salary", Amount: core.Money{Cents: 250000}, Date: today, Source: "Employer"},
	)
	srv.SeedCategories(token,
		core.Category{Name: "Food", Type: core.ExpenseCategory, Budget: core.Money{Cents: 40000}, Color: "#4caf50"},
		core.Category{Name: "Home", Type: core.ExpenseCategory, Budget: core.Money{Cents: 100000}, Color: "#2196f3"},
		core.Category{Name: "Salary", Type: core.RevenueCategory, Color: "#ff9800"},
	)
}
