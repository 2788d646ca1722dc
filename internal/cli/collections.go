package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

// view describes how one collection is named and rendered as a table.
type view[T core.Record] struct {
	collection string
	singular   string
	headers    []string
	row        func(T) []string
}

var (
	ticketView = view[core.Ticket]{
		collection: api.Tickets,
		singular:   "ticket",
		headers:    []string{"ID", "DATE", "MERCHANT", "DESCRIPTION", "CATEGORY", "AMOUNT"},
		row: func(t core.Ticket) []string {
			return []string{id(t), t.Date.String(), t.Merchant, t.Description, t.Category, t.Amount.String()}
		},
	}
	expenseView = view[core.Expense]{
		collection: api.Expenses,
		singular:   "expense",
		headers:    []string{"ID", "DATE", "DESCRIPTION", "CATEGORY", "SUBCATEGORY", "AMOUNT"},
		row: func(e core.Expense) []string {
			return []string{id(e), e.Date.String(), e.Description, e.Category, e.Subcategory, e.Amount.String()}
		},
	}
	revenueView = view[core.Revenue]{
		collection: api.Revenues,
		singular:   "revenue",
		headers:    []string{"ID", "DATE", "DESCRIPTION", "SOURCE", "AMOUNT"},
		row: func(r core.Revenue) []string {
			return []string{id(r), r.Date.String(), r.Description, r.Source, r.Amount.String()}
		},
	}
	categoryView = view[core.Category]{
		collection: api.Categories,
		singular:   "category",
		headers:    []string{"ID", "NAME", "TYPE", "BUDGET", "COLOR"},
		row: func(c core.Category) []string {
			return []string{id(c), c.Name, string(c.Type), c.Budget.String(), c.Color}
		},
	}
)

func id(r core.Record) string { return strconv.FormatInt(r.RecordID(), 10) }

func newExpensesCommand(opts *RootOptions) *cobra.Command {
	return newCollectionCommand(opts, expenseView, "Manage expenses")
}

func newRevenuesCommand(opts *RootOptions) *cobra.Command {
	return newCollectionCommand(opts, revenueView, "Manage revenues")
}

func newCategoriesCommand(opts *RootOptions) *cobra.Command {
	return newCollectionCommand(opts, categoryView, "Manage categories")
}

func newCollectionCommand[T core.Record](opts *RootOptions, v view[T], short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   v.collection,
		Short: short,
	}
	cmd.AddCommand(newListCommand(opts, v))
	cmd.AddCommand(newDeleteCommand(opts, v))
	cmd.AddCommand(newStatsCommand(opts, v))
	return cmd
}

func newListCommand[T core.Record](opts *RootOptions, v view[T]) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List %s", v.collection),
		Long: fmt.Sprintf(`List %s from the backend and refresh the local cache.

With --offline the cached copy is printed without contacting the backend.`, v.collection),
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

			ctx := cmd.Context()
			s := openStore[T](ctx, a, v.collection, nil)
			defer s.Close()

			if err := refresh(ctx, a, s, offline); err != nil {
				return err
			}
			records := s.State().Collection
			a.out.VerboseLog("%d %s", len(records), v.collection)
			return a.out.Success(records, func(w io.Writer) error {
				rows := make([][]string, 0, len(records))
				for _, r := range records {
					rows = append(rows, v.row(r))
				}
				return writeTable(w, v.headers, rows)
			})
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Print the cached copy without contacting the backend")
	return cmd
}

func newDeleteCommand[T core.Record](opts *RootOptions, v view[T]) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: fmt.Sprintf("Delete a %s", v.singular),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recordID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid id %q", args[0]))
			}

			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.openState(); err != nil {
				return err
			}

			ctx := cmd.Context()
			s := openStore[T](ctx, a, v.collection, nil)
			defer s.Close()

			if err := s.DeleteRecord(ctx, recordID); err != nil {
				a.logger.DebugContext(ctx, "Delete failed",
					log.NewFields().WithStore(v.collection).WithRecord(recordID).WithError(err).ToSlice()...)
				return unsupportedExit(err)
			}
			return a.out.Success(map[string]any{"deleted": recordID, "collection": v.collection}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Deleted %s %d.\n", v.singular, recordID)
				return err
			})
		},
	}
}

func newStatsCommand[T core.Record](opts *RootOptions, v view[T]) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: fmt.Sprintf("Show totals for %s", v.collection),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.openState(); err != nil {
				return err
			}

			ctx := cmd.Context()
			s := openStore[T](ctx, a, v.collection, nil)
			defer s.Close()

			stats, err := s.FetchStats(ctx)
			if err != nil {
				cached := s.State().Stats
				if cached == nil || core.ErrorKind(err) == core.KindAuth {
					return unsupportedExit(err)
				}
				a.out.Notice("warning: showing cached stats: %v", err)
				stats = *cached
			}
			return a.out.Success(stats, func(w io.Writer) error {
				return writeStats(w, stats)
			})
		},
	}
}

func writeStats(w io.Writer, st core.Stats) error {
	return writeTable(w, []string{"RECORDS", "TOTAL", "THIS MONTH", "AVERAGE"}, [][]string{{
		strconv.FormatInt(st.Total, 10),
		st.TotalAmount.String(),
		st.MonthAmount.String(),
		st.AverageAmount.String(),
	}})
}
