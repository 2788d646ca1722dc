package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/log"
	"fintrack/internal/sheets/google"
	"fintrack/internal/store"
)

func newTicketsCommand(opts *RootOptions) *cobra.Command {
	cmd := newCollectionCommand(opts, ticketView, "Manage receipt tickets")
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	return cmd
}

func newImportCommand(opts *RootOptions) *cobra.Command {
	var noWait bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Upload a receipt image or PDF for OCR import",
		Long: `Upload a receipt image (JPEG, PNG, WebP) or PDF of at most 10 MiB.

The file type is detected from its content. After a successful import
the ticket list is refetched once the backend has had time to index the
new record; --no-wait exits without waiting for that refetch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upload, closeFile, err := openUpload(args[0])
			if err != nil {
				return err
			}
			defer closeFile()

			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.openState(); err != nil {
				return err
			}

			ctx := cmd.Context()
			s := openStore[core.Ticket](ctx, a, ticketView.collection, nil)
			defer s.Close()

			sub, cancel := a.bus.Subscribe(events.DefaultBuffer)
			defer cancel()

			res, err := s.ImportRecord(ctx, upload)
			if err != nil {
				return err
			}
			if !noWait {
				waitForRefetch(ctx, a, sub, a.cfg.ReconcileDelay+a.cfg.HTTPTimeout)
			}

			return a.out.Success(res, func(w io.Writer) error {
				return writeImportResult(w, res, len(s.State().Collection))
			})
		},
	}

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Do not wait for the follow-up refetch")
	return cmd
}

// openUpload sniffs the file type and size without reading the whole file.
func openUpload(path string) (core.Upload, func(), error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return core.Upload{}, nil, WrapExitError(ExitCommandError, "read file", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return core.Upload{}, nil, WrapExitError(ExitCommandError, "open file", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return core.Upload{}, nil, WrapExitError(ExitCommandError, "stat file", err)
	}
	return core.Upload{
		Name: filepath.Base(path),
		Type: mtype.String(),
		Size: info.Size(),
		Body: f,
	}, func() { f.Close() }, nil
}

// waitForRefetch blocks until the deferred refetch completes or fails, or
// timeout passes.
func waitForRefetch(ctx context.Context, a *app, sub <-chan events.Event, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			a.logger.Warn("Refetch did not complete in time", "timeout", timeout.String())
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			switch {
			case e.Kind == events.CollectionFetched:
				a.out.VerboseLog("refetched %d tickets", e.Count)
				return
			case e.Kind == events.OperationFailed && e.Op == log.OpFetch:
				a.out.Notice("warning: refetch failed: %v", e.Err)
				return
			}
		}
	}
}

func writeImportResult(w io.Writer, res core.ImportResult, total int) error {
	msg := res.Message
	if msg == "" {
		msg = "Receipt imported."
	}
	if _, err := fmt.Fprintln(w, msg); err != nil {
		return err
	}
	if x := res.ExtractedData; x != nil {
		if err := writeTable(w, []string{"MERCHANT", "DATE", "CATEGORY", "TOTAL"}, [][]string{{
			x.Merchant, x.Date.String(), x.Category, x.Total.String(),
		}}); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d tickets cached.\n", total)
	return err
}

func newExportCommand(opts *RootOptions) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Append tickets to the configured Google Sheet",
		Long: `Append tickets to the configured Google Sheet, one sheet per year.

Tickets already present in the sheet (matched by id) are skipped, so the
command can be re-run safely. Requires GOOGLE_SPREADSHEET_ID and a
service account.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if !a.cfg.SheetsEnabled() {
				return NewExitError(ExitCommandError, "GOOGLE_SPREADSHEET_ID is not set")
			}
			if err := a.openState(); err != nil {
				return err
			}

			ctx := cmd.Context()
			s := openStore[core.Ticket](ctx, a, ticketView.collection, store.Immediate{})
			defer s.Close()
			if err := refresh(ctx, a, s, offline); err != nil {
				return err
			}

			sheets, err := google.NewClient(ctx, google.Config{
				SpreadsheetID:   a.cfg.GoogleSpreadsheetID,
				SheetName:       a.cfg.GoogleSheetName,
				CredentialsJSON: a.cfg.GoogleServiceAccountJSON,
				CredentialsFile: a.cfg.GoogleServiceAccountFile,
			}, a.logger)
			if err != nil {
				return err
			}
			res, err := sheets.ExportTickets(ctx, s.State().Collection)
			if err != nil {
				return err
			}
			return a.out.Success(res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Appended %d tickets, skipped %d already exported.\n", res.Appended, res.Skipped)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Export the cached copy without contacting the backend")
	return cmd
}
