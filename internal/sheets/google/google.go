// Package google exports cached records to a Google Sheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID string
	// SheetName is the base name; the ticket year is prefixed ("2024 Tickets").
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *log.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = "Tickets"
	}

	svc, err := newSheetsService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     base,
		logger:        logger,
	}, nil
}

// newSheetsService authenticates with service account credentials, inline
// JSON first, then the file, then GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context, cfg Config, logger *log.Logger) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(cfg.CredentialsJSON)
	serviceAccountFile := strings.TrimSpace(cfg.CredentialsFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		logger.DebugContext(ctx, "Using inline service account credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		logger.DebugContext(ctx, "Reading service account credentials", "path", serviceAccountFile)
		var err error
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ExportResult reports what an export wrote.
type ExportResult struct {
	Appended int      `json:"appended"`
	Skipped  int      `json:"skipped"`
	Sheets   []string `json:"sheets,omitempty"`
}

// ExportTickets appends tickets not yet present (by id, column A) to the
// sheet of their year. Rows are date, merchant, description, category and
// amount after the id.
func (c *Client) ExportTickets(ctx context.Context, tickets []core.Ticket) (ExportResult, error) {
	if c.svc == nil {
		return ExportResult{}, errors.New("sheets service not initialized")
	}

	var res ExportResult
	byYear := groupByYear(tickets, time.Now())
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	for _, year := range years {
		sheet := yearPrefixedName(c.sheetBase, year)
		existing, err := c.exportedIDs(ctx, sheet)
		if err != nil {
			return res, err
		}

		rows, skipped := ticketRows(byYear[year], existing)
		res.Skipped += skipped
		if len(rows) == 0 {
			continue
		}

		vr := &gsheet.ValueRange{Values: rows}
		_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, fmt.Sprintf("%s!A:F", sheet), vr).
			ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		if err != nil {
			return res, fmt.Errorf("append to sheet %s: %w", sheet, err)
		}
		res.Appended += len(rows)
		res.Sheets = append(res.Sheets, sheet)

		c.logger.InfoContext(ctx, "Tickets exported",
			log.NewFields().WithOperation(log.OpExport).WithCount(len(rows)).ToSlice()...)
	}
	return res, nil
}

func (c *Client) exportedIDs(ctx context.Context, sheet string) (map[int64]bool, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, fmt.Sprintf("%s!A:A", sheet)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read ids from sheet %s: %w", sheet, err)
	}
	return parseExportedIDs(resp.Values), nil
}

// parseExportedIDs collects the numeric ids found in the first column,
// ignoring headers and blanks.
func parseExportedIDs(values [][]any) map[int64]bool {
	ids := make(map[int64]bool, len(values))
	for _, row := range values {
		if len(row) == 0 {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(row[0])), 10, 64)
		if err == nil {
			ids[id] = true
		}
	}
	return ids
}

func ticketRows(tickets []core.Ticket, existing map[int64]bool) ([][]any, int) {
	rows := make([][]any, 0, len(tickets))
	skipped := 0
	for _, t := range tickets {
		if existing[t.ID] {
			skipped++
			continue
		}
		rows = append(rows, []any{
			t.ID,
			ticketDate(t).String(),
			t.Merchant,
			t.Description,
			t.Category,
			t.Amount.String(),
		})
	}
	return rows, skipped
}

// ticketDate falls back to the creation date for receipts without one.
func ticketDate(t core.Ticket) core.Date {
	if t.Date.IsZero() {
		return t.CreatedAt
	}
	return t.Date
}

func groupByYear(tickets []core.Ticket, now time.Time) map[int][]core.Ticket {
	out := make(map[int][]core.Ticket)
	for _, t := range tickets {
		year := now.Year()
		if d := ticketDate(t); !d.IsZero() {
			year = d.Year()
		}
		out[year] = append(out[year], t)
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
