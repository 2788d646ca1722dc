package fakeapi

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"fintrack/internal/core"
)

// defaultTotal is used when nothing in the file looks like a total.
var defaultTotal = core.Money{Cents: 100}

var totalPattern = regexp.MustCompile(`(?i)total[^0-9\n]{0,12}([0-9]+[.,][0-9]{2})`)

// extract is the fake OCR step. The merchant comes from the file name and
// the total from a "TOTAL 12,30" style line when the file is text.
func extract(filename string, content []byte, now time.Time) (core.Extraction, string) {
	merchant := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	merchant = strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(merchant))

	var text string
	if mimetype.Detect(content).Is("text/plain") {
		text = string(content)
	}

	total := defaultTotal
	if m := totalPattern.FindSubmatch(content); m != nil {
		if cents, err := core.ParseDecimalToCents(string(m[1])); err == nil {
			total = core.Money{Cents: cents}
		}
	}

	return core.Extraction{
		Merchant: merchant,
		Total:    total,
		Date:     core.NewDate(now.Year(), int(now.Month()), now.Day()),
	}, text
}

// amountStats aggregates any collection through the ticket statistics.
func amountStats[T any](records []T, fields func(T) (core.Money, core.Date), now time.Time) core.Stats {
	tickets := make([]core.Ticket, 0, len(records))
	for _, r := range records {
		amount, date := fields(r)
		tickets = append(tickets, core.Ticket{Amount: amount, Date: date})
	}
	return core.ComputeStats(tickets, now)
}
