package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ExpenseCategory CategoryType = "expense"
	RevenueCategory CategoryType = "revenue"
)

const dateLayout = "2006-01-02"

type (
	CategoryType string

	// Record is anything the backend owns and identifies by an integer id.
	Record interface {
		RecordID() int64
	}

	Date struct {
		time.Time
	}

	Ticket struct {
		ID          int64  `json:"id"`
		Merchant    string `json:"merchant"`
		Description string `json:"description"`
		Amount      Money  `json:"amount"`
		Date        Date   `json:"date"`
		Category    string `json:"category,omitempty"`
		Text        string `json:"text,omitempty"` // raw OCR output
		CreatedAt   Date   `json:"createdAt"`
	}

	Expense struct {
		ID          int64  `json:"id"`
		Description string `json:"description"`
		Amount      Money  `json:"amount"`
		Date        Date   `json:"date"`
		Category    string `json:"category"`
		Subcategory string `json:"subcategory,omitempty"`
	}

	Revenue struct {
		ID          int64  `json:"id"`
		Description string `json:"description"`
		Amount      Money  `json:"amount"`
		Date        Date   `json:"date"`
		Source      string `json:"source,omitempty"`
	}

	Category struct {
		ID     int64        `json:"id"`
		Name   string       `json:"name"`
		Type   CategoryType `json:"type"`
		Budget Money        `json:"budget"`
		Color  string       `json:"color,omitempty"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyDescription = errors.New("empty description")
)

func (t Ticket) RecordID() int64   { return t.ID }
func (e Expense) RecordID() int64  { return e.ID }
func (r Revenue) RecordID() int64  { return r.ID }
func (c Category) RecordID() int64 { return c.ID }

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts either a plain calendar date or an RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t.UTC()}, nil
}

// String formats the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Time.Format(time.RFC3339))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, data)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalText keeps snapshot encodings readable and independent of time.Time internals.
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.Time.Format(time.RFC3339Nano)), nil
}

func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalBinary and UnmarshalBinary shadow the time.Time methods promoted
// through embedding, so every encoder sees the same text form.
func (d Date) MarshalBinary() ([]byte, error) { return d.MarshalText() }

func (d *Date) UnmarshalBinary(data []byte) error { return d.UnmarshalText(data) }

func (t Ticket) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Merchant) == "" && strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	return nil
}
