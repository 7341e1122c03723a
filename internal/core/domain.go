package core

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the calendar date format used by the budgeting API.
const DateLayout = "2006-01-02"

type (
	Date struct {
		time.Time
	}

	// Knowledge is the server-issued delta cursor. Zero means full sync.
	Knowledge int64

	CategoryGroup struct {
		ID         string
		Name       string
		Hidden     bool
		Deleted    bool
		Categories []Category
	}

	Category struct {
		ID        string
		GroupID   string
		GroupName string // back-reference to the owning group
		Name      string
		Hidden    bool
		Deleted   bool
		Available Milliunits
		Budgeted  Milliunits
		Activity  Milliunits
	}

	Transaction struct {
		ID           string
		Date         Date
		PayeeName    string
		Memo         string
		Amount       Milliunits
		CategoryID   string
		CategoryName string
		Approved     bool
	}

	// BudgetSummary carries budget-wide figures shown in the report header.
	BudgetSummary struct {
		BudgetName     string
		Month          Date
		ReadyToAssign  Milliunits
		CreditCardDebt Milliunits // always >= 0
	}
)

var ErrInvalidDate = errors.New("invalid date")

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// String formats the date as YYYY-MM-DD; the zero date is empty.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MonthName returns e.g. "September 2025".
func (d Date) MonthName() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("January 2006")
}

// Visible reports whether the group should be considered for reporting.
func (g CategoryGroup) Visible() bool {
	return !g.Hidden && !g.Deleted
}

// Visible reports whether the category should be considered for reporting.
func (c Category) Visible() bool {
	return !c.Hidden && !c.Deleted
}

// Reportable reports whether a transaction may appear in a report.
func (t Transaction) Reportable() bool {
	return t.Approved && t.CategoryID != ""
}
