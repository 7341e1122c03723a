package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"budgetreport/internal/core"
	"budgetreport/web"
)

const (
	templateName = "report.html"
	// generatedLayout matches the timestamp line of the emailed report.
	generatedLayout = "January 02, 2006 at 03:04 PM"
)

// RenderOptions control presentation only; they never change the numbers.
type RenderOptions struct {
	Title    string
	Currency core.Currency
}

// baseTemplate is parsed once; money is rebound per render for the currency.
var baseTemplate = template.Must(template.New(templateName).Funcs(template.FuncMap{
	"money":     func(core.Milliunits) string { return "" },
	"debtClass": debtClass,
}).ParseFS(web.TemplatesFS, "templates/"+templateName))

type view struct {
	Report
	Title     string
	Generated string
}

// Render produces the HTML document. Every interpolated value is escaped by
// html/template.
func Render(r Report, opts RenderOptions) (string, error) {
	t, err := baseTemplate.Clone()
	if err != nil {
		return "", fmt.Errorf("clone report template: %w", err)
	}
	t.Funcs(template.FuncMap{"money": opts.Currency.Format})

	title := opts.Title
	if title == "" {
		title = "Budget Update"
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, templateName, view{
		Report:    r,
		Title:     title,
		Generated: formatGenerated(r.GeneratedAt),
	}); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

// Subject builds "<title> - <month> - YYYY-MM-DD"; the month is left out
// when no summary was fetched.
func Subject(r Report, title string) string {
	if title == "" {
		title = "Budget Update"
	}
	date := r.GeneratedAt.Format(core.DateLayout)
	if r.Summary != nil {
		if month := r.Summary.Month.MonthName(); month != "" {
			return fmt.Sprintf("%s - %s - %s", title, month, date)
		}
	}
	return fmt.Sprintf("%s - %s", title, date)
}

// debtClass colours an amount that is bad when above zero.
func debtClass(m core.Milliunits) string {
	if m > 0 {
		return "negative"
	}
	return "positive"
}

func formatGenerated(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(generatedLayout)
}
