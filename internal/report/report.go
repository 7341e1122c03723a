// Package report turns fetched budget data into the emailed summary.
//
// Build is pure: it filters the category tree to the tracked groups, computes
// the headline statistics and associates transactions with their categories.
// Render and WriteConsole present a built Report as HTML or terminal tables.
package report

import (
	"sort"
	"strings"
	"time"

	"budgetreport/internal/core"
)

// creditCardMarker flags a category as credit-card debt by name.
const creditCardMarker = "credit card"

// Options control which parts of the budget a report covers.
type Options struct {
	// IncludedGroups are matched exactly against group names.
	IncludedGroups []string
	// CreditCardGroups name groups whose negative categories count as card debt.
	CreditCardGroups []string
	GeneratedAt      time.Time
	// Summary is optional; nil renders the report without the budget header.
	Summary *core.BudgetSummary
}

// Stats are the figures derived from the retained categories.
type Stats struct {
	TotalAvailable       core.Milliunits
	NegativeBalanceCount int
	CreditCardDebtCount  int
	NegativeBalanceTotal core.Milliunits
	PositiveBalanceCount int
	CategoryCount        int
}

// Report is the built, immutable input to the renderers.
type Report struct {
	GeneratedAt time.Time
	Groups      []core.CategoryGroup
	// ByCategory holds each retained category's transactions, newest first.
	ByCategory map[string][]core.Transaction
	// Recent is every associated transaction, newest first.
	Recent  []core.Transaction
	Stats   Stats
	Summary *core.BudgetSummary
}

// Build filters groups to the included set and attaches matching transactions.
// Group and category order follows the input. Transactions whose category is
// not retained are dropped.
func Build(groups []core.CategoryGroup, txs []core.Transaction, opts Options) Report {
	included := toSet(opts.IncludedGroups)
	cardGroups := toSet(opts.CreditCardGroups)

	r := Report{
		GeneratedAt: opts.GeneratedAt,
		ByCategory:  make(map[string][]core.Transaction),
		Summary:     opts.Summary,
	}

	for _, g := range groups {
		if _, ok := included[g.Name]; !ok || !g.Visible() {
			continue
		}
		kept := core.CategoryGroup{ID: g.ID, Name: g.Name}
		for _, c := range g.Categories {
			if !c.Visible() {
				continue
			}
			kept.Categories = append(kept.Categories, c)
			r.Stats.add(c, isCreditCard(g.Name, c.Name, cardGroups))
			r.ByCategory[c.ID] = nil
		}
		r.Groups = append(r.Groups, kept)
	}

	for _, tx := range txs {
		if !tx.Reportable() {
			continue
		}
		list, ok := r.ByCategory[tx.CategoryID]
		if !ok {
			continue
		}
		r.ByCategory[tx.CategoryID] = append(list, tx)
		r.Recent = append(r.Recent, tx)
	}

	for id, list := range r.ByCategory {
		sortNewestFirst(list)
		r.ByCategory[id] = list
	}
	sortNewestFirst(r.Recent)

	return r
}

func (s *Stats) add(c core.Category, creditCard bool) {
	s.CategoryCount++
	s.TotalAvailable += c.Available
	switch {
	case c.Available < 0:
		s.NegativeBalanceCount++
		s.NegativeBalanceTotal += c.Available.Abs()
		if creditCard {
			s.CreditCardDebtCount++
		}
	case c.Available > 0:
		s.PositiveBalanceCount++
	}
}

// TransactionsFor returns the transactions associated with a category.
func (r Report) TransactionsFor(categoryID string) []core.Transaction {
	return r.ByCategory[categoryID]
}

// HasNegativeBalances reports whether any category needs money moved into it.
func (r Report) HasNegativeBalances() bool {
	return r.Stats.NegativeBalanceCount > 0
}

func isCreditCard(groupName, categoryName string, cardGroups map[string]struct{}) bool {
	if _, ok := cardGroups[groupName]; ok {
		return true
	}
	return strings.Contains(strings.ToLower(categoryName), creditCardMarker)
}

// sortNewestFirst orders by date descending; equal dates keep input order.
func sortNewestFirst(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.After(txs[j].Date.Time)
	})
}

func toSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, s := range list {
		set[s] = struct{}{}
	}
	return set
}
