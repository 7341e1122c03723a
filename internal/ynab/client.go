// Package ynab is a small read-only client for the YNAB budgeting API.
//
// It covers the three reads the report needs: the category tree, recent
// transactions and the budget-wide summary. Delta requests are supported
// through last_knowledge_of_server; the client never stores the returned
// knowledge itself, callers persist it.
package ynab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"budgetreport/internal/core"
	applog "budgetreport/internal/log"
)

const (
	DefaultBaseURL = "https://api.ynab.com/v1"
	defaultTimeout = 30 * time.Second
	// maxBodyBytes caps how much of a response is read into memory.
	maxBodyBytes = 32 << 20
)

// Options configure a Client.
type Options struct {
	BaseURL  string
	Token    string
	BudgetID string
	Timeout  time.Duration
	// HTTPClient overrides the pooled default client, e.g. in tests.
	HTTPClient *http.Client
	Logger     *applog.Logger
}

type Client struct {
	baseURL  string
	token    string
	budgetID string
	http     *http.Client
	logger   *applog.Logger
}

// TransactionQuery narrows a transactions request. All fields are optional.
type TransactionQuery struct {
	SinceDate core.Date
	Knowledge core.Knowledge
	// Window bounds the full refetch that replaces a stale Knowledge delta
	// when SinceDate is zero.
	Window core.Date
}

func New(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClientWithPooling(timeout)
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	return &Client{
		baseURL:  baseURL,
		token:    opts.Token,
		budgetID: opts.BudgetID,
		http:     httpClient,
		logger:   logger.WithComponent(applog.ComponentAPI),
	}
}

// newHTTPClientWithPooling creates an HTTP client with bounded dial, TLS and
// header timeouts and keep-alive enabled.
func newHTTPClientWithPooling(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// FetchCategories returns the budget's category groups and the server
// knowledge to send next time. A non-zero knowledge asks for changes only;
// if the server's knowledge went backwards the token is stale and the full
// tree is fetched instead.
func (c *Client) FetchCategories(ctx context.Context, knowledge core.Knowledge) ([]core.CategoryGroup, core.Knowledge, error) {
	endpoint := "/budgets/" + url.PathEscape(c.budgetID) + "/categories"

	var resp categoriesResponse
	if err := c.get(ctx, endpoint, knowledgeQuery(knowledge), &resp); err != nil {
		return nil, 0, err
	}

	if knowledge > 0 && core.Knowledge(resp.Data.ServerKnowledge) < knowledge {
		c.logger.WarnContext(ctx, "Stale category knowledge, refetching full tree",
			applog.FieldKnowledge, knowledge,
			"server", resp.Data.ServerKnowledge)
		return c.FetchCategories(ctx, 0)
	}

	groups := make([]core.CategoryGroup, 0, len(resp.Data.CategoryGroups))
	for _, g := range resp.Data.CategoryGroups {
		group := core.CategoryGroup{
			ID:         g.ID,
			Name:       g.Name,
			Hidden:     g.Hidden,
			Deleted:    g.Deleted,
			Categories: make([]core.Category, 0, len(g.Categories)),
		}
		for _, cat := range g.Categories {
			groupName := cat.CategoryGroupName
			if groupName == "" {
				groupName = g.Name
			}
			group.Categories = append(group.Categories, core.Category{
				ID:        cat.ID,
				GroupID:   g.ID,
				GroupName: groupName,
				Name:      cat.Name,
				Hidden:    cat.Hidden,
				Deleted:   cat.Deleted,
				Available: core.Milliunits(cat.Balance),
				Budgeted:  core.Milliunits(cat.Budgeted),
				Activity:  core.Milliunits(cat.Activity),
			})
		}
		groups = append(groups, group)
	}

	c.logger.InfoContext(ctx, "Fetched categories",
		applog.FieldCount, len(groups),
		applog.FieldKnowledge, resp.Data.ServerKnowledge,
		"delta", knowledge > 0)

	return groups, core.Knowledge(resp.Data.ServerKnowledge), nil
}

// FetchTransactions returns approved, non-deleted transactions. Split
// transactions are flattened into one Transaction per subtransaction.
func (c *Client) FetchTransactions(ctx context.Context, q TransactionQuery) ([]core.Transaction, core.Knowledge, error) {
	endpoint := "/budgets/" + url.PathEscape(c.budgetID) + "/transactions"

	params := knowledgeQuery(q.Knowledge)
	if !q.SinceDate.IsZero() {
		params.Set("since_date", q.SinceDate.String())
	}

	var resp transactionsResponse
	if err := c.get(ctx, endpoint, params, &resp); err != nil {
		return nil, 0, err
	}

	if q.Knowledge > 0 && core.Knowledge(resp.Data.ServerKnowledge) < q.Knowledge {
		c.logger.WarnContext(ctx, "Stale transaction knowledge, refetching without delta",
			applog.FieldKnowledge, q.Knowledge,
			"server", resp.Data.ServerKnowledge)
		since := q.SinceDate
		if since.IsZero() {
			since = q.Window
		}
		return c.FetchTransactions(ctx, TransactionQuery{SinceDate: since})
	}

	var out []core.Transaction
	for _, dto := range resp.Data.Transactions {
		if !dto.Approved || dto.Deleted {
			continue
		}
		txs, err := flatten(dto)
		if err != nil {
			return nil, 0, &APIError{Endpoint: endpoint, StatusCode: http.StatusOK, Parse: err.Error()}
		}
		out = append(out, txs...)
	}

	c.logger.InfoContext(ctx, "Fetched transactions",
		applog.FieldCount, len(out),
		"received", len(resp.Data.Transactions),
		applog.FieldKnowledge, resp.Data.ServerKnowledge,
		"delta", q.Knowledge > 0)

	return out, core.Knowledge(resp.Data.ServerKnowledge), nil
}

func flatten(dto transactionDTO) ([]core.Transaction, error) {
	date, err := core.ParseDate(dto.Date)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: invalid date %q", dto.ID, dto.Date)
	}

	if len(dto.SubTransactions) == 0 {
		return []core.Transaction{{
			ID:           dto.ID,
			Date:         date,
			PayeeName:    deref(dto.PayeeName),
			Memo:         deref(dto.Memo),
			Amount:       core.Milliunits(dto.Amount),
			CategoryID:   deref(dto.CategoryID),
			CategoryName: deref(dto.CategoryName),
			Approved:     dto.Approved,
		}}, nil
	}

	out := make([]core.Transaction, 0, len(dto.SubTransactions))
	for _, sub := range dto.SubTransactions {
		if sub.Deleted {
			continue
		}
		payee := deref(sub.PayeeName)
		if payee == "" {
			payee = deref(dto.PayeeName)
		}
		memo := deref(sub.Memo)
		if memo == "" {
			memo = deref(dto.Memo)
		}
		out = append(out, core.Transaction{
			ID:           sub.ID,
			Date:         date,
			PayeeName:    payee,
			Memo:         memo,
			Amount:       core.Milliunits(sub.Amount),
			CategoryID:   deref(sub.CategoryID),
			CategoryName: deref(sub.CategoryName),
			Approved:     dto.Approved,
		})
	}
	return out, nil
}

// FetchSummary reads the budget name, the current month's ready-to-assign
// amount and the total owed on open credit-card accounts.
func (c *Client) FetchSummary(ctx context.Context) (core.BudgetSummary, error) {
	base := "/budgets/" + url.PathEscape(c.budgetID)
	var summary core.BudgetSummary

	var budget budgetResponse
	if err := c.get(ctx, base, nil, &budget); err != nil {
		return summary, err
	}
	summary.BudgetName = budget.Data.Budget.Name

	var month monthResponse
	if err := c.get(ctx, base+"/months/current", nil, &month); err != nil {
		return summary, err
	}
	if d, err := core.ParseDate(month.Data.Month.Month); err == nil {
		summary.Month = d
	}
	summary.ReadyToAssign = core.Milliunits(month.Data.Month.ToBeBudgeted)

	var accounts accountsResponse
	if err := c.get(ctx, base+"/accounts", nil, &accounts); err != nil {
		return summary, err
	}
	for _, a := range accounts.Data.Accounts {
		if a.Type != accountTypeCreditCard || a.Closed || a.Deleted {
			continue
		}
		// Credit-card balances are negative while money is owed.
		if a.Balance < 0 {
			summary.CreditCardDebt += core.Milliunits(-a.Balance)
		}
	}

	return summary, nil
}

func knowledgeQuery(k core.Knowledge) url.Values {
	params := url.Values{}
	if k > 0 {
		params.Set("last_knowledge_of_server", strconv.FormatInt(int64(k), 10))
	}
	return params
}

// get performs an authenticated GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &NetworkError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &NetworkError{Endpoint: endpoint, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.DebugContext(ctx, "Budget API request",
		"endpoint", endpoint,
		applog.FieldStatusCode, resp.StatusCode,
		applog.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
		var envelope errorResponse
		if json.Unmarshal(body, &envelope) == nil {
			apiErr.ID = envelope.Error.ID
			apiErr.Name = envelope.Error.Name
			apiErr.Detail = envelope.Error.Detail
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: truncate(string(body), 500), Parse: err.Error()}
	}
	if v, ok := out.(validator); ok {
		if err := v.validate(); err != nil {
			return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: truncate(string(body), 500), Parse: err.Error()}
		}
	}
	return nil
}
