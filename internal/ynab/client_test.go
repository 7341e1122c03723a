package ynab

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"budgetreport/internal/core"
)

const categoriesJSON = `{
  "data": {
    "server_knowledge": 42,
    "category_groups": [
      {"id": "g1", "name": "Essential", "hidden": false, "deleted": false, "categories": [
        {"id": "c1", "category_group_id": "g1", "category_group_name": "Essential", "name": "Groceries",
         "hidden": false, "deleted": false, "budgeted": 500000, "activity": -320000, "balance": 180000},
        {"id": "c2", "category_group_id": "g1", "name": "Rent",
         "hidden": false, "deleted": false, "budgeted": 0, "activity": 0, "balance": -500}
      ]},
      {"id": "g2", "name": "Fun", "hidden": true, "deleted": false, "categories": []}
    ]
  }
}`

const transactionsJSON = `{
  "data": {
    "server_knowledge": 77,
    "transactions": [
      {"id": "t1", "date": "2025-09-02", "amount": -12340, "memo": null, "approved": true,
       "payee_name": "Market", "category_id": "c1", "category_name": "Groceries", "deleted": false, "subtransactions": []},
      {"id": "t2", "date": "2025-09-03", "amount": -1000, "memo": "pending", "approved": false,
       "payee_name": "Cafe", "category_id": "c1", "category_name": "Groceries", "deleted": false},
      {"id": "t3", "date": "2025-09-03", "amount": -1000, "approved": true,
       "payee_name": "Gone", "category_id": "c1", "deleted": true},
      {"id": "t4", "date": "2025-09-04", "amount": -30000, "memo": "split", "approved": true,
       "payee_name": "Warehouse", "category_id": null, "deleted": false, "subtransactions": [
         {"id": "s1", "amount": -20000, "memo": null, "payee_name": null, "category_id": "c1", "deleted": false},
         {"id": "s2", "amount": -10000, "memo": "rent part", "payee_name": "Landlord", "category_id": "c2", "deleted": false},
         {"id": "s3", "amount": -5, "category_id": "c2", "deleted": true}
       ]}
    ]
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL, Token: "secret-token", BudgetID: "budget-1", HTTPClient: srv.Client()})
}

func TestFetchCategories(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(categoriesJSON))
	})

	groups, knowledge, err := client.FetchCategories(context.Background(), 0)
	if err != nil {
		t.Fatalf("FetchCategories() error = %v", err)
	}

	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/budgets/budget-1/categories" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "" {
		t.Errorf("full sync should send no query, got %q", gotQuery)
	}
	if knowledge != 42 {
		t.Errorf("knowledge = %d, want 42", knowledge)
	}
	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}
	if !groups[1].Hidden {
		t.Error("hidden flag should be carried through")
	}
	cats := groups[0].Categories
	if len(cats) != 2 {
		t.Fatalf("len(categories) = %d, want 2", len(cats))
	}
	if cats[0].Available != 180000 || cats[0].Budgeted != 500000 || cats[0].Activity != -320000 {
		t.Errorf("amounts = %+v", cats[0])
	}
	if cats[1].GroupName != "Essential" {
		t.Errorf("group name should fall back to the parent group, got %q", cats[1].GroupName)
	}
}

func TestFetchCategories_SendsKnowledge(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("last_knowledge_of_server")
		_, _ = w.Write([]byte(categoriesJSON))
	})

	if _, _, err := client.FetchCategories(context.Background(), 40); err != nil {
		t.Fatalf("FetchCategories() error = %v", err)
	}
	if gotQuery != "40" {
		t.Errorf("last_knowledge_of_server = %q, want 40", gotQuery)
	}
}

func TestFetchCategories_StaleKnowledgeRefetchesFull(t *testing.T) {
	var queries []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		_, _ = w.Write([]byte(categoriesJSON)) // server_knowledge 42
	})

	groups, knowledge, err := client.FetchCategories(context.Background(), 100)
	if err != nil {
		t.Fatalf("FetchCategories() error = %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("expected a delta request then a full request, got %v", queries)
	}
	if queries[0] != "last_knowledge_of_server=100" || queries[1] != "" {
		t.Errorf("queries = %v", queries)
	}
	if knowledge != 42 || len(groups) != 2 {
		t.Errorf("knowledge = %d, groups = %d", knowledge, len(groups))
	}
}

func TestFetchTransactions(t *testing.T) {
	var gotSince, gotKnowledge string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since_date")
		gotKnowledge = r.URL.Query().Get("last_knowledge_of_server")
		_, _ = w.Write([]byte(transactionsJSON))
	})

	txs, knowledge, err := client.FetchTransactions(context.Background(), TransactionQuery{SinceDate: core.NewDate(2025, 9, 1)})
	if err != nil {
		t.Fatalf("FetchTransactions() error = %v", err)
	}
	if gotSince != "2025-09-01" {
		t.Errorf("since_date = %q", gotSince)
	}
	if gotKnowledge != "" {
		t.Errorf("no knowledge should be sent, got %q", gotKnowledge)
	}
	if knowledge != 77 {
		t.Errorf("knowledge = %d, want 77", knowledge)
	}

	// t1 plus the two live subtransactions of t4.
	if len(txs) != 3 {
		t.Fatalf("len(txs) = %d, want 3: %+v", len(txs), txs)
	}
	for _, tx := range txs {
		if !tx.Approved {
			t.Errorf("unapproved transaction leaked: %+v", tx)
		}
		if tx.ID == "t2" || tx.ID == "t3" || tx.ID == "s3" {
			t.Errorf("filtered transaction leaked: %s", tx.ID)
		}
	}
	if txs[0].ID != "t1" || txs[0].PayeeName != "Market" || txs[0].Amount != -12340 || txs[0].Memo != "" {
		t.Errorf("t1 = %+v", txs[0])
	}
	s1, s2 := txs[1], txs[2]
	if s1.CategoryID != "c1" || s1.PayeeName != "Warehouse" || s1.Memo != "split" || s1.Date.String() != "2025-09-04" {
		t.Errorf("s1 should inherit parent payee, memo and date: %+v", s1)
	}
	if s2.CategoryID != "c2" || s2.PayeeName != "Landlord" || s2.Memo != "rent part" || s2.Amount != -10000 {
		t.Errorf("s2 = %+v", s2)
	}
}

func TestFetchTransactions_Delta(t *testing.T) {
	var gotKnowledge string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKnowledge = r.URL.Query().Get("last_knowledge_of_server")
		_, _ = w.Write([]byte(transactionsJSON))
	})

	_, knowledge, err := client.FetchTransactions(context.Background(), TransactionQuery{Knowledge: 50})
	if err != nil {
		t.Fatalf("FetchTransactions() error = %v", err)
	}
	if gotKnowledge != "50" {
		t.Errorf("last_knowledge_of_server = %q, want 50", gotKnowledge)
	}
	if knowledge != 77 {
		t.Errorf("knowledge = %d, want 77", knowledge)
	}
}

func TestFetchTransactions_StaleKnowledgeKeepsWindow(t *testing.T) {
	var queries []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		_, _ = w.Write([]byte(transactionsJSON)) // server_knowledge 77
	})

	_, knowledge, err := client.FetchTransactions(context.Background(), TransactionQuery{
		Knowledge: 100,
		Window:    core.NewDate(2025, 9, 8),
	})
	if err != nil {
		t.Fatalf("FetchTransactions() error = %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("expected a delta request then a bounded request, got %v", queries)
	}
	if queries[0] != "last_knowledge_of_server=100" {
		t.Errorf("first query = %q", queries[0])
	}
	if queries[1] != "since_date=2025-09-08" {
		t.Errorf("refetch query = %q, want since_date=2025-09-08", queries[1])
	}
	if knowledge != 77 {
		t.Errorf("knowledge = %d, want 77", knowledge)
	}
}

func TestFetch_Unauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"id":"401","name":"unauthorized","detail":"Unauthorized"}}`))
	})

	_, _, err := client.FetchCategories(context.Background(), 0)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
	if apiErr.Name != "unauthorized" || apiErr.Detail != "Unauthorized" {
		t.Errorf("envelope not decoded: %+v", apiErr)
	}
	if !strings.Contains(apiErr.Body, "unauthorized") {
		t.Errorf("Body = %q", apiErr.Body)
	}
	if !IsUnauthorized(err) {
		t.Error("IsUnauthorized() = false")
	}
}

func TestFetch_ServerErrorWithoutEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	_, _, err := client.FetchTransactions(context.Background(), TransactionQuery{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
	if !strings.Contains(err.Error(), "upstream exploded") {
		t.Errorf("error %q should include the body", err.Error())
	}
}

func TestFetch_MalformedJSON(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>oops</html>`},
		{"missing data", `{"something": "else"}`},
		{"wrong type", `{"data": {"category_groups": "nope"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			_, _, err := client.FetchCategories(context.Background(), 0)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *APIError", err)
			}
			if apiErr.Parse == "" {
				t.Errorf("Parse should describe the failure: %+v", apiErr)
			}
		})
	}
}

func TestFetchTransactions_BadDate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"server_knowledge":1,"transactions":[{"id":"t1","date":"yesterday","approved":true,"category_id":"c1"}]}}`))
	})

	_, _, err := client.FetchTransactions(context.Background(), TransactionQuery{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !strings.Contains(apiErr.Parse, "invalid date") {
		t.Fatalf("error = %v, want parse failure", err)
	}
}

func TestFetch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := New(Options{BaseURL: url, Token: "t", BudgetID: "b", Timeout: 2 * time.Second})
	_, _, err := client.FetchCategories(context.Background(), 0)
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("error = %v, want *NetworkError", err)
	}
	if netErr.Unwrap() == nil {
		t.Error("NetworkError should wrap the transport error")
	}
}

func TestFetchSummary(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/budgets/budget-1":
			_, _ = w.Write([]byte(`{"data":{"budget":{"id":"budget-1","name":"Household"}}}`))
		case "/budgets/budget-1/months/current":
			_, _ = w.Write([]byte(`{"data":{"month":{"month":"2025-09-01","to_be_budgeted":125500}}}`))
		case "/budgets/budget-1/accounts":
			_, _ = w.Write([]byte(`{"data":{"accounts":[
				{"id":"a1","type":"creditCard","balance":-150000,"closed":false,"deleted":false},
				{"id":"a2","type":"creditCard","balance":-20000,"closed":true,"deleted":false},
				{"id":"a3","type":"creditCard","balance":5000,"closed":false,"deleted":false},
				{"id":"a4","type":"checking","balance":-9000,"closed":false,"deleted":false},
				{"id":"a5","type":"creditCard","balance":-30000,"closed":false,"deleted":false}
			]}}`))
		default:
			http.NotFound(w, r)
		}
	})

	summary, err := client.FetchSummary(context.Background())
	if err != nil {
		t.Fatalf("FetchSummary() error = %v", err)
	}
	if summary.BudgetName != "Household" {
		t.Errorf("BudgetName = %q", summary.BudgetName)
	}
	if summary.Month.MonthName() != "September 2025" {
		t.Errorf("Month = %q", summary.Month.MonthName())
	}
	if summary.ReadyToAssign != 125500 {
		t.Errorf("ReadyToAssign = %d", summary.ReadyToAssign)
	}
	if summary.CreditCardDebt != 180000 {
		t.Errorf("CreditCardDebt = %d, want 180000", summary.CreditCardDebt)
	}
}
