package ynab

import "errors"

// Wire types for https://api.ynab.com/v1. Amounts are milliunits.

// validator is implemented by responses whose shape is checked after decoding.
type validator interface {
	validate() error
}

type categoriesResponse struct {
	Data *struct {
		CategoryGroups  []categoryGroupDTO `json:"category_groups"`
		ServerKnowledge int64              `json:"server_knowledge"`
	} `json:"data"`
}

func (r *categoriesResponse) validate() error {
	if r.Data == nil || r.Data.CategoryGroups == nil {
		return errors.New("missing data.category_groups")
	}
	return nil
}

type categoryGroupDTO struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Hidden     bool          `json:"hidden"`
	Deleted    bool          `json:"deleted"`
	Categories []categoryDTO `json:"categories"`
}

type categoryDTO struct {
	ID                string `json:"id"`
	CategoryGroupID   string `json:"category_group_id"`
	CategoryGroupName string `json:"category_group_name"`
	Name              string `json:"name"`
	Hidden            bool   `json:"hidden"`
	Deleted           bool   `json:"deleted"`
	Budgeted          int64  `json:"budgeted"`
	Activity          int64  `json:"activity"`
	Balance           int64  `json:"balance"`
}

type transactionsResponse struct {
	Data *struct {
		Transactions    []transactionDTO `json:"transactions"`
		ServerKnowledge int64            `json:"server_knowledge"`
	} `json:"data"`
}

func (r *transactionsResponse) validate() error {
	if r.Data == nil || r.Data.Transactions == nil {
		return errors.New("missing data.transactions")
	}
	return nil
}

type transactionDTO struct {
	ID              string              `json:"id"`
	Date            string              `json:"date"`
	Amount          int64               `json:"amount"`
	Memo            *string             `json:"memo"`
	Approved        bool                `json:"approved"`
	PayeeName       *string             `json:"payee_name"`
	CategoryID      *string             `json:"category_id"`
	CategoryName    *string             `json:"category_name"`
	Deleted         bool                `json:"deleted"`
	SubTransactions []subTransactionDTO `json:"subtransactions"`
}

type subTransactionDTO struct {
	ID           string  `json:"id"`
	Amount       int64   `json:"amount"`
	Memo         *string `json:"memo"`
	PayeeName    *string `json:"payee_name"`
	CategoryID   *string `json:"category_id"`
	CategoryName *string `json:"category_name"`
	Deleted      bool    `json:"deleted"`
}

type budgetResponse struct {
	Data struct {
		Budget struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"budget"`
	} `json:"data"`
}

type monthResponse struct {
	Data struct {
		Month struct {
			Month        string `json:"month"`
			ToBeBudgeted int64  `json:"to_be_budgeted"`
		} `json:"month"`
	} `json:"data"`
}

type accountsResponse struct {
	Data struct {
		Accounts []accountDTO `json:"accounts"`
	} `json:"data"`
}

type accountDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Balance int64  `json:"balance"`
	Closed  bool   `json:"closed"`
	Deleted bool   `json:"deleted"`
}

// errorResponse is the error envelope returned with non-2xx statuses.
type errorResponse struct {
	Error struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Detail string `json:"detail"`
	} `json:"error"`
}

const accountTypeCreditCard = "creditCard"

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
