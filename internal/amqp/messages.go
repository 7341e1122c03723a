package amqp

import (
	"encoding/json"
	"time"
)

// MessageTypeReportGenerated identifies ReportGeneratedMessage payloads.
const MessageTypeReportGenerated = "report.generated"

// ReportGeneratedMessage announces a report that was saved and mailed.
// Amounts are milliunits.
type ReportGeneratedMessage struct {
	Type                 string    `json:"type"`
	RunID                string    `json:"run_id"`
	BudgetID             string    `json:"budget_id"`
	BudgetName           string    `json:"budget_name,omitempty"`
	Subject              string    `json:"subject"`
	ReportPath           string    `json:"report_path"`
	Recipients           int       `json:"recipients"`
	CategoryCount        int       `json:"category_count"`
	TransactionCount     int       `json:"transaction_count"`
	TotalAvailable       int64     `json:"total_available"`
	NegativeBalanceCount int       `json:"negative_balance_count"`
	CreditCardDebtCount  int       `json:"credit_card_debt_count"`
	GeneratedAt          time.Time `json:"generated_at"`
}

// ToJSON converts the message to JSON bytes
func (m *ReportGeneratedMessage) ToJSON() ([]byte, error) {
	if m.Type == "" {
		m.Type = MessageTypeReportGenerated
	}
	return json.Marshal(m)
}

// ReportGeneratedMessageFromJSON decodes a message published by Publish.
func ReportGeneratedMessageFromJSON(data []byte) (*ReportGeneratedMessage, error) {
	var msg ReportGeneratedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
