package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	applog "budgetreport/internal/log"
)

// Environment variable names.
const (
	EnvAPIToken        = "YNAB_API_TOKEN"
	EnvBudgetID        = "BUDGET_ID"
	EnvEmailHost       = "EMAIL_HOST"
	EnvEmailUser       = "EMAIL_USER"
	EnvEmailPass       = "EMAIL_PASS"
	EnvToEmail         = "TO_EMAIL"
	EnvIncludedGroups  = "INCLUDED_GROUPS"
	EnvEmailPort       = "EMAIL_PORT"
	EnvEmailFrom       = "EMAIL_FROM"
	EnvEmailFromName   = "EMAIL_FROM_NAME"
	EnvEmailTLS        = "EMAIL_TLS"
	EnvEmailTimeout    = "EMAIL_TIMEOUT"
	EnvReportPath      = "REPORT_PATH"
	EnvRetainDays      = "RETAIN_REPORT_DAYS"
	EnvReportTitle     = "REPORT_TITLE"
	EnvBaseURL         = "YNAB_BASE_URL"
	EnvAPITimeout      = "YNAB_TIMEOUT"
	EnvTransactionDays = "TRANSACTION_DAYS"
	EnvCreditCardGroup = "CREDIT_CARD_GROUPS"
	EnvCurrency        = "CURRENCY"
	EnvStateDBPath     = "STATE_DB_PATH"
	EnvLogFile         = "LOG_FILE"
	EnvLogLevel        = "LOG_LEVEL"
	EnvNotifyFailure   = "NOTIFY_ON_FAILURE"
	EnvAMQPURL         = "AMQP_URL"
	EnvAMQPExchange    = "AMQP_EXCHANGE"
	EnvAMQPQueue       = "AMQP_QUEUE"
	EnvSpreadsheetID   = "GOOGLE_SPREADSHEET_ID"
	EnvSheetName       = "GOOGLE_SHEET_NAME"
	EnvServiceAcctJSON = "GOOGLE_SERVICE_ACCOUNT_JSON"
	EnvServiceAcctFile = "GOOGLE_SERVICE_ACCOUNT_FILE"
)

// TLS modes for the SMTP connection.
const (
	TLSModeStartTLS = "starttls"
	TLSModeImplicit = "tls"
)

// requiredKeys lists settings without a usable default, in reporting order.
var requiredKeys = []string{
	EnvAPIToken,
	EnvBudgetID,
	EnvEmailHost,
	EnvEmailUser,
	EnvEmailPass,
	EnvToEmail,
	EnvIncludedGroups,
}

type Config struct {
	// Budgeting API
	APIToken        string
	BudgetID        string
	BaseURL         string
	APITimeout      time.Duration
	TransactionDays int

	// SMTP
	EmailHost     string
	EmailPort     int
	EmailUser     string
	EmailPass     string
	EmailFrom     string
	EmailFromName string
	EmailTLS      string
	EmailTimeout  time.Duration
	Recipients    []string

	// Report
	IncludedGroups   []string
	CreditCardGroups []string
	ReportPath       string
	RetainDays       int
	ReportTitle      string
	Currency         string
	NotifyOnFailure  bool

	// State and logging
	StateDBPath string
	LogFile     string
	LogLevel    string

	// AMQP (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets ledger (optional)
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	// Inline JSON wins over the file path when both are set.
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// missing holds required keys that were absent or blank at Load time.
	missing []string
	// invalid holds optional keys whose value could not be parsed.
	invalid []invalidValue
}

type invalidValue struct {
	key     string
	problem string
}

// Error is returned when required settings are missing or values are invalid.
type Error struct {
	Missing  []string
	Problems []string
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required environment variables: "+strings.Join(e.Missing, ", "))
	}
	parts = append(parts, e.Problems...)
	return "configuration validation failed:\n- " + strings.Join(parts, "\n- ")
}

func (e *Error) ErrorType() string { return applog.ErrorTypeConfiguration }

// Load reads the configuration from the process environment. It never fails;
// call Validate before using the result.
func Load() *Config {
	cfg := &Config{
		APIToken:        getEnv(EnvAPIToken, ""),
		BudgetID:        getEnv(EnvBudgetID, ""),
		BaseURL:         strings.TrimRight(getEnv(EnvBaseURL, "https://api.ynab.com/v1"), "/"),

		EmailHost:     getEnv(EnvEmailHost, ""),
		EmailUser:     getEnv(EnvEmailUser, ""),
		EmailPass:     getEnv(EnvEmailPass, ""),
		EmailFromName: getEnv(EnvEmailFromName, "Budget Update"),
		Recipients:    SplitList(os.Getenv(EnvToEmail)),

		IncludedGroups:   SplitList(os.Getenv(EnvIncludedGroups)),
		CreditCardGroups: SplitList(getEnv(EnvCreditCardGroup, "Credit Card Payments")),
		ReportPath:       getEnv(EnvReportPath, workingDir()),
		ReportTitle:      getEnv(EnvReportTitle, "Budget Update"),
		Currency:         getEnv(EnvCurrency, "USD"),

		StateDBPath: getEnv(EnvStateDBPath, "./data/budget-report.db"),
		LogFile:     getEnv(EnvLogFile, "budget_report.log"),
		LogLevel:    strings.ToLower(getEnv(EnvLogLevel, "info")),

		AMQPURL:      getEnv(EnvAMQPURL, ""),
		AMQPExchange: getEnv(EnvAMQPExchange, "budget"),
		AMQPQueue:    getEnv(EnvAMQPQueue, "report_generated"),

		GoogleSpreadsheetID: getEnv(EnvSpreadsheetID, ""),
		GoogleSheetName:     getEnv(EnvSheetName, "Reports"),

		GoogleServiceAccountJSON: getEnv(EnvServiceAcctJSON, ""),
		GoogleServiceAccountFile: getEnv(EnvServiceAcctFile, os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
	}

	cfg.EmailFrom = getEnv(EnvEmailFrom, cfg.EmailUser)

	cfg.APITimeout = cfg.durationEnv(EnvAPITimeout, 30*time.Second)
	cfg.TransactionDays = cfg.intEnv(EnvTransactionDays, 1)
	cfg.EmailPort = cfg.intEnv(EnvEmailPort, 587)
	cfg.EmailTimeout = cfg.durationEnv(EnvEmailTimeout, 60*time.Second)
	cfg.RetainDays = cfg.intEnv(EnvRetainDays, 30)
	cfg.NotifyOnFailure = cfg.boolEnv(EnvNotifyFailure, false)

	defaultTLS := TLSModeStartTLS
	if cfg.EmailPort == 465 {
		defaultTLS = TLSModeImplicit
	}
	cfg.EmailTLS = strings.ToLower(getEnv(EnvEmailTLS, defaultTLS))

	for _, key := range requiredKeys {
		if strings.TrimSpace(os.Getenv(key)) == "" {
			cfg.missing = append(cfg.missing, key)
		}
	}
	// A list made only of commas and blanks is as good as absent.
	if len(cfg.Recipients) == 0 && !contains(cfg.missing, EnvToEmail) {
		cfg.missing = append(cfg.missing, EnvToEmail)
	}
	if len(cfg.IncludedGroups) == 0 && !contains(cfg.missing, EnvIncludedGroups) {
		cfg.missing = append(cfg.missing, EnvIncludedGroups)
	}

	return cfg
}

// Validate validates the configuration and returns a *Error if invalid
func (c *Config) Validate() error {
	var problems []string
	for _, iv := range c.invalid {
		problems = append(problems, iv.problem)
	}

	if c.EmailPort < 1 || c.EmailPort > 65535 {
		problems = append(problems, fmt.Sprintf("invalid email port %d: must be between 1 and 65535", c.EmailPort))
	}

	if c.EmailTLS != TLSModeStartTLS && c.EmailTLS != TLSModeImplicit {
		problems = append(problems, fmt.Sprintf("invalid email TLS mode '%s': must be '%s' or '%s'", c.EmailTLS, TLSModeStartTLS, TLSModeImplicit))
	}

	if c.RetainDays < 0 {
		problems = append(problems, fmt.Sprintf("invalid retention %d days: must not be negative", c.RetainDays))
	}

	if c.TransactionDays < 0 {
		problems = append(problems, fmt.Sprintf("invalid transaction window %d days: must not be negative", c.TransactionDays))
	}

	if parsedURL, err := url.Parse(c.BaseURL); err != nil {
		problems = append(problems, fmt.Sprintf("invalid API base URL '%s': %v", c.BaseURL, err))
	} else if parsedURL.Scheme != "https" && parsedURL.Scheme != "http" {
		problems = append(problems, fmt.Sprintf("invalid API base URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			problems = append(problems, "Google Sheet name is required when GOOGLE_SPREADSHEET_ID is set")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			problems = append(problems, "Google service account credentials are required when GOOGLE_SPREADSHEET_ID is set")
		}
	}

	if len(c.missing) > 0 || len(problems) > 0 {
		return &Error{Missing: append([]string(nil), c.missing...), Problems: problems}
	}
	return nil
}

// ValidateSMTP checks only the settings needed for a connection test.
func (c *Config) ValidateSMTP() error {
	var missing []string
	for _, kv := range []struct{ key, value string }{
		{EnvEmailHost, c.EmailHost},
		{EnvEmailUser, c.EmailUser},
		{EnvEmailPass, c.EmailPass},
	} {
		if strings.TrimSpace(kv.value) == "" {
			missing = append(missing, kv.key)
		}
	}
	var problems []string
	for _, iv := range c.invalid {
		if iv.key == EnvEmailPort || iv.key == EnvEmailTimeout {
			problems = append(problems, iv.problem)
		}
	}
	if c.EmailPort < 1 || c.EmailPort > 65535 {
		problems = append(problems, fmt.Sprintf("invalid email port %d: must be between 1 and 65535", c.EmailPort))
	}
	if c.EmailTLS != TLSModeStartTLS && c.EmailTLS != TLSModeImplicit {
		problems = append(problems, fmt.Sprintf("invalid email TLS mode '%s': must be '%s' or '%s'", c.EmailTLS, TLSModeStartTLS, TLSModeImplicit))
	}
	if len(missing) > 0 || len(problems) > 0 {
		return &Error{Missing: missing, Problems: problems}
	}
	return nil
}

// SplitList splits a comma-separated value into trimmed, non-empty tokens.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// The typed readers below keep the default for an unset key. A set but
// malformed value also keeps the default and is reported by Validate.

func (c *Config) intEnv(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		c.reject(key, value, "must be a number")
		return defaultValue
	}
	return i
}

func (c *Config) boolEnv(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		c.reject(key, value, "must be true or false")
		return defaultValue
	}
	return b
}

func (c *Config) durationEnv(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		c.reject(key, value, "must be a duration such as 30s")
		return defaultValue
	}
	return d
}

func (c *Config) reject(key, value, reason string) {
	c.invalid = append(c.invalid, invalidValue{
		key:     key,
		problem: fmt.Sprintf("invalid %s '%s': %s", key, value, reason),
	})
}

func workingDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
