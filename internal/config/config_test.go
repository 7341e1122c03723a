package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	applog "budgetreport/internal/log"
)

// allKeys covers every variable Load reads so tests start from a clean slate.
var allKeys = []string{
	EnvAPIToken, EnvBudgetID, EnvEmailHost, EnvEmailUser, EnvEmailPass, EnvToEmail,
	EnvIncludedGroups, EnvEmailPort, EnvEmailFrom, EnvEmailFromName, EnvEmailTLS,
	EnvEmailTimeout, EnvReportPath, EnvRetainDays, EnvReportTitle, EnvBaseURL,
	EnvAPITimeout, EnvTransactionDays, EnvCreditCardGroup, EnvCurrency, EnvStateDBPath,
	EnvLogFile, EnvLogLevel, EnvNotifyFailure, EnvAMQPURL, EnvAMQPExchange, EnvAMQPQueue,
	EnvSpreadsheetID, EnvSheetName, EnvServiceAcctJSON, EnvServiceAcctFile,
	"GOOGLE_APPLICATION_CREDENTIALS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv(EnvAPIToken, "token")
	t.Setenv(EnvBudgetID, "budget-1")
	t.Setenv(EnvEmailHost, "smtp.example.com")
	t.Setenv(EnvEmailUser, "user@example.com")
	t.Setenv(EnvEmailPass, "secret")
	t.Setenv(EnvToEmail, "a@example.com, b@example.com")
	t.Setenv(EnvIncludedGroups, "Essential, Medical")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.EmailPort != 587 {
		t.Errorf("EmailPort = %d, want 587", cfg.EmailPort)
	}
	if cfg.EmailTLS != TLSModeStartTLS {
		t.Errorf("EmailTLS = %q, want %q", cfg.EmailTLS, TLSModeStartTLS)
	}
	if cfg.RetainDays != 30 {
		t.Errorf("RetainDays = %d, want 30", cfg.RetainDays)
	}
	if cfg.ReportPath == "" {
		t.Error("ReportPath should default to the working directory")
	}
	if cfg.EmailFrom != "user@example.com" {
		t.Errorf("EmailFrom = %q, want EMAIL_USER", cfg.EmailFrom)
	}
	if cfg.BaseURL != "https://api.ynab.com/v1" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.APITimeout != 30*time.Second {
		t.Errorf("APITimeout = %v, want 30s", cfg.APITimeout)
	}
	if cfg.TransactionDays != 1 {
		t.Errorf("TransactionDays = %d, want 1", cfg.TransactionDays)
	}
	if len(cfg.CreditCardGroups) != 1 || cfg.CreditCardGroups[0] != "Credit Card Payments" {
		t.Errorf("CreditCardGroups = %v", cfg.CreditCardGroups)
	}
	if cfg.NotifyOnFailure {
		t.Error("NotifyOnFailure should default to false")
	}
	want := []string{"a@example.com", "b@example.com"}
	if strings.Join(cfg.Recipients, "|") != strings.Join(want, "|") {
		t.Errorf("Recipients = %v, want %v", cfg.Recipients, want)
	}
	if strings.Join(cfg.IncludedGroups, "|") != "Essential|Medical" {
		t.Errorf("IncludedGroups = %v", cfg.IncludedGroups)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv(EnvEmailPort, "465")
	t.Setenv(EnvReportPath, "/tmp/reports")
	t.Setenv(EnvRetainDays, "7")
	t.Setenv(EnvBaseURL, "http://localhost:9999/v1/")
	t.Setenv(EnvAPITimeout, "5s")
	t.Setenv(EnvNotifyFailure, "true")

	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.EmailPort != 465 {
		t.Errorf("EmailPort = %d, want 465", cfg.EmailPort)
	}
	if cfg.EmailTLS != TLSModeImplicit {
		t.Errorf("EmailTLS = %q, want implicit TLS on port 465", cfg.EmailTLS)
	}
	if cfg.ReportPath != "/tmp/reports" {
		t.Errorf("ReportPath = %q", cfg.ReportPath)
	}
	if cfg.RetainDays != 7 {
		t.Errorf("RetainDays = %d, want 7", cfg.RetainDays)
	}
	if cfg.BaseURL != "http://localhost:9999/v1" {
		t.Errorf("BaseURL = %q, trailing slash should be trimmed", cfg.BaseURL)
	}
	if cfg.APITimeout != 5*time.Second {
		t.Errorf("APITimeout = %v", cfg.APITimeout)
	}
	if !cfg.NotifyOnFailure {
		t.Error("NotifyOnFailure should be true")
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	for _, key := range requiredKeys {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			setRequired(t)
			t.Setenv(key, "")

			err := Load().Validate()
			var cfgErr *Error
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() error = %v, want *config.Error", err)
			}
			if len(cfgErr.Missing) != 1 || cfgErr.Missing[0] != key {
				t.Errorf("Missing = %v, want [%s]", cfgErr.Missing, key)
			}
			if !strings.Contains(err.Error(), key) {
				t.Errorf("error %q should name %s", err.Error(), key)
			}
		})
	}
}

func TestValidate_BlankListIsMissing(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv(EnvIncludedGroups, " , ,")

	err := Load().Validate()
	var cfgErr *Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *config.Error, got %v", err)
	}
	if len(cfgErr.Missing) != 1 || cfgErr.Missing[0] != EnvIncludedGroups {
		t.Errorf("Missing = %v", cfgErr.Missing)
	}
}

func TestValidate_AllMissing(t *testing.T) {
	clearEnv(t)

	err := Load().Validate()
	var cfgErr *Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *config.Error, got %v", err)
	}
	if len(cfgErr.Missing) != len(requiredKeys) {
		t.Errorf("Missing = %v, want all %d required keys", cfgErr.Missing, len(requiredKeys))
	}
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		errorString string
	}{
		{
			name:        "non-numeric port",
			env:         map[string]string{EnvEmailPort: "abc"},
			errorString: "invalid EMAIL_PORT 'abc': must be a number",
		},
		{
			name:        "non-numeric transaction window",
			env:         map[string]string{EnvTransactionDays: "abc"},
			errorString: "invalid TRANSACTION_DAYS 'abc': must be a number",
		},
		{
			name:        "malformed api timeout",
			env:         map[string]string{EnvAPITimeout: "soon"},
			errorString: "invalid YNAB_TIMEOUT 'soon': must be a duration",
		},
		{
			name:        "malformed email timeout",
			env:         map[string]string{EnvEmailTimeout: "x"},
			errorString: "invalid EMAIL_TIMEOUT 'x': must be a duration",
		},
		{
			name:        "malformed failure notice flag",
			env:         map[string]string{EnvNotifyFailure: "maybe"},
			errorString: "invalid NOTIFY_ON_FAILURE 'maybe': must be true or false",
		},
		{
			name:        "port out of range",
			env:         map[string]string{EnvEmailPort: "70000"},
			errorString: "invalid email port 70000: must be between 1 and 65535",
		},
		{
			name:        "non-numeric retention",
			env:         map[string]string{EnvRetainDays: "forever"},
			errorString: "invalid RETAIN_REPORT_DAYS 'forever': must be a number",
		},
		{
			name:        "negative retention",
			env:         map[string]string{EnvRetainDays: "-1"},
			errorString: "invalid retention -1 days: must not be negative",
		},
		{
			name:        "bad tls mode",
			env:         map[string]string{EnvEmailTLS: "ssl3"},
			errorString: "invalid email TLS mode 'ssl3'",
		},
		{
			name:        "bad base url scheme",
			env:         map[string]string{EnvBaseURL: "ftp://example.com"},
			errorString: "invalid API base URL scheme 'ftp'",
		},
		{
			name:        "bad amqp scheme",
			env:         map[string]string{EnvAMQPURL: "http://localhost:5672/"},
			errorString: "invalid AMQP URL scheme 'http': must be 'amqp' or 'amqps'",
		},
		{
			name:        "spreadsheet without credentials",
			env:         map[string]string{EnvSpreadsheetID: "sheet-123"},
			errorString: "Google service account credentials are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			err := Load().Validate()
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.errorString)
			}
			if !strings.Contains(err.Error(), tt.errorString) {
				t.Errorf("Validate() error = %v, want error containing %v", err.Error(), tt.errorString)
			}
		})
	}
}

func TestError_ErrorType(t *testing.T) {
	clearEnv(t)
	err := Load().Validate()
	if got := applog.ErrorType(err); got != applog.ErrorTypeConfiguration {
		t.Errorf("ErrorType() = %q, want %q", got, applog.ErrorTypeConfiguration)
	}
}

func TestValidateSMTP(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvEmailHost, "smtp.example.com")
	t.Setenv(EnvEmailUser, "user")
	t.Setenv(EnvEmailPass, "pass")

	cfg := Load()
	if err := cfg.ValidateSMTP(); err != nil {
		t.Fatalf("ValidateSMTP() error = %v, API settings should not be required", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("full Validate() should still fail without API settings")
	}

	t.Setenv(EnvEmailPass, "")
	err := Load().ValidateSMTP()
	var cfgErr *Error
	if !errors.As(err, &cfgErr) || len(cfgErr.Missing) != 1 || cfgErr.Missing[0] != EnvEmailPass {
		t.Fatalf("ValidateSMTP() error = %v, want missing EMAIL_PASS", err)
	}
}

func TestValidateSMTP_MalformedMailValues(t *testing.T) {
	for _, key := range []string{EnvEmailPort, EnvEmailTimeout} {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(EnvEmailHost, "smtp.example.com")
			t.Setenv(EnvEmailUser, "user")
			t.Setenv(EnvEmailPass, "pass")
			t.Setenv(key, "bogus")

			err := Load().ValidateSMTP()
			if err == nil || !strings.Contains(err.Error(), "invalid "+key+" 'bogus'") {
				t.Errorf("ValidateSMTP() error = %v, want %s rejected", err, key)
			}
		})
	}

	clearEnv(t)
	t.Setenv(EnvEmailHost, "smtp.example.com")
	t.Setenv(EnvEmailUser, "user")
	t.Setenv(EnvEmailPass, "pass")
	t.Setenv(EnvTransactionDays, "bogus")
	if err := Load().ValidateSMTP(); err != nil {
		t.Errorf("ValidateSMTP() error = %v, non-mail settings should be ignored", err)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{" a , b ,, c ", []string{"a", "b", "c"}},
		{"Quality of Life,Wishful Savings", []string{"Quality of Life", "Wishful Savings"}},
		{",,,", nil},
	}
	for _, tt := range tests {
		got := SplitList(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("SplitList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
