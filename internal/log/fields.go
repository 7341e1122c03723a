package log

import "errors"

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRunID       = "run_id"
	FieldOperation   = "operation"
	FieldError       = "error"
	FieldErrorType   = "error_type"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldBudgetID    = "budget_id"
	FieldKnowledge   = "server_knowledge"
	FieldPath        = "path"
	FieldCount       = "count"
	FieldRecipients  = "recipients"
	FieldRetainDays  = "retain_days"
	FieldAmountMilli = "amount_milliunits"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentConfig    = "config"
	ComponentAPI       = "budget_api"
	ComponentReport    = "report"
	ComponentArchive   = "archive"
	ComponentMailer    = "mailer"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentSheets    = "sheets"
	ComponentScheduler = "runner"
)

// Operations defines standard operation names
const (
	OpLoad     = "load"
	OpFetch    = "fetch"
	OpBuild    = "build"
	OpRender   = "render"
	OpSave     = "save"
	OpPrune    = "prune"
	OpSend     = "send"
	OpTestSMTP = "test_smtp"
	OpPublish  = "publish"
	OpAppend   = "append"
	OpPersist  = "persist"
	OpValidate = "validate"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeAPI           = "api_error"
	ErrorTypeStorage       = "storage_error"
	ErrorTypeMail          = "mail_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeTimeout       = "timeout_error"
	ErrorTypeInternal      = "internal_error"
)

// Typed is implemented by error kinds that know their ErrorType category.
type Typed interface {
	error
	ErrorType() string
}

// ErrorType returns the category of the first typed error in err's chain,
// or ErrorTypeInternal.
func ErrorType(err error) string {
	var typed Typed
	if errors.As(err, &typed) {
		return typed.ErrorType()
	}
	return ErrorTypeInternal
}

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithError adds the error message and its category
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		f[FieldErrorType] = ErrorType(err)
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// With adds an arbitrary field
func (f LogFields) With(key string, value any) LogFields {
	f[key] = value
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
