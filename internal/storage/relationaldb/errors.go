package relationaldb

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType groups database failures by layer. Services translate them
// into the domain taxonomy at the boundary; the manager uses them to
// decide retryability.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeConfiguration
	ErrorTypeConnection
	ErrorTypeTransaction
	ErrorTypeData
	ErrorTypeConstraint
	ErrorTypeQuery
	ErrorTypeSchema
)

// Configuration sentinels, returned by Config.Validate.
var (
	ErrMissingHost            = errors.New("database host is required")
	ErrMissingDatabase        = errors.New("database name is required")
	ErrMissingUsername        = errors.New("database username is required")
	ErrInvalidPort            = errors.New("invalid database port")
	ErrInvalidMaxOpenConns    = errors.New("max open connections must be >= 0")
	ErrInvalidMaxIdleConns    = errors.New("max idle connections must be >= 0")
	ErrMaxIdleExceedsMaxOpen  = errors.New("max idle connections cannot exceed max open connections")
	ErrInvalidTimeout         = errors.New("timeout must be positive")
	ErrInvalidConnMaxLifetime = errors.New("connection max lifetime must be >= 0")
	ErrInvalidConnMaxIdleTime = errors.New("connection max idle time must be >= 0")
	ErrInvalidMaxRetries      = errors.New("max retries must be >= 0")
	ErrInvalidRetryDelay      = errors.New("retry delay must be >= 0")
	ErrInvalidRetryMaxDelay   = errors.New("retry max delay must be >= retry delay")
)

// Lifecycle sentinels.
var (
	ErrDatabaseClosed    = errors.New("database connection is closed")
	ErrTransactionClosed = errors.New("transaction is closed")
)

// Row sentinels. Repositories return them through NewNotFoundError so
// both the specific sentinel and the generic ErrNotFound match.
var (
	ErrNotFound          = errors.New("row not found")
	ErrAccountNotFound   = errors.New("account not found")
	ErrUserTagNotFound   = errors.New("user tag not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrRoleNotFound      = errors.New("user role not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrTaxRateNotFound   = errors.New("tax rate not found")
	ErrTillNotFound      = errors.New("till not found")
	ErrProfileNotFound   = errors.New("till profile not found")
	ErrLayoutNotFound    = errors.New("till layout not found")
	ErrButtonNotFound    = errors.New("till button not found")
	ErrRegisterNotFound  = errors.New("cash register not found")
	ErrStockingNotFound  = errors.New("cash register stocking not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrBonNotFound       = errors.New("bon not found")
	ErrCustomerNotFound  = errors.New("customer not found")
	ErrPayoutRunNotFound = errors.New("payout run not found")
	ErrTSENotFound       = errors.New("tse not found")
	ErrShiftNotFound     = errors.New("cashier shift not found")
	ErrConfigKeyNotFound = errors.New("config key not found")
)

// Data and constraint sentinels.
var (
	ErrInsufficientFunds   = errors.New("source account has insufficient funds")
	ErrInvalidDataFormat   = errors.New("invalid data format")
	ErrUniqueViolation     = errors.New("unique constraint violation")
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")
)

// DatabaseError is the error type every repository returns. Type and
// Code drive matching; Operation names the repository method for logs.
type DatabaseError struct {
	Type      ErrorType              `json:"type"`
	Operation string                 `json:"operation"`
	Message   string                 `json:"message"`
	Cause     error                  `json:"cause,omitempty"`
	Code      string                 `json:"code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
}

func (e *DatabaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

func (e *DatabaseError) Unwrap() error {
	return e.Cause
}

// Is matches sentinels against the error's type and code, so callers
// can use errors.Is without knowing how the error was constructed.
func (e *DatabaseError) Is(target error) bool {
	switch target {
	case nil:
		return false
	case ErrNotFound:
		return e.Type == ErrorTypeData && strings.Contains(e.Code, "NOT_FOUND")
	case ErrInsufficientFunds:
		return e.Type == ErrorTypeData && e.Code == "INSUFFICIENT_FUNDS"
	case ErrTransactionClosed:
		return e.Type == ErrorTypeTransaction && e.Code == "TRANSACTION_CLOSED"
	case ErrUniqueViolation:
		return e.Type == ErrorTypeConstraint && e.Code == "UNIQUE_VIOLATION"
	case ErrForeignKeyViolation:
		return e.Type == ErrorTypeConstraint && e.Code == "FOREIGN_KEY_VIOLATION"
	}
	if dbErr, ok := target.(*DatabaseError); ok {
		return e.Type == dbErr.Type && e.Message == dbErr.Message
	}
	return false
}

// WithDetail attaches a key-value pair for logging.
func (e *DatabaseError) WithDetail(key string, value interface{}) *DatabaseError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCode sets the machine-readable code used by Is.
func (e *DatabaseError) WithCode(code string) *DatabaseError {
	e.Code = code
	return e
}

// IsRetryable reports whether retrying the operation can succeed.
func (e *DatabaseError) IsRetryable() bool {
	return e.Retryable
}

func newError(errorType ErrorType, operation, message string, cause error) *DatabaseError {
	return &DatabaseError{
		Type:      errorType,
		Operation: operation,
		Message:   message,
		Cause:     cause,
		Retryable: retryableByType(errorType, cause),
	}
}

// NewConfigurationError reports an invalid connection configuration.
func NewConfigurationError(operation, message string, cause error) *DatabaseError {
	return newError(ErrorTypeConfiguration, operation, message, cause)
}

// NewConnectionError reports a failure reaching the database.
func NewConnectionError(operation, message string, cause error) *DatabaseError {
	return newError(ErrorTypeConnection, operation, message, cause)
}

// NewTransactionError reports a begin/commit/rollback failure.
func NewTransactionError(operation, message string, cause error) *DatabaseError {
	return newError(ErrorTypeTransaction, operation, message, cause)
}

// NewDataError reports missing or malformed row data.
func NewDataError(operation, message string, cause error) *DatabaseError {
	return newError(ErrorTypeData, operation, message, cause)
}

// NewConstraintError reports a constraint violation; callers attach the
// violation code (UNIQUE_VIOLATION, FOREIGN_KEY_VIOLATION, ...).
func NewConstraintError(operation, message string, cause error) *DatabaseError {
	return newError(ErrorTypeConstraint, operation, message, cause)
}

// NewQueryError reports a failed statement.
func NewQueryError(operation, message string, cause error) *DatabaseError {
	return newError(ErrorTypeQuery, operation, message, cause)
}

// NewSchemaError reports a schema initialization failure.
func NewSchemaError(operation, message string, cause error) *DatabaseError {
	return newError(ErrorTypeSchema, operation, message, cause)
}

// NewNotFoundError builds a data error carrying the given row sentinel
// and code, so errors.Is matches both the sentinel and ErrNotFound.
func NewNotFoundError(operation string, sentinel error, code string) *DatabaseError {
	return NewDataError(operation, sentinel.Error(), sentinel).WithCode(code)
}

// retryableByType classifies retryability at construction time.
// Connection failures always warrant a retry; transaction and query
// failures only for transient causes.
func retryableByType(errorType ErrorType, cause error) bool {
	msg := ""
	if cause != nil {
		msg = strings.ToLower(cause.Error())
	}
	switch errorType {
	case ErrorTypeConnection:
		return true
	case ErrorTypeTransaction:
		return strings.Contains(msg, "deadlock") || strings.Contains(msg, "timeout") ||
			strings.Contains(msg, "connection") || strings.Contains(msg, "serialize")
	case ErrorTypeQuery:
		return strings.Contains(msg, "timeout") || strings.Contains(msg, "cancel")
	default:
		return false
	}
}

// IsConstraintError reports whether err is any constraint violation.
func IsConstraintError(err error) bool {
	var dbErr *DatabaseError
	return errors.As(err, &dbErr) && dbErr.Type == ErrorTypeConstraint
}

// IsNotFound reports whether err is a missing-row error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUniqueViolation reports whether err is a violated unique constraint.
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

// IsRetryable reports whether the operation that produced err may be
// retried. Errors outside the package taxonomy are matched on message.
func IsRetryable(err error) bool {
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return dbErr.Retryable
	}
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"temporary failure",
		"deadlock",
		"timeout",
		"busy",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// WrapError attaches an operation name, classifying foreign errors by
// message when they are not already part of the taxonomy.
func WrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		wrapped := *dbErr
		wrapped.Operation = operation
		return &wrapped
	}

	msg := strings.ToLower(err.Error())
	errorType := ErrorTypeUnknown
	switch {
	case strings.Contains(msg, "connect"):
		errorType = ErrorTypeConnection
	case strings.Contains(msg, "transaction") || strings.Contains(msg, "deadlock"):
		errorType = ErrorTypeTransaction
	case strings.Contains(msg, "constraint") || strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique"):
		errorType = ErrorTypeConstraint
	case strings.Contains(msg, "not found") || strings.Contains(msg, "no rows"):
		errorType = ErrorTypeData
	case strings.Contains(msg, "syntax") || strings.Contains(msg, "invalid"):
		errorType = ErrorTypeQuery
	case strings.Contains(msg, "table") || strings.Contains(msg, "column") || strings.Contains(msg, "schema"):
		errorType = ErrorTypeSchema
	}
	return newError(errorType, operation, err.Error(), err)
}
