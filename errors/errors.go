package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
)

// Error categories for structured error handling
const (
	CategoryConfig     = "config"
	CategoryDatabase   = "database"
	CategoryServer     = "server"
	CategoryValidation = "validation"
	CategoryRecommend  = "recommend"
)

// CadenceError represents a structured error with category and context
type CadenceError struct {
	Category string
	Code     string
	Message  string
	Cause    error
	Context  map[string]interface{}
}

func (e *CadenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

func (e *CadenceError) Unwrap() error {
	return e.Cause
}

// Is matches on category and code so copies produced by WithContext still
// compare equal to the sentinel they were derived from.
func (e *CadenceError) Is(target error) bool {
	t, ok := target.(*CadenceError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithContext returns a copy of the error carrying the extra key. Sentinels
// are shared between goroutines and are never mutated.
func (e *CadenceError) WithContext(key string, value interface{}) *CadenceError {
	out := &CadenceError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Cause:    e.Cause,
		Context:  make(map[string]interface{}, len(e.Context)+1),
	}
	maps.Copy(out.Context, e.Context)
	out.Context[key] = value
	return out
}

// New creates a new CadenceError
func New(category, code, message string) *CadenceError {
	return &CadenceError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with CadenceError
func Wrap(err error, category, code, message string) *CadenceError {
	return &CadenceError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    err,
		Context:  make(map[string]interface{}),
	}
}

// Config errors
var (
	ErrInvalidPort         = New(CategoryConfig, "INVALID_PORT", "invalid port number")
	ErrInvalidLogLevel     = New(CategoryConfig, "INVALID_LOG_LEVEL", "invalid log level")
	ErrInvalidDatabasePath = New(CategoryConfig, "INVALID_DATABASE_PATH", "invalid database path")
	ErrInvalidConfig       = New(CategoryConfig, "INVALID_CONFIG", "invalid configuration")
)

// Database errors
var (
	ErrDatabaseConnection = New(CategoryDatabase, "CONNECTION_FAILED", "database connection failed")
	ErrDatabaseQuery      = New(CategoryDatabase, "QUERY_FAILED", "database query failed")
	ErrDatabaseMigration  = New(CategoryDatabase, "MIGRATION_FAILED", "database migration failed")
	ErrSongNotFound       = New(CategoryDatabase, "SONG_NOT_FOUND", "song not found")
	ErrTransactionFailed  = New(CategoryDatabase, "TRANSACTION_FAILED", "database transaction failed")
)

// Server errors
var (
	ErrServerStart    = New(CategoryServer, "START_FAILED", "server failed to start")
	ErrServerShutdown = New(CategoryServer, "SHUTDOWN_FAILED", "server shutdown failed")
)

// Validation errors. Everything in this category is malformed caller input:
// it fails fast and is never clamped or guessed.
var (
	ErrValidationFailed    = New(CategoryValidation, "VALIDATION_FAILED", "validation failed")
	ErrInvalidInput        = New(CategoryValidation, "INVALID_INPUT", "invalid input")
	ErrMissingParameter    = New(CategoryValidation, "MISSING_PARAMETER", "missing required parameter")
	ErrInvalidRating       = New(CategoryValidation, "INVALID_RATING", "rating must be between 1 and 5")
	ErrInvalidWeights      = New(CategoryValidation, "INVALID_WEIGHTS", "invalid weight configuration")
	ErrUnknownEventType    = New(CategoryValidation, "UNKNOWN_EVENT_TYPE", "unknown preference event type")
	ErrInvalidFeatureValue = New(CategoryValidation, "INVALID_FEATURE_VALUE", "audio feature value out of bounds")
	ErrUnknownAlgorithm    = New(CategoryValidation, "UNKNOWN_ALGORITHM", "unknown algorithm hint")
)

// Recommend errors
var (
	ErrPredictorClosed = New(CategoryRecommend, "PREDICTOR_CLOSED", "feature predictor is closed")
)

// Helper functions for common error patterns
func IsCategory(err error, category string) bool {
	var cadenceErr *CadenceError
	if !As(err, &cadenceErr) {
		return false
	}
	return cadenceErr.Category == category
}

// IsMalformedInput reports whether err was caused by invalid caller input.
func IsMalformedInput(err error) bool {
	return IsCategory(err, CategoryValidation)
}

func GetErrorCode(err error) string {
	var cadenceErr *CadenceError
	if !As(err, &cadenceErr) {
		return ""
	}
	return cadenceErr.Code
}

func GetErrorContext(err error) map[string]interface{} {
	var cadenceErr *CadenceError
	if !As(err, &cadenceErr) {
		return nil
	}
	return cadenceErr.Context
}

// As is a wrapper around errors.As
func As(err error, target interface{}) bool {
	if err == nil {
		return false
	}
	return stderrors.As(err, target)
}

// Is is a wrapper around errors.Is
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
