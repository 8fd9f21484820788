// Package gatewayerr defines the gateway's error taxonomy and its
// translation to HTTP status codes.
package gatewayerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a gateway error class. The zero value is never used.
type Kind string

const (
	KindBundleMalformed          Kind = "bundle_malformed"
	KindCyclicSchema             Kind = "cyclic_schema"
	KindSchemaIncompatible       Kind = "schema_incompatible"
	KindSchemaDataLoss           Kind = "schema_dataloss"
	KindCorruptedHistory         Kind = "corrupted_history"
	KindMigrationFailed          Kind = "migration_failed"
	KindFunctionDeployFailed     Kind = "function_deploy_failed"
	KindSeederValidationFailed   Kind = "seeder_validation_failed"
	KindDatabaseAlreadyExists    Kind = "database_already_exists"
	KindDatabaseNotFound         Kind = "database_not_found"
	KindPoolExhausted            Kind = "pool_exhausted"
	KindConnectionFailed         Kind = "connection_failed"
	KindFunctionCallFailed       Kind = "function_call_failed"
	KindUnauthorized             Kind = "unauthorized"
	KindInvalidRequest           Kind = "invalid_request"
	KindPlatformIsolationViolate Kind = "platform_isolation_violation"
	KindPlatformAlreadyExists    Kind = "platform_already_exists"
	KindPlatformNotFound         Kind = "platform_not_found"
	KindPlatformNotEmpty         Kind = "platform_not_empty"
	KindInternal                 Kind = "internal_error"
)

var statusByKind = map[Kind]int{
	KindBundleMalformed:          http.StatusBadRequest,
	KindCyclicSchema:             http.StatusUnprocessableEntity,
	KindSchemaIncompatible:       http.StatusUnprocessableEntity,
	KindSchemaDataLoss:           http.StatusConflict,
	KindCorruptedHistory:         http.StatusConflict,
	KindMigrationFailed:          http.StatusInternalServerError,
	KindFunctionDeployFailed:     http.StatusInternalServerError,
	KindSeederValidationFailed:   http.StatusConflict,
	KindDatabaseAlreadyExists:    http.StatusConflict,
	KindDatabaseNotFound:         http.StatusNotFound,
	KindPoolExhausted:            http.StatusServiceUnavailable,
	KindConnectionFailed:         http.StatusServiceUnavailable,
	KindFunctionCallFailed:       http.StatusInternalServerError,
	KindUnauthorized:             http.StatusForbidden,
	KindInvalidRequest:           http.StatusBadRequest,
	KindPlatformIsolationViolate: http.StatusForbidden,
	KindPlatformAlreadyExists:    http.StatusConflict,
	KindPlatformNotFound:         http.StatusNotFound,
	KindPlatformNotEmpty:         http.StatusConflict,
	KindInternal:                 http.StatusInternalServerError,
}

// Error is the gateway's structured error type, carrying enough context to
// render the JSON error bodies described by the external interface.
type Error struct {
	Kind     Kind
	Message  string
	Database string
	Cause    error
	Context  map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// StatusCode returns the HTTP status this error should be translated to.
func (e *Error) StatusCode() int {
	if code, ok := statusByKind[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// New builds a new gateway error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds a new gateway error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and message to a lower-level error without discarding it.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: err}
}

// WithDatabase attaches the database name this error concerns.
func (e *Error) WithDatabase(name string) *Error {
	e.Database = name
	return e
}

// WithContext attaches arbitrary response context (e.g. dataloss_changes).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// As reports whether err is (or wraps) a *Error, following the stdlib
// errors.As convention.
func As(err error) (*Error, bool) {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr, true
	}
	return nil, false
}
