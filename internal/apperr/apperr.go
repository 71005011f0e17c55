// Package apperr defines the error taxonomy surfaced by the query engine.
// Each error carries a stable machine-readable code and a human message.
package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies an error for callers and transport boundaries.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindBadRequest
	KindUnauthorized
)

// Code returns the stable code for the kind.
func (k Kind) Code() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

func (k Kind) String() string {
	return k.Code()
}

// HTTPStatus maps the kind to a response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error is the engine's error value.
type Error struct {
	Kind    Kind
	Message string
	// SQLState is set when the error was classified from a database error.
	SQLState string
	cause    error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Code returns the stable machine-readable code.
func (e *Error) Code() string {
	return e.Kind.Code()
}

// Extensions exposes the code to GraphQL error responses.
func (e *Error) Extensions() map[string]interface{} {
	extensions := map[string]interface{}{
		"code": e.Kind.Code(),
	}
	if e.SQLState != "" {
		extensions["sqlstate"] = e.SQLState
	}
	return extensions
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound, BadRequest, Unauthorized and Internal build an error of their
// kind from a format string.
func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func BadRequest(format string, args ...any) *Error {
	return newError(KindBadRequest, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return newError(KindUnauthorized, format, args...)
}

func Internal(format string, args ...any) *Error {
	return newError(KindInternal, format, args...)
}

// Wrap attaches cause to a new error of the given kind.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf reports the kind of err. Errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// FromDB classifies an executor error. Errors already in the taxonomy pass
// through unchanged.
func FromDB(err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Wrap(KindNotFound, err, "no rows returned from query that expected at least one row")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind := kindForSQLState(pgErr.Code)
		message := pgErr.Message
		if kind == KindInternal {
			message = internalMessage
		}
		classified := Wrap(kind, err, message)
		classified.SQLState = pgErr.Code
		return classified
	}
	return Wrap(KindInternal, err, internalMessage)
}

// internalMessage replaces driver text on errors clients cannot act on.
// The driver error stays reachable through Unwrap for logging.
const internalMessage = "internal database error"

// Class 22 is data exception, class 42 is syntax error or access rule violation.
// 42501 (insufficient_privilege) is an authorization failure.
func kindForSQLState(code string) Kind {
	switch {
	case code == "42501":
		return KindUnauthorized
	case strings.HasPrefix(code, "22"), strings.HasPrefix(code, "42"):
		return KindBadRequest
	default:
		return KindInternal
	}
}
