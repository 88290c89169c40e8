// Package apperrors classifies remote store failures into the kinds the sync engine
// reacts to.
package apperrors

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"
)

// Kind is a machine-readable error category.
type Kind string

const (
	KindUnknown              Kind = "UNKNOWN"
	KindSchemaDrift          Kind = "SCHEMA_DRIFT"
	KindPermissionDenied     Kind = "PERMISSION_DENIED"
	KindConflict             Kind = "CONFLICT"
	KindReferentialViolation Kind = "REFERENTIAL_VIOLATION"
	KindValidationFailure    Kind = "VALIDATION_FAILURE"
	KindTransientTransport   Kind = "TRANSIENT_TRANSPORT"
	KindNotFound             Kind = "NOT_FOUND"
	// KindPartialSuccess marks a warning: the core write landed, an auxiliary one did not.
	KindPartialSuccess Kind = "PARTIAL_SUCCESS"
)

// Error is the engine error type.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " ")))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind so sentinel-style comparisons work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Op == "" || t.Op == e.Op)
}

// New builds an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err and wraps it with op. A nil err returns nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: Classify(err), Op: op, Err: err}
}

// Validation is shorthand for a caller-data failure.
func Validation(op, message string) *Error {
	return New(KindValidationFailure, op, message)
}

const (
	sqlStateUndefinedColumn     = "42703"
	sqlStateUndefinedTable      = "42P01"
	sqlStateInsufficientPriv    = "42501"
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	sqlStateAdminShutdown       = "57P01"
)

// Classify maps an arbitrary error to a Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch {
		case code == sqlStateUndefinedColumn || code == sqlStateUndefinedTable:
			return KindSchemaDrift
		case code == sqlStateInsufficientPriv:
			return KindPermissionDenied
		case code == sqlStateUniqueViolation:
			return KindConflict
		case code == sqlStateForeignKeyViolation:
			return KindReferentialViolation
		case code == sqlStateAdminShutdown || strings.HasPrefix(code, "08"):
			return KindTransientTransport
		}
		return KindUnknown
	}

	if errors.Is(err, sql.ErrNoRows) {
		return KindNotFound
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return KindTransientTransport
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransientTransport
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransientTransport
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "unknown column"),
		strings.Contains(msg, "unknown relation"):
		return KindSchemaDrift
	case strings.Contains(msg, "permission denied"):
		return KindPermissionDenied
	}
	return KindUnknown
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool {
	return err != nil && Classify(err) == kind
}

// Mentions reports whether the error text names any of the given identifiers.
func Mentions(err error, names ...string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, name := range names {
		if name != "" && strings.Contains(msg, strings.ToLower(name)) {
			return true
		}
	}
	return false
}
