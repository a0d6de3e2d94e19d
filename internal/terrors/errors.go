// Package terrors defines the typed error kinds surfaced by triplit's
// public API. Every recoverable condition callers need to branch on gets
// a stable Kind string and a sentinel that errors.Is can match against.
package terrors

import "fmt"

// Kind identifies a class of recoverable error.
type Kind string

const (
	EntityNotFound            Kind = "EntityNotFound"
	InvalidEntityId           Kind = "InvalidEntityId"
	InvalidInternalEntityId   Kind = "InvalidInternalEntityId"
	InvalidMigrationOperation Kind = "InvalidMigrationOperation"
	SessionVariableNotFound   Kind = "SessionVariableNotFound"
	WriteRuleViolation        Kind = "WriteRuleViolation"
	UnknownAttribute          Kind = "UnknownAttribute"
	SchemaVersionMismatch     Kind = "SchemaVersionMismatch"
	TransactionConflict       Kind = "TransactionConflict"
)

// sentinels lets callers do errors.Is(err, terrors.Sentinel(SomeKind)).
var sentinels = map[Kind]error{
	EntityNotFound:            fmt.Errorf("entity not found"),
	InvalidEntityId:           fmt.Errorf("invalid entity id"),
	InvalidInternalEntityId:   fmt.Errorf("invalid internal entity id"),
	InvalidMigrationOperation: fmt.Errorf("invalid migration operation"),
	SessionVariableNotFound:   fmt.Errorf("session variable not found"),
	WriteRuleViolation:        fmt.Errorf("write rule violation"),
	UnknownAttribute:          fmt.Errorf("unknown attribute"),
	SchemaVersionMismatch:     fmt.Errorf("schema version mismatch"),
	TransactionConflict:       fmt.Errorf("transaction conflict"),
}

// Sentinel returns the sentinel error for a kind, for use with errors.Is.
func Sentinel(k Kind) error {
	return sentinels[k]
}

// Error is the concrete error type carrying a Kind plus a human message.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is lets errors.Is(err, terrors.Sentinel(kind)) succeed for any *Error
// carrying that kind, regardless of message or cause.
func (e *Error) Is(target error) bool {
	for kind, sentinel := range sentinels {
		if target == sentinel {
			return e.Kind == kind
		}
	}
	return false
}

// Of reports whether err is a triplit error of the given kind.
func Of(err error, kind Kind) bool {
	var te *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			te = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return te != nil && te.Kind == kind
}
