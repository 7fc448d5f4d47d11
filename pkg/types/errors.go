package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so callers can tell "user declined" from
// "network failed" from "bad input" without string matching.
type ErrorKind string

const (
	KindUnknown  ErrorKind = "unknown"
	KindInput    ErrorKind = "input"
	KindExternal ErrorKind = "external"
	KindProtocol ErrorKind = "protocol"
)

// Input errors: reported immediately, nothing retained.
var (
	ErrUnknownSchema        = errors.New("unknown schema")
	ErrSchemaExists         = errors.New("schema already registered")
	ErrInvalidSchema        = errors.New("invalid schema definition")
	ErrFieldTypeMismatch    = errors.New("field type mismatch")
	ErrArrayEncodingFailure = errors.New("array encoding failure")
	ErrAmountOutOfRange     = errors.New("amount out of range")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidAddress       = errors.New("invalid address")
	ErrNoEligibleEntries    = errors.New("no eligible entries")
)

// External-system errors: surfaced verbatim with a classified kind.
var (
	ErrSignerUnavailable   = errors.New("signer unavailable")
	ErrUserRejected        = errors.New("user rejected request")
	ErrSignerError         = errors.New("signer error")
	ErrChainRead           = errors.New("chain read failed")
	ErrBroadcast           = errors.New("broadcast failed")
	ErrTransactionReverted = errors.New("transaction reverted")
)

// Protocol-invariant violations: fatal to the current cycle.
var (
	ErrSigningInProgress   = errors.New("signing request already in flight")
	ErrIncompleteSignature = errors.New("incomplete signature")
	ErrStaleSignature      = errors.New("stale signature")
)

// SigningError wraps a sentinel with the operation and field that produced it.
type SigningError struct {
	Kind  ErrorKind
	Op    string // operation, e.g. "encode", "request-signature"
	Field string // offending field or entry, if any
	Err   error
}

func (e *SigningError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Field, e.Err)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

// NewError builds a SigningError whose kind is derived from err.
func NewError(op string, field string, err error) *SigningError {
	return &SigningError{
		Kind:  KindOf(err),
		Op:    op,
		Field: field,
		Err:   err,
	}
}

// KindOf classifies any error produced by this module.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var se *SigningError
	if errors.As(err, &se) && se.Kind != "" && se.Kind != KindUnknown {
		return se.Kind
	}

	switch {
	case errors.Is(err, ErrUnknownSchema),
		errors.Is(err, ErrSchemaExists),
		errors.Is(err, ErrInvalidSchema),
		errors.Is(err, ErrFieldTypeMismatch),
		errors.Is(err, ErrArrayEncodingFailure),
		errors.Is(err, ErrAmountOutOfRange),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidAddress),
		errors.Is(err, ErrNoEligibleEntries):
		return KindInput
	case errors.Is(err, ErrSignerUnavailable),
		errors.Is(err, ErrUserRejected),
		errors.Is(err, ErrSignerError),
		errors.Is(err, ErrChainRead),
		errors.Is(err, ErrBroadcast),
		errors.Is(err, ErrTransactionReverted):
		return KindExternal
	case errors.Is(err, ErrSigningInProgress),
		errors.Is(err, ErrIncompleteSignature),
		errors.Is(err, ErrStaleSignature):
		return KindProtocol
	}

	return KindUnknown
}
