package gateway

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by LoadAccount for an account that has never
// been funded on the network.
var ErrNotFound = errors.New("account not found on the ledger")

// RejectedError is a deterministic protocol-level rejection (bad
// sequence, insufficient reserve, malformed operation). Retrying the
// identical transaction will fail the same way, so callers must never
// resubmit verbatim.
type RejectedError struct {
	Code   string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("ledger rejected transaction: %s", e.Code)
	}
	return fmt.Sprintf("ledger rejected transaction: %s (%s)", e.Code, e.Reason)
}

// NetworkError is a transport-level failure, including timeouts. The
// outcome of the submitted transaction is unknown: the ledger may have
// accepted it. Eligible for a bounded retry only after re-loading the
// account state to check whether the sequence number already advanced.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("ledger network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// PreconditionError reports caller misuse, e.g. funding an account before
// its trust line exists. Fatal, never retried.
type PreconditionError struct {
	Msg string
}

func (e *PreconditionError) Error() string {
	return "precondition violation: " + e.Msg
}

// IsTemporary reports whether the error is a transient transport failure
// that may be retried after re-checking account state.
func IsTemporary(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsRejected reports whether the error is a deterministic ledger
// rejection.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}
