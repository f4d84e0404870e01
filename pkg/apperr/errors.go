// Package apperr holds the sentinel error taxonomy shared by the signer
// and replica packages, following the teacher's "explicit errors instead of
// nil, nil returns" convention (see e.g. the sentinel var blocks the
// teacher repo keeps per-package for its ledger and database layers).
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature is returned when any signature or threshold
	// aggregate fails to verify.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidOperation is returned when an operation's precondition is
	// unmet (genesis on a non-empty wallet, out-of-order register, ...).
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrNoSuchSender is returned when a debit's sender does not match the
	// wallet being validated against.
	ErrNoSuchSender = errors.New("no such sender")
	// ErrInsufficientBalance is returned when a debit exceeds the
	// sender's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrDataExists is returned when a caller tries to register state
	// (e.g. a known replica group) that is already present.
	ErrDataExists = errors.New("data already exists")
	// ErrCannotAggregate is returned when threshold signature share
	// combination fails.
	ErrCannotAggregate = errors.New("cannot aggregate signature shares")
	// ErrSerialisation is returned when canonical encoding fails.
	ErrSerialisation = errors.New("serialisation failed")
)

// Unexpected wraps a free-text semantic error (zero amount, identical
// sender/recipient, credit/debit mismatch, out-of-order counter) the way
// the source system's Error::Unexpected(String) variant does.
func Unexpected(msg string) error {
	return fmt.Errorf("unexpected: %s", msg)
}
