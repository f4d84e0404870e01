package replica

import "github.com/vaultmint/at2-replica/pkg/apperr"

// The replica package's rejected/error outcomes are all ordinary Go errors
// drawn from the shared apperr taxonomy, re-exported here so callers only
// need to import pkg/replica to match on them.
var (
	ErrInvalidSignature    = apperr.ErrInvalidSignature
	ErrInvalidOperation    = apperr.ErrInvalidOperation
	ErrNoSuchSender        = apperr.ErrNoSuchSender
	ErrInsufficientBalance = apperr.ErrInsufficientBalance
	ErrDataExists          = apperr.ErrDataExists
	ErrCannotAggregate     = apperr.ErrCannotAggregate
	ErrSerialisation       = apperr.ErrSerialisation
)

// Unexpected wraps a free-text semantic rejection, e.g. "zero amount" or
// "sender equals recipient".
func Unexpected(msg string) error { return apperr.Unexpected(msg) }
