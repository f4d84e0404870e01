package wallet

import (
	"fmt"

	"github.com/vaultmint/at2-replica/pkg/apperr"
	"github.com/vaultmint/at2-replica/pkg/money"
)

// Sentinel errors for Wallet mutation failures. Each wraps the shared
// apperr taxonomy so callers further up the stack (pkg/replica) can match
// on either the specific wallet error or the general apperr category.
var (
	// ErrOutOfOrderDebit is returned when a debit's counter does not match
	// the wallet's next expected counter.
	ErrOutOfOrderDebit = fmt.Errorf("debit counter out of order: %w", apperr.ErrInvalidOperation)
	// ErrInsufficientBalance is returned when a debit exceeds the current
	// balance.
	ErrInsufficientBalance = apperr.ErrInsufficientBalance
	// ErrDuplicateCredit is returned when a credit with an already-applied
	// id is applied again.
	ErrDuplicateCredit = fmt.Errorf("credit already applied: %w", apperr.ErrDataExists)
)

// Wallet is the append-only local ledger for one owner: it knows its
// current balance, which credit ids it has already applied (so credit
// propagation can be idempotent), and the next debit counter it expects.
// Wallet never validates signatures or proofs — see pkg/replica for that;
// Wallet only enforces the arithmetic invariants in spec.md §4.1.
type Wallet struct {
	owner            PublicKey
	balance          money.Money
	nextDebitCounter uint64
	appliedCredits   map[CreditID]struct{}
}

// New returns an empty wallet owned by id.
func New(id PublicKey) *Wallet {
	return &Wallet{
		owner:          id,
		appliedCredits: make(map[CreditID]struct{}),
	}
}

// ID returns the wallet owner's public key.
func (w *Wallet) ID() PublicKey { return w.owner }

// Balance returns the current balance.
func (w *Wallet) Balance() money.Money { return w.balance }

// NextDebit returns the counter value the next applied debit must carry.
func (w *Wallet) NextDebit() uint64 { return w.nextDebitCounter }

// Contains reports whether id has already been applied as a credit.
func (w *Wallet) Contains(id CreditID) bool {
	_, ok := w.appliedCredits[id]
	return ok
}

// ApplyDebit decrements the balance by debit.Amount and advances the
// counter. Fails if debit.ID.Counter does not equal NextDebit(), or if the
// amount exceeds the current balance; the wallet is left unmodified on
// failure.
func (w *Wallet) ApplyDebit(debit Debit) error {
	if debit.ID.Counter != w.nextDebitCounter {
		return fmt.Errorf("%w: got counter %d, want %d", ErrOutOfOrderDebit, debit.ID.Counter, w.nextDebitCounter)
	}
	if debit.Amount > w.balance {
		return fmt.Errorf("%w: amount %s exceeds balance %s", ErrInsufficientBalance, debit.Amount, w.balance)
	}
	w.balance = w.balance.Sub(debit.Amount)
	w.nextDebitCounter++
	return nil
}

// ApplyCredit increments the balance by credit.Amount and records its id.
// Fails if the credit id has already been applied; the wallet is left
// unmodified on failure.
func (w *Wallet) ApplyCredit(credit Credit) error {
	if w.Contains(credit.ID) {
		return fmt.Errorf("%w: id %x", ErrDuplicateCredit, credit.ID)
	}
	w.balance = w.balance.Add(credit.Amount)
	w.appliedCredits[credit.ID] = struct{}{}
	return nil
}

// Snapshot is an immutable copy of a Wallet's state, safe to hand to
// callers without exposing the mutable original.
type Snapshot struct {
	Owner            PublicKey
	Balance          money.Money
	NextDebitCounter uint64
	AppliedCredits   []CreditID
}

// Snapshot returns an immutable view of the wallet's current state.
func (w *Wallet) Snapshot() Snapshot {
	ids := make([]CreditID, 0, len(w.appliedCredits))
	for id := range w.appliedCredits {
		ids = append(ids, id)
	}
	return Snapshot{
		Owner:            w.owner,
		Balance:          w.balance,
		NextDebitCounter: w.nextDebitCounter,
		AppliedCredits:   ids,
	}
}
