// Package replica implements the wallet replica validation state machine:
// the asynchronous-transfer protocol's three entry points (validate,
// register, receive_propagated/genesis) plus the only mutator, Apply.
// Validation methods never mutate state; Apply never validates. A replica
// group reaches agreement on each method's outcome externally (by
// collecting and combining threshold signature shares via pkg/signer) and
// only then feeds the resulting event back through Apply.
package replica

import (
	"fmt"
	"log"

	"github.com/vaultmint/at2-replica/pkg/crypto/bls"
	"github.com/vaultmint/at2-replica/pkg/money"
	"github.com/vaultmint/at2-replica/pkg/wallet"
)

var defaultLogger = log.New(log.Writer(), "[Replica] ", log.LstdFlags)

// WalletReplica is one replica's view of one wallet's state: the wallet's
// own bookkeeping, this replica's position in its signing group, the set
// of other replica groups it has learned about, and the in-flight debit
// counter awaiting quorum registration.
type WalletReplica struct {
	id           wallet.PublicKey // the wallet owner's identity
	replicaID    *bls.PublicKeyShare
	keyIndex     int
	peerReplicas *bls.PublicKeySet
	otherGroups  map[string]*bls.PublicKeySet

	wallet       *wallet.Wallet
	pendingDebit *uint64

	logger *log.Logger
}

// New constructs an empty WalletReplica: a fresh wallet for id, at the
// given position within peerReplicas. A nil logger falls back to a
// component-prefixed default.
func New(id wallet.PublicKey, replicaID *bls.PublicKeyShare, keyIndex int, peerReplicas *bls.PublicKeySet, logger *log.Logger) *WalletReplica {
	if logger == nil {
		logger = defaultLogger
	}
	return &WalletReplica{
		id:           id,
		replicaID:    replicaID,
		keyIndex:     keyIndex,
		peerReplicas: peerReplicas,
		otherGroups:  make(map[string]*bls.PublicKeySet),
		wallet:       wallet.New(id),
		logger:       logger,
	}
}

// FromHistory constructs an empty replica and replays events in order; any
// Apply failure aborts construction and the partially-replayed replica is
// discarded.
func FromHistory(id wallet.PublicKey, replicaID *bls.PublicKeyShare, keyIndex int, peerReplicas *bls.PublicKeySet, events []ReplicaEvent, logger *log.Logger) (*WalletReplica, error) {
	r := New(id, replicaID, keyIndex, peerReplicas, logger)
	for i, ev := range events {
		if err := r.Apply(ev); err != nil {
			return nil, fmt.Errorf("replay event %d (kind %d): %w", i, ev.Kind, err)
		}
	}
	return r, nil
}

// Balance returns the wallet's current balance.
func (r *WalletReplica) Balance() money.Money { return r.wallet.Balance() }

// PendingDebit returns the counter of an in-flight validated debit, and
// whether one exists.
func (r *WalletReplica) PendingDebit() (uint64, bool) {
	if r.pendingDebit == nil {
		return 0, false
	}
	return *r.pendingDebit, true
}

// Validate checks the eight preconditions in spec order (signatures
// first, to avoid leaking information about wallet state to a caller who
// doesn't already hold a validly-signed transfer) and returns nil if the
// transfer may proceed to co-signing. Validate never mutates the replica;
// on success the caller is expected to collect signature shares and, once
// quorum forms, feed a TransferValidated event back through Apply.
func (r *WalletReplica) Validate(debit wallet.SignedDebit, credit wallet.SignedCredit) error {
	debitBytes, err := wallet.CanonicalBytes(debit.Debit)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialisation, err)
	}
	creditBytes, err := wallet.CanonicalBytes(credit.Credit)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialisation, err)
	}

	sender := debit.Sender()
	if !sender.Verify(debit.ActorSignature, debitBytes) || !sender.Verify(credit.ActorSignature, creditBytes) {
		return ErrInvalidSignature
	}
	if debit.Sender().Equal(credit.Recipient()) {
		return Unexpected("sender equals recipient")
	}
	if credit.ID() != debit.CreditID() {
		return Unexpected("credit id does not match debit")
	}
	if credit.Amount() != debit.Debit.Amount {
		return Unexpected("credit amount does not match debit amount")
	}
	if debit.Debit.Amount.IsZero() {
		return Unexpected("zero amount")
	}
	if !r.id.Equal(sender) {
		return ErrNoSuchSender
	}
	wantCounter := uint64(0)
	if r.pendingDebit != nil {
		wantCounter = *r.pendingDebit + 1
	}
	if debit.Debit.ID.Counter != wantCounter {
		return Unexpected(fmt.Sprintf("out-of-order debit counter: got %d, want %d", debit.Debit.ID.Counter, wantCounter))
	}
	if debit.Debit.Amount > r.wallet.Balance() {
		return ErrInsufficientBalance
	}
	return nil
}

// Register checks a quorum-signed TransferAgreementProof against this
// replica's counter expectations and, on success, returns the
// TransferRegistered event the caller should Apply. pastKey, if non-nil,
// is tried as a fallback signer key when the current peerReplicas key
// doesn't verify the proof — covering the window just after a group
// rotates keys but before every replica has learned the new one.
func (r *WalletReplica) Register(proof wallet.TransferAgreementProof, pastKey *bls.PublicKeySet) (ReplicaEvent, error) {
	if err := r.verifyRegisteredProof(proof, pastKey); err != nil {
		return ReplicaEvent{}, err
	}
	if r.wallet.NextDebit() != proof.SignedDebit.Debit.ID.Counter {
		return ReplicaEvent{}, fmt.Errorf("%w: debit counter %d out of order, expected %d", ErrInvalidOperation, proof.SignedDebit.Debit.ID.Counter, r.wallet.NextDebit())
	}
	return NewTransferRegisteredEvent(proof), nil
}

// verifyRegisteredProof rebuilds the canonical bytes for the proof's signed
// debit and signed credit halves and accepts if the current group key verifies both
// signatures, falling back to pastKey if supplied.
func (r *WalletReplica) verifyRegisteredProof(proof wallet.TransferAgreementProof, pastKey *bls.PublicKeySet) error {
	debitBytes, err := wallet.CanonicalBytes(proof.SignedDebit)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialisation, err)
	}
	creditBytes, err := wallet.CanonicalBytes(proof.SignedCredit)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialisation, err)
	}

	groupKey := wallet.NewBLSPublicKey(r.peerReplicas.PublicKey())
	if groupKey.Verify(proof.DebitSig, debitBytes) && groupKey.Verify(proof.CreditSig, creditBytes) {
		return nil
	}
	if pastKey != nil {
		pastGroupKey := wallet.NewBLSPublicKey(pastKey.PublicKey())
		if pastGroupKey.Verify(proof.DebitSig, debitBytes) && pastGroupKey.Verify(proof.CreditSig, creditBytes) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// ReceivePropagated verifies a credit-agreement proof from a (possibly
// foreign) debiting group and reports whether it is new. On success the
// caller should Apply the returned TransferPropagated event; on
// OutcomeNoChange the credit was already applied and there is nothing to
// apply.
func (r *WalletReplica) ReceivePropagated(proof wallet.CreditAgreementProof, pastKey *bls.PublicKeySet) (Outcome, ReplicaEvent, error) {
	if err := r.verifyPropagatedProof(proof, pastKey); err != nil {
		return 0, ReplicaEvent{}, err
	}
	if r.wallet.Contains(proof.ID()) {
		return OutcomeNoChange, ReplicaEvent{}, nil
	}
	return OutcomeSuccess, NewTransferPropagatedEvent(proof), nil
}

// verifyPropagatedProof accepts the proof if this replica's own group key
// verifies it, else pastKey, else any known foreign group in otherGroups.
// The debiting replicas' signature is checked over the signed credit's
// canonical bytes.
func (r *WalletReplica) verifyPropagatedProof(proof wallet.CreditAgreementProof, pastKey *bls.PublicKeySet) error {
	creditBytes, err := wallet.CanonicalBytes(proof.SignedCredit)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialisation, err)
	}

	groupKey := wallet.NewBLSPublicKey(r.peerReplicas.PublicKey())
	if groupKey.Verify(proof.DebitingReplicasSig, creditBytes) {
		return nil
	}
	if pastKey != nil {
		pastGroupKey := wallet.NewBLSPublicKey(pastKey.PublicKey())
		if pastGroupKey.Verify(proof.DebitingReplicasSig, creditBytes) {
			return nil
		}
	}
	for _, other := range r.otherGroups {
		otherKey := wallet.NewBLSPublicKey(other.PublicKey())
		if otherKey.Verify(proof.DebitingReplicasSig, creditBytes) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Genesis enforces the one-shot minting precondition (the wallet must be
// completely untouched: zero balance and no pending debit) and then
// delegates to ReceivePropagated.
func (r *WalletReplica) Genesis(proof wallet.CreditAgreementProof, pastKey *bls.PublicKeySet) (Outcome, ReplicaEvent, error) {
	if !r.wallet.Balance().IsZero() || r.pendingDebit != nil {
		return 0, ReplicaEvent{}, fmt.Errorf("%w: wallet already initialised", ErrInvalidOperation)
	}
	return r.ReceivePropagated(proof, pastKey)
}

// AddKnownGroup registers a new peer replica group. Rejects with
// ErrDataExists if the group is already known.
func (r *WalletReplica) AddKnownGroup(group *bls.PublicKeySet) (ReplicaEvent, error) {
	key := wallet.FromPublicKeySet(group).Key()
	if _, ok := r.otherGroups[key]; ok {
		return ReplicaEvent{}, fmt.Errorf("%w: group already known", ErrDataExists)
	}
	r.logger.Printf("new peer group known: %s", key)
	return NewKnownGroupAddedEvent(wallet.FromPublicKeySet(group)), nil
}

// Apply is the only mutator: it performs no validation of its own, trusting
// that ev was already validated by the corresponding Validate/Register/
// ReceivePropagated/Genesis/AddKnownGroup call before being constructed.
func (r *WalletReplica) Apply(ev ReplicaEvent) error {
	switch ev.Kind {
	case EventKnownGroupAdded:
		group, err := ev.KnownGroupAdded.Group.PublicKeySet()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSerialisation, err)
		}
		r.otherGroups[ev.KnownGroupAdded.Group.Key()] = group
		return nil

	case EventTransferValidated:
		counter := ev.TransferValidated.SignedDebit.Debit.ID.Counter
		r.pendingDebit = &counter
		return nil

	case EventTransferRegistered:
		debit := ev.TransferRegistered.TransferProof.SignedDebit.Debit
		return r.wallet.ApplyDebit(debit)

	case EventTransferPropagated:
		credit := ev.TransferPropagated.CreditProof.SignedCredit.Credit
		return r.wallet.ApplyCredit(credit)

	default:
		return fmt.Errorf("%w: unknown event kind %d", ErrInvalidOperation, ev.Kind)
	}
}

// Snapshot returns an immutable view of the underlying wallet's state.
func (r *WalletReplica) Snapshot() wallet.Snapshot { return r.wallet.Snapshot() }

// PeerReplicas returns the replica's own signing group's key set.
func (r *WalletReplica) PeerReplicas() *bls.PublicKeySet { return r.peerReplicas }
