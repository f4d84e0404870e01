package replica

import "github.com/vaultmint/at2-replica/pkg/wallet"

// EventKind discriminates the ReplicaEvent variants. ReplicaEvent is
// modelled as a struct with one populated payload field per kind rather
// than an interface, so events round-trip through msgpack (an interface
// field cannot be decoded without a registered type tag) the same way
// pkg/wallet's own wire types do.
type EventKind uint8

const (
	_ EventKind = iota
	// EventKnownGroupAdded records a newly-recognised peer replica group.
	EventKnownGroupAdded
	// EventTransferValidated records that validate() accepted a transfer;
	// applying it advances pending_debit.
	EventTransferValidated
	// EventTransferRegistered records that register() accepted a quorum
	// proof; applying it debits the wallet.
	EventTransferRegistered
	// EventTransferPropagated records that receive_propagated() (or
	// genesis()) accepted a quorum proof; applying it credits the wallet.
	EventTransferPropagated
)

// ReplicaEvent is the sole mutator input to WalletReplica.Apply. Exactly
// one of the payload fields matching Kind is populated.
type ReplicaEvent struct {
	Kind EventKind `msgpack:"kind"`

	KnownGroupAdded   *KnownGroupAdded   `msgpack:"known_group_added,omitempty"`
	TransferValidated *TransferValidated `msgpack:"transfer_validated,omitempty"`
	TransferRegistered *TransferRegistered `msgpack:"transfer_registered,omitempty"`
	TransferPropagated *TransferPropagated `msgpack:"transfer_propagated,omitempty"`
}

// KnownGroupAdded is the payload of an EventKnownGroupAdded event.
type KnownGroupAdded struct {
	Group wallet.GroupKey `msgpack:"group"`
}

// NewKnownGroupAddedEvent builds the event form of a KnownGroupAdded payload.
func NewKnownGroupAddedEvent(group wallet.GroupKey) ReplicaEvent {
	return ReplicaEvent{Kind: EventKnownGroupAdded, KnownGroupAdded: &KnownGroupAdded{Group: group}}
}

// TransferValidated is the payload of an EventTransferValidated event.
type TransferValidated struct {
	SignedDebit  wallet.SignedDebit  `msgpack:"signed_debit"`
	SignedCredit wallet.SignedCredit `msgpack:"signed_credit"`
}

// NewTransferValidatedEvent builds the event form of a TransferValidated payload.
func NewTransferValidatedEvent(debit wallet.SignedDebit, credit wallet.SignedCredit) ReplicaEvent {
	return ReplicaEvent{Kind: EventTransferValidated, TransferValidated: &TransferValidated{SignedDebit: debit, SignedCredit: credit}}
}

// TransferRegistered is the payload of an EventTransferRegistered event.
type TransferRegistered struct {
	TransferProof wallet.TransferAgreementProof `msgpack:"transfer_proof"`
}

// NewTransferRegisteredEvent builds the event form of a TransferRegistered payload.
func NewTransferRegisteredEvent(proof wallet.TransferAgreementProof) ReplicaEvent {
	return ReplicaEvent{Kind: EventTransferRegistered, TransferRegistered: &TransferRegistered{TransferProof: proof}}
}

// TransferPropagated is the payload of an EventTransferPropagated event.
type TransferPropagated struct {
	CreditProof wallet.CreditAgreementProof `msgpack:"credit_proof"`
}

// NewTransferPropagatedEvent builds the event form of a TransferPropagated payload.
func NewTransferPropagatedEvent(proof wallet.CreditAgreementProof) ReplicaEvent {
	return ReplicaEvent{Kind: EventTransferPropagated, TransferPropagated: &TransferPropagated{CreditProof: proof}}
}
