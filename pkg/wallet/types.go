// Package wallet defines the data model shared by actors and replicas: the
// Money-denominated Wallet itself, and the Credit/Debit/proof types that
// flow between them. Nothing here performs network I/O or persistence —
// see pkg/replica for the validation state machine and pkg/eventstore for
// the replay contract's reference implementation.
package wallet

import (
	"crypto/sha256"
	"fmt"

	"github.com/vaultmint/at2-replica/pkg/crypto/bls"
	"github.com/vaultmint/at2-replica/pkg/money"
)

// PublicKeyKind discriminates the variants PublicKey can hold. BLS is the
// only variant the core ever produces or consumes; the enum exists so the
// wire format can grow new key schemes without an incompatible change.
type PublicKeyKind uint8

const (
	_ PublicKeyKind = iota
	// PublicKeyBLS identifies a BLS12-381 public key, which may be either a
	// plain actor key or a threshold group's own aggregate public key —
	// the two are indistinguishable at this layer, exactly as in the
	// source system.
	PublicKeyBLS
)

// PublicKey is the sender/recipient/group identity type. It wraps BLS
// points; see PublicKeyKind.
type PublicKey struct {
	Kind PublicKeyKind `msgpack:"kind"`
	BLS  []byte        `msgpack:"bls,omitempty"`
}

// NewBLSPublicKey wraps a bls.PublicKey as the BLS variant of PublicKey.
func NewBLSPublicKey(pk *bls.PublicKey) PublicKey {
	return PublicKey{Kind: PublicKeyBLS, BLS: pk.Bytes()}
}

// Verify checks sig over message under this public key. Only the BLS
// variant is supported; any other kind fails closed.
func (p PublicKey) Verify(sig Signature, message []byte) bool {
	if p.Kind != PublicKeyBLS || sig.Kind != SignatureBLS {
		return false
	}
	pk, err := bls.PublicKeyFromBytes(p.BLS)
	if err != nil {
		return false
	}
	s, err := bls.SignatureFromBytes(sig.BLS)
	if err != nil {
		return false
	}
	return pk.Verify(s, message)
}

// Equal reports whether two public keys represent the same identity.
func (p PublicKey) Equal(other PublicKey) bool {
	if p.Kind != other.Kind || len(p.BLS) != len(other.BLS) {
		return false
	}
	for i := range p.BLS {
		if p.BLS[i] != other.BLS[i] {
			return false
		}
	}
	return true
}

// key is a comparable representation of a PublicKey suitable for use as a
// map key (PublicKey itself contains a slice and is not comparable).
func (p PublicKey) key() string {
	return fmt.Sprintf("%d:%x", p.Kind, p.BLS)
}

// SignatureKind discriminates the variants Signature can hold.
type SignatureKind uint8

const (
	_ SignatureKind = iota
	// SignatureBLS identifies a single BLS signature or a combined
	// threshold signature — again indistinguishable at this layer.
	SignatureBLS
)

// Signature wraps a cryptographic signature. Only the BLS variant is
// produced by this core.
type Signature struct {
	Kind SignatureKind `msgpack:"kind"`
	BLS  []byte        `msgpack:"bls,omitempty"`
}

// NewBLSSignature wraps a bls.Signature as the BLS variant of Signature.
func NewBLSSignature(sig *bls.Signature) Signature {
	return Signature{Kind: SignatureBLS, BLS: sig.Bytes()}
}

// CreditID identifies a Credit. It is a deterministic hash of the matching
// Debit's id, so a credit can be tied back to the debit that produced it
// without the two sharing a field directly.
type CreditID [32]byte

// DebitID identifies a Debit: the sender's public key plus a per-sender,
// strictly increasing counter.
type DebitID struct {
	Sender  PublicKey `msgpack:"sender"`
	Counter uint64    `msgpack:"counter"`
}

// CreditID derives the id of the credit half of this debit's transfer.
func (d DebitID) CreditID() CreditID {
	h := sha256.New()
	h.Write([]byte{byte(d.Sender.Kind)})
	h.Write(d.Sender.BLS)
	var counterBytes [8]byte
	for i := 0; i < 8; i++ {
		counterBytes[i] = byte(d.Counter >> (8 * (7 - i)))
	}
	h.Write(counterBytes[:])
	var id CreditID
	copy(id[:], h.Sum(nil))
	return id
}

// Debit is the sender-decrementing half of a transfer.
type Debit struct {
	ID     DebitID     `msgpack:"id"`
	Amount money.Money `msgpack:"amount"`
}

// CreditID is the id the matching Credit must carry.
func (d Debit) CreditID() CreditID { return d.ID.CreditID() }

// Credit is the recipient-incrementing half of a transfer.
type Credit struct {
	ID        CreditID  `msgpack:"id"`
	Amount    money.Money `msgpack:"amount"`
	Recipient PublicKey `msgpack:"recipient"`
	Msg       string    `msgpack:"msg"`
}

// SignedDebit is a Debit together with the sender's signature over its
// canonical bytes.
type SignedDebit struct {
	Debit          Debit     `msgpack:"debit"`
	ActorSignature Signature `msgpack:"actor_signature"`
}

// Sender returns the debit's sender public key.
func (s SignedDebit) Sender() PublicKey { return s.Debit.ID.Sender }

// CreditID returns the id the matching SignedCredit must carry.
func (s SignedDebit) CreditID() CreditID { return s.Debit.CreditID() }

// SignedCredit is a Credit together with the sender's signature over its
// canonical bytes (the sender signs both halves; the credit has no
// signature of its own beyond the actor's).
type SignedCredit struct {
	Credit         Credit    `msgpack:"credit"`
	ActorSignature Signature `msgpack:"actor_signature"`
}

// ID returns the credit's id.
func (s SignedCredit) ID() CreditID { return s.Credit.ID }

// Recipient returns the credit's recipient public key.
func (s SignedCredit) Recipient() PublicKey { return s.Credit.Recipient }

// Amount returns the credit's amount.
func (s SignedCredit) Amount() money.Money { return s.Credit.Amount }

// SignedTransfer pairs the debit and credit halves an actor wants a
// replica group to co-sign.
type SignedTransfer struct {
	Debit  SignedDebit  `msgpack:"debit"`
	Credit SignedCredit `msgpack:"credit"`
}

// GroupKey is the wire-serializable form of a bls.PublicKeySet: the
// threshold degree plus the raw polynomial commitments. bls.PublicKeySet
// itself holds unexported gnark-crypto types, so this is what travels in
// proofs and events.
type GroupKey struct {
	Threshold int      `msgpack:"threshold"`
	Commits   [][]byte `msgpack:"commits"`
}

// FromPublicKeySet captures a bls.PublicKeySet as a GroupKey.
func FromPublicKeySet(p *bls.PublicKeySet) GroupKey {
	return GroupKey{Threshold: p.Threshold(), Commits: p.Commits()}
}

// PublicKeySet reconstructs the bls.PublicKeySet this GroupKey describes.
func (g GroupKey) PublicKeySet() (*bls.PublicKeySet, error) {
	return bls.PublicKeySetFromCommits(g.Threshold, g.Commits)
}

// PublicKey returns the group's own aggregate public key, wrapped as the
// wallet-level PublicKey type.
func (g GroupKey) PublicKey() (PublicKey, error) {
	pks, err := g.PublicKeySet()
	if err != nil {
		return PublicKey{}, err
	}
	return NewBLSPublicKey(pks.PublicKey()), nil
}

// key is a comparable representation suitable for use as a map key, so a
// replica can keep a set of known GroupKeys (see pkg/replica).
func (g GroupKey) key() string {
	return fmt.Sprintf("%d:%x", g.Threshold, g.Commits)
}

// Key exposes the comparable map-key representation of a GroupKey.
func (g GroupKey) Key() string { return g.key() }

// TransferAgreementProof is the quorum-signed proof that a replica group
// has validated and agreed on one transfer's debit and credit halves.
type TransferAgreementProof struct {
	SignedDebit  SignedDebit  `msgpack:"signed_debit"`
	SignedCredit SignedCredit `msgpack:"signed_credit"`
	DebitSig     Signature    `msgpack:"debit_sig"`
	CreditSig    Signature    `msgpack:"credit_sig"`
	Keys         GroupKey     `msgpack:"keys"`
}

// CreditAgreementProof is the quorum-signed proof that a debiting replica
// group agrees a credit occurred, propagated to the recipient's group.
type CreditAgreementProof struct {
	SignedCredit         SignedCredit `msgpack:"signed_credit"`
	DebitingReplicasSig  Signature    `msgpack:"debiting_replicas_sig"`
	DebitingReplicasKeys GroupKey     `msgpack:"debiting_replicas_keys"`
}

// ID returns the id of the credit this proof attests to.
func (p CreditAgreementProof) ID() CreditID { return p.SignedCredit.ID() }

// SignatureShare is one replica's signature share over some canonical
// bytes, tagged with that replica's index in the group's key set. An
// external aggregator combines Threshold()+1 shares from distinct indices
// into a full threshold signature; outside the genesis ceremony
// (pkg/signer's TryGenesis and MultiGenesis) this core never does the
// combining itself, only the producing (pkg/signer) and the verifying
// (pkg/replica).
type SignatureShare struct {
	Index     int       `msgpack:"index"`
	Share     Signature `msgpack:"share"`
}
