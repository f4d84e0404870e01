package signer

import (
	"context"
	"fmt"
	"log"

	"github.com/vaultmint/at2-replica/pkg/apperr"
	"github.com/vaultmint/at2-replica/pkg/crypto/bls"
	"github.com/vaultmint/at2-replica/pkg/money"
	"github.com/vaultmint/at2-replica/pkg/wallet"
)

var defaultLogger = log.New(log.Writer(), "[Signer] ", log.LstdFlags)

// ReplicaSigner is one replica's signing role in a threshold group: it
// knows its own key share's public half and index, the group's full public
// key set, and a Gateway that holds (or reaches) the matching secret share.
// Every operation is "asynchronous" in the sense that it may suspend
// exactly at its Gateway call; nothing else blocks.
type ReplicaSigner struct {
	id           *bls.PublicKeyShare
	keyIndex     int
	peerReplicas *bls.PublicKeySet
	gateway      Gateway
	logger       *log.Logger
}

// NewReplicaSigner constructs a ReplicaSigner for the given identity within
// peerReplicas, signing through gateway. A nil logger falls back to a
// component-prefixed default.
func NewReplicaSigner(id *bls.PublicKeyShare, keyIndex int, peerReplicas *bls.PublicKeySet, gateway Gateway, logger *log.Logger) *ReplicaSigner {
	if logger == nil {
		logger = defaultLogger
	}
	return &ReplicaSigner{
		id:           id,
		keyIndex:     keyIndex,
		peerReplicas: peerReplicas,
		gateway:      gateway,
		logger:       logger,
	}
}

// ReplicasPKSet returns the owning group's key set.
func (s *ReplicaSigner) ReplicasPKSet() *bls.PublicKeySet { return s.peerReplicas }

// sign canonically serialises v and returns this replica's signature share
// over it, tagged with s.keyIndex.
func (s *ReplicaSigner) sign(ctx context.Context, v interface{}) (wallet.SignatureShare, error) {
	b, err := wallet.CanonicalBytes(v)
	if err != nil {
		return wallet.SignatureShare{}, fmt.Errorf("%w: %v", apperr.ErrSerialisation, err)
	}
	sig, err := s.gateway.SignWithSecretKeyShare(ctx, b)
	if err != nil {
		return wallet.SignatureShare{}, fmt.Errorf("sign share: %w", err)
	}
	return wallet.SignatureShare{Index: s.keyIndex, Share: wallet.NewBLSSignature(sig)}, nil
}

// SignValidatedDebit returns this replica's signature share over a
// validated signed debit's canonical bytes.
func (s *ReplicaSigner) SignValidatedDebit(ctx context.Context, debit wallet.SignedDebit) (wallet.SignatureShare, error) {
	return s.sign(ctx, debit)
}

// SignValidatedCredit returns this replica's signature share over a
// validated signed credit's canonical bytes.
func (s *ReplicaSigner) SignValidatedCredit(ctx context.Context, credit wallet.SignedCredit) (wallet.SignatureShare, error) {
	return s.sign(ctx, credit)
}

// SignCreditProof returns this replica's signature share over a credit
// agreement proof's canonical bytes, used when propagating a credit to the
// recipient's group.
func (s *ReplicaSigner) SignCreditProof(ctx context.Context, proof wallet.CreditAgreementProof) (wallet.SignatureShare, error) {
	return s.sign(ctx, proof)
}

// SignTransfer signs both halves of a transfer. The two signs must succeed
// or fail together: if either gateway call fails, no share is returned for
// the other half either, since a caller that only obtained one share would
// otherwise be left holding a half-signed transfer it cannot use.
func (s *ReplicaSigner) SignTransfer(ctx context.Context, transfer wallet.SignedTransfer) (wallet.SignatureShare, wallet.SignatureShare, error) {
	debitShare, err := s.SignValidatedDebit(ctx, transfer.Debit)
	if err != nil {
		return wallet.SignatureShare{}, wallet.SignatureShare{}, fmt.Errorf("%w: debit share: %v", apperr.ErrInvalidSignature, err)
	}
	creditShare, err := s.SignValidatedCredit(ctx, transfer.Credit)
	if err != nil {
		return wallet.SignatureShare{}, wallet.SignatureShare{}, fmt.Errorf("%w: credit share: %v", apperr.ErrInvalidSignature, err)
	}
	return debitShare, creditShare, nil
}

// TryGenesis runs the genesis ceremony: it mints the network's entire
// supply as a single CreditAgreementProof whose recipient is the group's
// own aggregate public key. It only succeeds for a threshold-0 group (a
// single replica's share already meets quorum); for a higher threshold the
// one share it holds cannot be combined and it fails with
// ErrCannotAggregate. MultiGenesis builds a genesis proof for any threshold
// when every secret key share is available locally.
func (s *ReplicaSigner) TryGenesis(ctx context.Context, balance money.Money) (wallet.CreditAgreementProof, error) {
	groupKey, err := groupPublicKey(s.peerReplicas)
	if err != nil {
		return wallet.CreditAgreementProof{}, err
	}

	credit := wallet.Credit{
		ID:        wallet.CreditID{},
		Amount:    balance,
		Recipient: groupKey,
		Msg:       "genesis",
	}

	creditBytes, err := wallet.CanonicalBytes(credit)
	if err != nil {
		return wallet.CreditAgreementProof{}, fmt.Errorf("%w: %v", apperr.ErrSerialisation, err)
	}
	actorShare, err := s.gateway.SignWithSecretKeyShare(ctx, creditBytes)
	if err != nil {
		return wallet.CreditAgreementProof{}, fmt.Errorf("sign genesis credit (as actor): %w", err)
	}
	actorSig, err := s.peerReplicas.CombineSignatures(map[int]bls.SignatureShare{
		s.keyIndex: {Index: s.keyIndex, Signature: *actorShare},
	})
	if err != nil {
		return wallet.CreditAgreementProof{}, fmt.Errorf("%w: %v", apperr.ErrCannotAggregate, err)
	}

	signedCredit := wallet.SignedCredit{
		Credit:         credit,
		ActorSignature: wallet.NewBLSSignature(actorSig),
	}

	signedCreditBytes, err := wallet.CanonicalBytes(signedCredit)
	if err != nil {
		return wallet.CreditAgreementProof{}, fmt.Errorf("%w: %v", apperr.ErrSerialisation, err)
	}
	replicaShare, err := s.gateway.SignWithSecretKeyShare(ctx, signedCreditBytes)
	if err != nil {
		return wallet.CreditAgreementProof{}, fmt.Errorf("sign genesis credit (as replica): %w", err)
	}
	replicaSig, err := s.peerReplicas.CombineSignatures(map[int]bls.SignatureShare{
		s.keyIndex: {Index: s.keyIndex, Signature: *replicaShare},
	})
	if err != nil {
		return wallet.CreditAgreementProof{}, fmt.Errorf("%w: %v", apperr.ErrCannotAggregate, err)
	}

	s.logger.Printf("genesis minted: amount=%s recipient_group=%s", balance, groupKey.Key())

	return wallet.CreditAgreementProof{
		SignedCredit:         signedCredit,
		DebitingReplicasSig:  wallet.NewBLSSignature(replicaSig),
		DebitingReplicasKeys: wallet.FromPublicKeySet(s.peerReplicas),
	}, nil
}

// MultiGenesis is the synchronous test-helper counterpart of TryGenesis: it
// has direct access to every participant's secret key share (via
// secretKeySet) and so can assemble threshold+1 shares locally instead of
// making a gateway round-trip per replica. It mirrors the source system's
// get_multi_genesis, with the share-index bug fixed: each share is inserted
// at its own index i, not always at index 0 — so it produces a correct
// aggregate for any threshold, not only threshold zero.
func MultiGenesis(balance money.Money, secretKeySet *bls.SecretKeySet) (wallet.CreditAgreementProof, error) {
	peerReplicas := secretKeySet.PublicKeys()
	groupKey, err := groupPublicKey(peerReplicas)
	if err != nil {
		return wallet.CreditAgreementProof{}, err
	}

	credit := wallet.Credit{
		ID:        wallet.CreditID{},
		Amount:    balance,
		Recipient: groupKey,
		Msg:       "genesis",
	}

	creditBytes, err := wallet.CanonicalBytes(credit)
	if err != nil {
		return wallet.CreditAgreementProof{}, fmt.Errorf("%w: %v", apperr.ErrSerialisation, err)
	}
	actorSig, err := combineFromSecretShares(peerReplicas, secretKeySet, creditBytes)
	if err != nil {
		return wallet.CreditAgreementProof{}, err
	}

	signedCredit := wallet.SignedCredit{
		Credit:         credit,
		ActorSignature: wallet.NewBLSSignature(actorSig),
	}

	signedCreditBytes, err := wallet.CanonicalBytes(signedCredit)
	if err != nil {
		return wallet.CreditAgreementProof{}, fmt.Errorf("%w: %v", apperr.ErrSerialisation, err)
	}
	replicaSig, err := combineFromSecretShares(peerReplicas, secretKeySet, signedCreditBytes)
	if err != nil {
		return wallet.CreditAgreementProof{}, err
	}

	return wallet.CreditAgreementProof{
		SignedCredit:         signedCredit,
		DebitingReplicasSig:  wallet.NewBLSSignature(replicaSig),
		DebitingReplicasKeys: wallet.FromPublicKeySet(peerReplicas),
	}, nil
}

// combineFromSecretShares signs message with threshold+1 distinct secret
// key shares drawn directly from secretKeySet and combines them, each
// inserted into the share map at its own index.
func combineFromSecretShares(peerReplicas *bls.PublicKeySet, secretKeySet *bls.SecretKeySet, message []byte) (*bls.Signature, error) {
	shares := make(map[int]bls.SignatureShare, secretKeySet.Threshold()+1)
	for i := 0; i <= secretKeySet.Threshold(); i++ {
		share := secretKeySet.SecretKeyShare(i)
		shares[i] = bls.SignatureShare{Index: i, Signature: *share.Sign(message)}
	}
	sig, err := peerReplicas.CombineSignatures(shares)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrCannotAggregate, err)
	}
	return sig, nil
}

// groupPublicKey wraps a PublicKeySet's own aggregate key as a wallet-level
// PublicKey, the genesis credit's recipient.
func groupPublicKey(peerReplicas *bls.PublicKeySet) (wallet.PublicKey, error) {
	return wallet.NewBLSPublicKey(peerReplicas.PublicKey()), nil
}
