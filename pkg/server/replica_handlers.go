// Package server exposes a WalletReplica's operations over HTTP, in the
// same handler-struct-per-resource style as the teacher's pkg/server:
// one constructor per handler group, Handle* methods that check the verb
// first, and writeJSON/writeError helpers shared across the group.
package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/vaultmint/at2-replica/pkg/crypto/bls"
	"github.com/vaultmint/at2-replica/pkg/eventstore"
	"github.com/vaultmint/at2-replica/pkg/metrics"
	"github.com/vaultmint/at2-replica/pkg/replica"
	"github.com/vaultmint/at2-replica/pkg/signer"
	"github.com/vaultmint/at2-replica/pkg/wallet"
)

// ReplicaHandlers hosts every wallet this process replicates, all
// belonging to the same signing group. It loads a wallet's replica from
// the event store on first touch and keeps it resident afterwards.
type ReplicaHandlers struct {
	mu       sync.Mutex
	replicas map[string]*replica.WalletReplica

	replicaID    *bls.PublicKeyShare
	keyIndex     int
	peerReplicas *bls.PublicKeySet

	store   *eventstore.Store
	signer  *signer.ReplicaSigner
	metrics *metrics.Registry
	logger  *log.Logger
}

// NewReplicaHandlers constructs the handler group. store and metrics may
// both be nil: a nil store means wallets start empty and are never
// persisted (useful for tests); a nil metrics registry disables counters.
func NewReplicaHandlers(replicaID *bls.PublicKeyShare, keyIndex int, peerReplicas *bls.PublicKeySet, store *eventstore.Store, sgnr *signer.ReplicaSigner, reg *metrics.Registry, logger *log.Logger) *ReplicaHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[ReplicaAPI] ", log.LstdFlags)
	}
	return &ReplicaHandlers{
		replicas:     make(map[string]*replica.WalletReplica),
		replicaID:    replicaID,
		keyIndex:     keyIndex,
		peerReplicas: peerReplicas,
		store:        store,
		signer:       sgnr,
		metrics:      reg,
		logger:       logger,
	}
}

func walletKey(id wallet.PublicKey) string {
	return hex.EncodeToString(id.BLS)
}

// getOrLoad returns the resident replica for id, loading its history from
// the store on first touch.
func (h *ReplicaHandlers) getOrLoad(ctx context.Context, id wallet.PublicKey) (*replica.WalletReplica, error) {
	key := walletKey(id)

	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.replicas[key]; ok {
		return r, nil
	}

	var events []replica.ReplicaEvent
	if h.store != nil {
		var err error
		events, err = h.store.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load wallet history: %w", err)
		}
	}

	r, err := replica.FromHistory(id, h.replicaID, h.keyIndex, h.peerReplicas, events, nil)
	if err != nil {
		return nil, fmt.Errorf("replay wallet history: %w", err)
	}
	h.replicas[key] = r
	return r, nil
}

// apply applies ev to r and, if a store is configured, persists it before
// returning — a failed persist leaves the in-memory replica ahead of its
// durable log, so the caller should treat persistence errors as fatal to
// the request.
func (h *ReplicaHandlers) apply(ctx context.Context, id wallet.PublicKey, r *replica.WalletReplica, ev replica.ReplicaEvent) error {
	if err := r.Apply(ev); err != nil {
		return fmt.Errorf("apply event: %w", err)
	}
	if h.store != nil {
		if err := h.store.Append(ctx, walletKey(id), []replica.ReplicaEvent{ev}); err != nil {
			return fmt.Errorf("persist event: %w", err)
		}
	}
	return nil
}

func (h *ReplicaHandlers) observe(kind, outcome string) {
	if h.metrics != nil {
		h.metrics.ObserveOutcome(kind, outcome)
	}
}

// validateTransferRequest is the JSON body of POST /api/v1/transfers/validate.
type validateTransferRequest struct {
	Debit  wallet.SignedDebit  `json:"debit"`
	Credit wallet.SignedCredit `json:"credit"`
}

// HandleValidateTransfer handles POST /api/v1/transfers/validate. On
// success it returns this replica's own signature shares over the debit
// and credit; it never mutates the replica. A caller collects threshold+1
// such shares from distinct replicas, combines them, and then calls
// HandleRegisterTransfer with the resulting proof.
func (h *ReplicaHandlers) HandleValidateTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	requestID := uuid.New()
	var req validateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid transfer validation request")
		return
	}

	ctx := r.Context()
	wr, err := h.getOrLoad(ctx, req.Debit.Sender())
	if err != nil {
		h.logger.Printf("[%s] load wallet: %v", requestID, err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load wallet")
		return
	}

	if err := wr.Validate(req.Debit, req.Credit); err != nil {
		h.observe("validate", "rejected")
		h.writeError(w, http.StatusUnprocessableEntity, "VALIDATION_REJECTED", err.Error())
		return
	}

	if h.signer == nil {
		h.observe("validate", "success")
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"request_id": requestID, "valid": true})
		return
	}

	debitShare, creditShare, err := h.signer.SignTransfer(ctx, wallet.SignedTransfer{Debit: req.Debit, Credit: req.Credit})
	if err != nil {
		h.logger.Printf("[%s] sign transfer: %v", requestID, err)
		h.observe("validate", "error")
		h.writeError(w, http.StatusInternalServerError, "SIGNING_FAILED", "Failed to sign transfer shares")
		return
	}

	h.observe("validate", "success")
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"request_id":   requestID,
		"debit_share":  debitShare,
		"credit_share": creditShare,
	})
}

// HandleRegisterTransfer handles POST /api/v1/transfers/register: given a
// quorum-combined TransferAgreementProof, it registers the debit against
// the sender's wallet and applies the resulting event.
func (h *ReplicaHandlers) HandleRegisterTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	requestID := uuid.New()
	var proof wallet.TransferAgreementProof
	if err := json.NewDecoder(r.Body).Decode(&proof); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid transfer agreement proof")
		return
	}

	ctx := r.Context()
	sender := proof.SignedDebit.Sender()
	wr, err := h.getOrLoad(ctx, sender)
	if err != nil {
		h.logger.Printf("[%s] load wallet: %v", requestID, err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load wallet")
		return
	}

	ev, err := wr.Register(proof, nil)
	if err != nil {
		h.observe("register", "rejected")
		h.writeError(w, http.StatusUnprocessableEntity, "REGISTRATION_REJECTED", err.Error())
		return
	}

	if err := h.apply(ctx, sender, wr, ev); err != nil {
		h.logger.Printf("[%s] apply register: %v", requestID, err)
		h.observe("register", "error")
		h.writeError(w, http.StatusInternalServerError, "APPLY_FAILED", "Failed to apply registration")
		return
	}

	h.observe("register", "success")
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"request_id": requestID,
		"balance":    wr.Balance().String(),
	})
}

// propagateRequest is the JSON body shared by /transfers/propagate and
// /genesis: both carry a CreditAgreementProof, differing only in which
// WalletReplica method validates it.
type propagateRequest struct {
	Proof wallet.CreditAgreementProof `json:"proof"`
}

// HandleReceivePropagated handles POST /api/v1/transfers/propagate: a
// credit agreement proof arriving from a (possibly foreign) debiting
// group. Idempotent: re-delivering an already-applied credit reports
// no_change rather than an error.
func (h *ReplicaHandlers) HandleReceivePropagated(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	requestID := uuid.New()
	var req propagateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid credit agreement proof")
		return
	}

	ctx := r.Context()
	recipient := req.Proof.SignedCredit.Recipient()
	wr, err := h.getOrLoad(ctx, recipient)
	if err != nil {
		h.logger.Printf("[%s] load wallet: %v", requestID, err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load wallet")
		return
	}

	outcome, ev, err := wr.ReceivePropagated(req.Proof, nil)
	if err != nil {
		h.observe("propagate", "rejected")
		h.writeError(w, http.StatusUnprocessableEntity, "PROPAGATION_REJECTED", err.Error())
		return
	}
	if outcome == replica.OutcomeNoChange {
		h.observe("propagate", "no_change")
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"request_id": requestID, "outcome": outcome.String()})
		return
	}

	if err := h.apply(ctx, recipient, wr, ev); err != nil {
		h.logger.Printf("[%s] apply propagate: %v", requestID, err)
		h.observe("propagate", "error")
		h.writeError(w, http.StatusInternalServerError, "APPLY_FAILED", "Failed to apply propagated credit")
		return
	}

	if h.metrics != nil {
		h.metrics.SetWalletBalance(walletKey(recipient), wr.Balance().AsNano())
	}
	h.observe("propagate", "success")
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"request_id": requestID,
		"outcome":    outcome.String(),
		"balance":    wr.Balance().String(),
	})
}

// HandleGenesis handles POST /api/v1/genesis: the one-shot minting
// ceremony. It rejects once the target wallet has already been touched.
func (h *ReplicaHandlers) HandleGenesis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	requestID := uuid.New()
	var req propagateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid credit agreement proof")
		return
	}

	ctx := r.Context()
	recipient := req.Proof.SignedCredit.Recipient()
	wr, err := h.getOrLoad(ctx, recipient)
	if err != nil {
		h.logger.Printf("[%s] load wallet: %v", requestID, err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load wallet")
		return
	}

	outcome, ev, err := wr.Genesis(req.Proof, nil)
	if err != nil {
		h.observe("propagate", "rejected")
		h.writeError(w, http.StatusUnprocessableEntity, "GENESIS_REJECTED", err.Error())
		return
	}
	if outcome == replica.OutcomeNoChange {
		h.observe("propagate", "no_change")
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"request_id": requestID, "outcome": outcome.String()})
		return
	}

	if err := h.apply(ctx, recipient, wr, ev); err != nil {
		h.logger.Printf("[%s] apply genesis: %v", requestID, err)
		h.observe("propagate", "error")
		h.writeError(w, http.StatusInternalServerError, "APPLY_FAILED", "Failed to apply genesis credit")
		return
	}

	if h.metrics != nil {
		h.metrics.SetWalletBalance(walletKey(recipient), wr.Balance().AsNano())
	}
	h.observe("propagate", "success")
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"request_id": requestID,
		"balance":    wr.Balance().String(),
	})
}

// addKnownGroupRequest is the JSON body of POST /api/v1/groups.
type addKnownGroupRequest struct {
	WalletID string           `json:"wallet_id"`
	Group    wallet.GroupKey  `json:"group"`
}

// HandleAddKnownGroup handles POST /api/v1/groups: registers a peer
// replica group for the wallet identified by wallet_id (hex-encoded BLS
// public key bytes), so credits propagated from that group can later be
// verified.
func (h *ReplicaHandlers) HandleAddKnownGroup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	requestID := uuid.New()
	var req addKnownGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid known-group request")
		return
	}

	blsBytes, err := hex.DecodeString(req.WalletID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_WALLET_ID", "wallet_id must be hex-encoded")
		return
	}
	id := wallet.PublicKey{Kind: wallet.PublicKeyBLS, BLS: blsBytes}

	ctx := r.Context()
	wr, err := h.getOrLoad(ctx, id)
	if err != nil {
		h.logger.Printf("[%s] load wallet: %v", requestID, err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load wallet")
		return
	}

	group, err := req.Group.PublicKeySet()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_GROUP", "Invalid group key commitments")
		return
	}

	ev, err := wr.AddKnownGroup(group)
	if err != nil {
		h.writeError(w, http.StatusConflict, "GROUP_ALREADY_KNOWN", err.Error())
		return
	}

	if err := h.apply(ctx, id, wr, ev); err != nil {
		h.logger.Printf("[%s] apply add-known-group: %v", requestID, err)
		h.writeError(w, http.StatusInternalServerError, "APPLY_FAILED", "Failed to apply known-group registration")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"request_id": requestID})
}

// HandleGetWallet handles GET /api/v1/wallets/{wallet_id}: returns the
// wallet's current snapshot.
func (h *ReplicaHandlers) HandleGetWallet(w http.ResponseWriter, r *http.Request, walletIDHex string) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	blsBytes, err := hex.DecodeString(walletIDHex)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_WALLET_ID", "wallet_id must be hex-encoded")
		return
	}
	id := wallet.PublicKey{Kind: wallet.PublicKeyBLS, BLS: blsBytes}

	wr, err := h.getOrLoad(r.Context(), id)
	if err != nil {
		h.logger.Printf("load wallet: %v", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load wallet")
		return
	}

	h.writeJSON(w, http.StatusOK, wr.Snapshot())
}

func (h *ReplicaHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("error encoding response: %v", err)
	}
}

func (h *ReplicaHandlers) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
