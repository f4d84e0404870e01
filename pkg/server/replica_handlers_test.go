package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vaultmint/at2-replica/pkg/crypto/bls"
	"github.com/vaultmint/at2-replica/pkg/money"
	"github.com/vaultmint/at2-replica/pkg/signer"
	"github.com/vaultmint/at2-replica/pkg/wallet"
)

// newTestHandlers builds a threshold-0 (single-replica) group so genesis
// and validation can be exercised without a multi-party share exchange.
func newTestHandlers(t *testing.T) (*ReplicaHandlers, *bls.SecretKeySet) {
	t.Helper()
	sks, err := bls.NewSecretKeySet(0)
	if err != nil {
		t.Fatalf("NewSecretKeySet: %v", err)
	}
	pks := sks.PublicKeys()
	gateway := signer.NewLocalGateway(sks.SecretKeyShare(0))
	rs := signer.NewReplicaSigner(pks.PublicKeyShare(0), 0, pks, gateway, nil)
	return NewReplicaHandlers(pks.PublicKeyShare(0), 0, pks, nil, rs, nil, nil), sks
}

func TestHandleValidateTransfer_MethodNotAllowed(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers/validate", nil)
	rr := httptest.NewRecorder()
	h.HandleValidateTransfer(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}

func TestHandleValidateTransfer_InvalidBody(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers/validate", bytes.NewBufferString("not json"))
	rr := httptest.NewRecorder()
	h.HandleValidateTransfer(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestHandleGenesisThenGetWallet(t *testing.T) {
	h, sks := newTestHandlers(t)

	proof, err := signer.MultiGenesis(money.FromNano(1_000), sks)
	if err != nil {
		t.Fatalf("MultiGenesis: %v", err)
	}

	body, err := json.Marshal(propagateRequest{Proof: proof})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/genesis", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.HandleGenesis(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("genesis: expected %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}

	recipient := proof.SignedCredit.Recipient()
	walletID := walletKey(recipient)

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/wallets/"+walletID, nil)
	getRR := httptest.NewRecorder()
	h.HandleGetWallet(getRR, getReq, walletID)

	if getRR.Code != http.StatusOK {
		t.Fatalf("get wallet: expected %d, got %d", http.StatusOK, getRR.Code)
	}

	var snap wallet.Snapshot
	if err := json.NewDecoder(getRR.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Balance != money.FromNano(1_000) {
		t.Fatalf("unexpected balance: %+v", snap)
	}
}

func TestHandleGenesis_RejectsSecondTime(t *testing.T) {
	h, sks := newTestHandlers(t)

	proof, err := signer.MultiGenesis(money.FromNano(500), sks)
	if err != nil {
		t.Fatalf("MultiGenesis: %v", err)
	}
	body, _ := json.Marshal(propagateRequest{Proof: proof})

	first := httptest.NewRequest(http.MethodPost, "/api/v1/genesis", bytes.NewReader(body))
	h.HandleGenesis(httptest.NewRecorder(), first)

	second := httptest.NewRequest(http.MethodPost, "/api/v1/genesis", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.HandleGenesis(rr, second)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("second genesis on a minted wallet should be rejected with %d, got %d: %s", http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
	}
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	errObj, _ := resp["error"].(map[string]interface{})
	if errObj["code"] != "GENESIS_REJECTED" {
		t.Fatalf("expected GENESIS_REJECTED error code, got %v", resp)
	}
}
