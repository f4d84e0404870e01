package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMux builds the replica process's HTTP routing table: the transfer
// and genesis operations, a wallet lookup endpoint, a liveness probe, and
// (when reg is non-nil) a Prometheus scrape endpoint.
func NewMux(h *ReplicaHandlers, reg prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/transfers/validate", h.HandleValidateTransfer)
	mux.HandleFunc("/api/v1/transfers/register", h.HandleRegisterTransfer)
	mux.HandleFunc("/api/v1/transfers/propagate", h.HandleReceivePropagated)
	mux.HandleFunc("/api/v1/genesis", h.HandleGenesis)
	mux.HandleFunc("/api/v1/groups", h.HandleAddKnownGroup)
	mux.HandleFunc("/api/v1/wallets/", func(w http.ResponseWriter, r *http.Request) {
		walletID := strings.TrimPrefix(r.URL.Path, "/api/v1/wallets/")
		walletID = strings.TrimSuffix(walletID, "/")
		if walletID == "" {
			h.writeError(w, http.StatusBadRequest, "INVALID_WALLET_ID", "wallet id is required")
			return
		}
		h.HandleGetWallet(w, r, walletID)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	if reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	return mux
}
