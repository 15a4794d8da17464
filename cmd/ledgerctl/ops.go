package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/R3E-Network/ledger_client/internal/chain"
	"github.com/R3E-Network/ledger_client/internal/metrics"
	"github.com/R3E-Network/ledger_client/pkg/logger"
)

// newOpsRouter serves /metrics and a /healthz probe backed by getVersion.
func newOpsRouter(m *chain.Manager) http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		v, err := m.Version(ctx)
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "ok",
			"solana_core": v.Core,
			"feature_set": v.FeatureSet,
		})
	}).Methods(http.MethodGet)
	return metrics.InstrumentHandler(r)
}

func startOpsServer(addr string, m *chain.Manager, log *logger.Logger) *http.Server {
	server := &http.Server{
		Addr:         addr,
		Handler:      newOpsRouter(m),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		log.WithField("addr", addr).Info("ops listener started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("ops listener failed")
		}
	}()
	return server
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve /metrics and /healthz until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			if a.ops == nil {
				return errors.New("serve needs --metrics-addr or metrics.addr")
			}
			<-cmd.Context().Done()
			a.log.Info("shutting down")
			return nil
		},
	}
}
