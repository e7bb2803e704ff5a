package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ledgerops/shadow-ledger/internal/drift"
	"github.com/ledgerops/shadow-ledger/internal/ingest"
	"github.com/ledgerops/shadow-ledger/internal/ledger"
	"go.uber.org/zap"
)

// Server is the thin HTTP surface over the core: ingestion, balance queries,
// drift checks, and manual corrections, each behind its role gate.
type Server struct {
	ledger     *ledger.Ledger
	ingest     *ingest.Service
	reconciler *drift.Reconciler
	auth       *Auth
	log        *zap.Logger
}

func New(l *ledger.Ledger, ing *ingest.Service, rec *drift.Reconciler, auth *Auth, log *zap.Logger) *Server {
	return &Server{
		ledger:     l,
		ingest:     ing,
		reconciler: rec,
		auth:       auth,
		log:        log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/auth/token", s.handleToken)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/accounts/{accountId}/shadow-balance", s.handleShadowBalance)
		r.Get("/accounts/{accountId}/ledger", s.handleRunningBalance)
		r.Get("/ledger-entries", s.handleLedgerEntries)

		r.With(requireRole("user")).Post("/events", s.handleIngest)
		r.With(requireRole("auditor")).Post("/drift-check", s.handleDriftCheck)
		r.With(requireRole("admin")).Post("/correct/{accountId}", s.handleManualCorrection)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}
