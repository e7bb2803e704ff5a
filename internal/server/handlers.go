package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ledgerops/shadow-ledger/internal/drift"
	"github.com/ledgerops/shadow-ledger/internal/ingest"
	"github.com/ledgerops/shadow-ledger/internal/models"
	"github.com/ledgerops/shadow-ledger/internal/models/events"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// handleToken mints a token for the requested roles. Credential validation
// belongs to an identity provider and is out of scope here; this endpoint
// exists for development and testing, matching the rest of the surface.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string   `json:"username"`
		Roles    []string `json:"roles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeError(w, http.StatusBadRequest, "username and roles are required")
		return
	}

	token, err := s.auth.IssueToken(req.Username, req.Roles)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var ev events.TransactionEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.ingest.Ingest(r.Context(), ev)
	switch {
	case errors.Is(err, ingest.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ingest.ErrDuplicateEvent):
		writeError(w, http.StatusConflict, "event id already exists")
	case err != nil:
		s.log.Error("ingest failed", zap.String("event_id", ev.EventID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	default:
		writeJSON(w, http.StatusCreated, map[string]string{
			"status":  "success",
			"eventId": ev.EventID,
		})
	}
}

func (s *Server) handleShadowBalance(w http.ResponseWriter, r *http.Request) {
	accountId := chi.URLParam(r, "accountId")

	balance, err := s.ledger.ShadowBalance(r.Context(), accountId)
	if err != nil {
		s.log.Error("shadow balance lookup failed", zap.String("account_id", accountId), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (s *Server) handleRunningBalance(w http.ResponseWriter, r *http.Request) {
	accountId := chi.URLParam(r, "accountId")

	points, err := s.ledger.RunningBalanceView(r.Context(), accountId)
	if err != nil {
		s.log.Error("running balance view failed", zap.String("account_id", accountId), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accountId": accountId,
		"entries":   points,
	})
}

func (s *Server) handleLedgerEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ledger.Entries(r.Context())
	if err != nil {
		s.log.Error("ledger listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleDriftCheck(w http.ResponseWriter, r *http.Request) {
	var reported []models.ExternalBalance
	if err := json.NewDecoder(r.Body).Decode(&reported); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	summary, err := s.reconciler.DetectDrift(r.Context(), reported)
	if err != nil {
		s.log.Error("drift check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleManualCorrection(w http.ResponseWriter, r *http.Request) {
	accountId := chi.URLParam(r, "accountId")

	var req struct {
		Type   string          `json:"type"`
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	correction, err := s.reconciler.ManualCorrection(r.Context(), accountId, req.Type, req.Amount)
	switch {
	case errors.Is(err, drift.ErrInvalidCorrection):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.log.Error("manual correction failed", zap.String("account_id", accountId), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "success",
			"accountId": accountId,
			"eventId":   correction.EventID,
		})
	}
}
