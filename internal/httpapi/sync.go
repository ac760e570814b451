package httpapi

import (
	"net/http"

	"roaming/internal/errs"

	"github.com/go-chi/chi/v5"
)

func (s *Server) PushTokens(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Tokens.PushAllTokens(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "endpointID"))
	if err != nil {
		writeError(w, s.logger(), "PushTokens", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) PushToken(w http.ResponseWriter, r *http.Request) {
	tagID := chi.URLParam(r, "tagID")
	if err := s.Tokens.PushTag(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "endpointID"), tagID); err != nil {
		writeError(w, s.logger(), "PushToken", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tagId": tagID, "pushed": true})
}

func (s *Server) Pull(w http.ResponseWriter, r *http.Request) {
	module := chi.URLParam(r, "module")
	flow, ok := s.Pulls[module]
	if !ok {
		writeError(w, s.logger(), "Pull", errs.New(errs.CodeNotFound, "unknown module "+module))
		return
	}
	summary, err := flow(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "endpointID"))
	if err != nil {
		// the partial summary is already persisted; report both
		writeJSON(w, statusOf(err), map[string]any{"code": string(errs.CodeOf(err)), "error": err.Error(), "summary": summary})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) PushCdrs(w http.ResponseWriter, r *http.Request) {
	report, err := s.CdrPush.Execute(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeError(w, s.logger(), "PushCdrs", err)
		return
	}
	status := http.StatusOK
	if !report.Ran {
		status = http.StatusConflict
	}
	writeJSON(w, status, report)
}

func (s *Server) PushTransactionCdr(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "transactionID")
	outcome, err := s.CdrPush.PushTransaction(r.Context(), chi.URLParam(r, "tenantID"), txID)
	if err != nil {
		writeError(w, s.logger(), "PushTransactionCdr", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactionId": txID, "outcome": outcome})
}
