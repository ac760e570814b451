package httpapi

import (
	"encoding/json"
	"net/http"

	"roaming/internal/errs"
	"roaming/internal/models"

	"github.com/go-chi/chi/v5"
)

type startSessionReq struct {
	TagID             string `json:"tagId"`
	ChargingStationID string `json:"chargingStationId"`
}

type stopSessionReq struct {
	TransactionID string `json:"transactionId"`
}

type commandResp struct {
	CommandID string          `json:"commandId"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     *string         `json:"error,omitempty"`
}

func toCommandResp(c *models.Command) commandResp {
	return commandResp{CommandID: c.CommandID, Type: c.Type, Status: c.Status, Response: c.ResponseJSON, Error: c.Error}
}

func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionReq
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, s.logger(), "StartSession", err)
		return
	}
	if req.TagID == "" || req.ChargingStationID == "" {
		writeError(w, s.logger(), "StartSession", errs.New(errs.CodeInvalidInput, "missing tagId/chargingStationId"))
		return
	}
	cmd, err := s.Commands.RemoteStart(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "endpointID"), req.TagID, req.ChargingStationID)
	s.writeCommand(w, "StartSession", cmd, err)
}

func (s *Server) StopSession(w http.ResponseWriter, r *http.Request) {
	var req stopSessionReq
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, s.logger(), "StopSession", err)
		return
	}
	if req.TransactionID == "" {
		writeError(w, s.logger(), "StopSession", errs.New(errs.CodeInvalidInput, "missing transactionId"))
		return
	}
	cmd, err := s.Commands.RemoteStop(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "endpointID"), req.TransactionID)
	s.writeCommand(w, "StopSession", cmd, err)
}

// writeCommand reports a recorded command even when sending it failed.
func (s *Server) writeCommand(w http.ResponseWriter, funcName string, cmd *models.Command, err error) {
	if err != nil && cmd == nil {
		writeError(w, s.logger(), funcName, err)
		return
	}
	switch {
	case err != nil:
		writeJSON(w, statusOf(err), toCommandResp(cmd))
	case cmd.Status == models.CommandFailed:
		writeJSON(w, http.StatusBadGateway, toCommandResp(cmd))
	default:
		writeJSON(w, http.StatusOK, toCommandResp(cmd))
	}
}

func (s *Server) GetCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := s.CommandLog.Get(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "commandID"))
	if err != nil {
		writeError(w, s.logger(), "GetCommand", err)
		return
	}
	if cmd == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, toCommandResp(cmd))
}
