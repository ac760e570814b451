package httpapi

import (
	"net/http"

	"roaming/internal/errs"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type siteResp struct {
	SiteID    string `json:"siteId"`
	CompanyID string `json:"companyId"`
	Name      string `json:"name"`
	Issuer    bool   `json:"issuer"`
}

func (s *Server) ListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.Sites.List(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeError(w, s.logger(), "ListSites", err)
		return
	}
	out := make([]siteResp, 0, len(sites))
	for _, site := range sites {
		out = append(out, siteResp{SiteID: site.ID, CompanyID: site.CompanyID, Name: site.Name, Issuer: site.Issuer})
	}
	writeJSON(w, http.StatusOK, out)
}

type upsertTariffReq struct {
	PricePerKwh decimal.Decimal `json:"pricePerKwh"`
	Currency    string          `json:"currency"`
}

// UpsertActiveTariff sets the tariff CDRs of the site are priced with.
func (s *Server) UpsertActiveTariff(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	var req upsertTariffReq
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, s.logger(), "UpsertActiveTariff", err)
		return
	}
	if !req.PricePerKwh.IsPositive() {
		writeError(w, s.logger(), "UpsertActiveTariff", errs.New(errs.CodeInvalidInput, "pricePerKwh must be positive"))
		return
	}
	if req.Currency == "" {
		req.Currency = "EUR"
	}
	id, err := s.Tariffs.UpsertActiveForSite(r.Context(), chi.URLParam(r, "tenantID"), siteID, req.PricePerKwh, req.Currency)
	if err != nil {
		writeError(w, s.logger(), "UpsertActiveTariff", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tariffId": id, "siteId": siteID, "pricePerKwh": req.PricePerKwh, "currency": req.Currency, "isActive": true})
}
