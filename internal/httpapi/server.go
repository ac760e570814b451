package httpapi

import (
	"context"
	"net/http"

	"roaming/internal/models"
	"roaming/internal/services"
	"roaming/internal/syncresult"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type TokenFlow interface {
	PushAllTokens(ctx context.Context, tenantID, endpointID string) (syncresult.Summary, error)
	PushTag(ctx context.Context, tenantID, endpointID, tagID string) error
}

type CdrPusher interface {
	Execute(ctx context.Context, tenantID string) (*services.CdrPushReport, error)
	PushTransaction(ctx context.Context, tenantID, txID string) (services.PushOutcome, error)
}

type Commander interface {
	RemoteStart(ctx context.Context, tenantID, endpointID, tagID, stationID string) (*models.Command, error)
	RemoteStop(ctx context.Context, tenantID, endpointID, txID string) (*models.Command, error)
}

type CommandReader interface {
	Get(ctx context.Context, tenantID, id string) (*models.Command, error)
}

type SiteLister interface {
	List(ctx context.Context, tenantID string) ([]models.Site, error)
}

type TariffWriter interface {
	UpsertActiveForSite(ctx context.Context, tenantID, siteID string, pricePerKwh decimal.Decimal, currency string) (string, error)
}

// Server exposes manual triggers for the sync flows. Pulls maps a module
// name (locations, sessions, cdrs) to its flow.
type Server struct {
	APIKey     string
	Tokens     TokenFlow
	Pulls      map[string]services.EndpointFlow
	CdrPush    CdrPusher
	Commands   Commander
	CommandLog CommandReader
	Sites      SiteLister
	Tariffs    TariffWriter
	Logger     logrus.FieldLogger
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/v1/tenants/{tenantID}", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return RequireBearer(s.APIKey, next) })

		r.Route("/endpoints/{endpointID}", func(r chi.Router) {
			r.Post("/tokens/push", s.PushTokens)
			r.Post("/tokens/{tagID}/push", s.PushToken)
			r.Post("/{module}/pull", s.Pull)
			r.Post("/commands/start", s.StartSession)
			r.Post("/commands/stop", s.StopSession)
		})
		r.Get("/commands/{commandID}", s.GetCommand)

		r.Post("/cdrs/push", s.PushCdrs)
		r.Post("/transactions/{transactionID}/cdr", s.PushTransactionCdr)

		r.Get("/sites", s.ListSites)
		r.Put("/sites/{siteID}/tariff", s.UpsertActiveTariff)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}

func (s *Server) logger() logrus.FieldLogger {
	if s.Logger == nil {
		return logrus.StandardLogger()
	}
	return s.Logger
}
