package services

import (
	"context"

	"roaming/internal/models"
)

// Storage the flows depend on. The pgx repositories in internal/repo satisfy these.

type EndpointStore interface {
	Get(ctx context.Context, tenantID, id string) (*models.Endpoint, error)
	ListByTenant(ctx context.Context, tenantID string) ([]models.Endpoint, error)
	SaveSyncOutcome(ctx context.Context, e *models.Endpoint) error
}

type TagStore interface {
	Get(ctx context.Context, tenantID, id string) (*models.Tag, error)
	ListIssued(ctx context.Context, tenantID string, offset, limit int) ([]models.Tag, error)
}

type StationStore interface {
	Get(ctx context.Context, tenantID, id string) (*models.ChargingStation, error)
	GetByRemoteKey(ctx context.Context, tenantID, locationID, evseUID string) (*models.ChargingStation, error)
	Save(ctx context.Context, c models.ChargingStation) error
	SaveRoamingData(ctx context.Context, tenantID, id string, rd *models.StationRoamingData) error
	Delete(ctx context.Context, tenantID, id string) error
}

type TransactionStore interface {
	Get(ctx context.Context, tenantID, id string) (*models.Transaction, error)
	GetByRoamingSessionID(ctx context.Context, tenantID, sessionID string) (*models.Transaction, error)
	Save(ctx context.Context, t models.Transaction) error
	SaveRoamingData(ctx context.Context, tenantID, id string, rd *models.RoamingData) error
	ListAwaitingCdr(ctx context.Context, tenantID string, limit int) ([]models.Transaction, error)
}

type CompanyStore interface {
	Create(ctx context.Context, c models.Company) (string, error)
	List(ctx context.Context, tenantID string) ([]models.Company, error)
}

type SiteStore interface {
	Create(ctx context.Context, s models.Site) (string, error)
	List(ctx context.Context, tenantID string) ([]models.Site, error)
}

type SiteAreaStore interface {
	Create(ctx context.Context, a models.SiteArea) (string, error)
	List(ctx context.Context, tenantID string) ([]models.SiteArea, error)
}

type TariffStore interface {
	GetActiveForSite(ctx context.Context, tenantID, siteID string) (*models.Tariff, error)
}

type CommandStore interface {
	Create(ctx context.Context, c models.Command) (string, error)
	MarkSent(ctx context.Context, tenantID, id string) error
	MarkAcked(ctx context.Context, tenantID, id string, response []byte) error
	MarkFailed(ctx context.Context, tenantID, id string, errMsg string) error
}
