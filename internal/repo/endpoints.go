package repo

import (
	"context"
	"encoding/json"

	"roaming/internal/errs"
	"roaming/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EndpointsRepo struct{ db *pgxpool.Pool }

func NewEndpointsRepo(db *pgxpool.Pool) *EndpointsRepo { return &EndpointsRepo{db: db} }

const endpointColumns = `endpoint_id, tenant_id, name, role, base_url, token, country_code, party_id, status,
	version, last_sync_at, outcomes, created_at, updated_at`

func scanEndpoint(row pgx.Row) (*models.Endpoint, error) {
	var e models.Endpoint
	var outcomes []byte
	if err := row.Scan(&e.ID, &e.TenantID, &e.Name, &e.Role, &e.BaseURL, &e.Token, &e.CountryCode, &e.PartyID, &e.Status,
		&e.Version, &e.LastSyncAt, &outcomes, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if len(outcomes) > 0 {
		if err := json.Unmarshal(outcomes, &e.Outcomes); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

// Create inserts or updates an endpoint by (tenant, name) and returns its id.
func (r *EndpointsRepo) Create(ctx context.Context, e models.Endpoint) (string, error) {
	row := r.db.QueryRow(ctx, `
		insert into roaming_endpoints (tenant_id, name, role, base_url, token, country_code, party_id, status)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
		on conflict (tenant_id, name) do update set
		  role=excluded.role,
		  base_url=excluded.base_url,
		  token=excluded.token,
		  country_code=excluded.country_code,
		  party_id=excluded.party_id,
		  status=excluded.status,
		  updated_at=now()
		returning endpoint_id
	`, e.TenantID, e.Name, e.Role, e.BaseURL, e.Token, e.CountryCode, e.PartyID, e.Status)
	var id string
	if err := row.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (r *EndpointsRepo) Get(ctx context.Context, tenantID, id string) (*models.Endpoint, error) {
	e, err := scanEndpoint(r.db.QueryRow(ctx, `select `+endpointColumns+` from roaming_endpoints where tenant_id=$1 and endpoint_id=$2`, tenantID, id))
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

func (r *EndpointsRepo) ListByTenant(ctx context.Context, tenantID string) ([]models.Endpoint, error) {
	rows, err := r.db.Query(ctx, `select `+endpointColumns+` from roaming_endpoints where tenant_id=$1 order by name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Endpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ListTenants returns every tenant that has at least one endpoint.
func (r *EndpointsRepo) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `select distinct tenant_id from roaming_endpoints order by tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveSyncOutcome persists outcomes and last sync time if e.Version is still
// current, then bumps e.Version. A stale version yields a CodeConflict error.
func (r *EndpointsRepo) SaveSyncOutcome(ctx context.Context, e *models.Endpoint) error {
	outcomes, err := json.Marshal(e.Outcomes)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		update roaming_endpoints set outcomes=$3, last_sync_at=$4, version=version+1, updated_at=now()
		where tenant_id=$1 and endpoint_id=$2 and version=$5
	`, e.TenantID, e.ID, outcomes, e.LastSyncAt, e.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.CodeConflict, "endpoint version is stale").
			With("endpointId", e.ID).
			With("version", e.Version)
	}
	e.Version++
	return nil
}
