package repo

import (
	"context"

	"roaming/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type TariffsRepo struct{ db *pgxpool.Pool }

func NewTariffsRepo(db *pgxpool.Pool) *TariffsRepo { return &TariffsRepo{db: db} }

// UpsertActiveForSite deactivates the site's current tariff and inserts a new active one.
func (r *TariffsRepo) UpsertActiveForSite(ctx context.Context, tenantID, siteID string, pricePerKwh decimal.Decimal, currency string) (string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `update tariffs set is_active=false, updated_at=now() where tenant_id=$1 and site_id=$2 and is_active=true`, tenantID, siteID); err != nil {
		return "", err
	}
	var id string
	err = tx.QueryRow(ctx, `
		insert into tariffs (tenant_id, site_id, price_per_kwh, currency, is_active)
		values ($1,$2,$3::numeric,$4,true)
		returning tariff_id
	`, tenantID, siteID, pricePerKwh.String(), currency).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, tx.Commit(ctx)
}

func (r *TariffsRepo) GetActiveForSite(ctx context.Context, tenantID, siteID string) (*models.Tariff, error) {
	row := r.db.QueryRow(ctx, `
		select tariff_id, tenant_id, site_id, price_per_kwh::text, currency, is_active, created_at, updated_at
		from tariffs
		where tenant_id=$1 and site_id=$2 and is_active=true
		order by created_at desc
		limit 1
	`, tenantID, siteID)
	var t models.Tariff
	var price string
	if err := row.Scan(&t.TariffID, &t.TenantID, &t.SiteID, &price, &t.Currency, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, err
	}
	t.PricePerKwh = p
	return &t, nil
}
