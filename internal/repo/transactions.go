package repo

import (
	"context"

	"roaming/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type TransactionsRepo struct{ db *pgxpool.Pool }

func NewTransactionsRepo(db *pgxpool.Pool) *TransactionsRepo { return &TransactionsRepo{db: db} }

const transactionColumns = `transaction_id, tenant_id, charging_station_id, connector_id, tag_id, company_id, site_id, site_area_id,
	issuer, started_at, meter_start_wh, current_consumption_wh, current_price::text, currency, last_consumption_at,
	stop, roaming_data`

// keeps an already attached cdr whatever the incoming roaming data says
const preserveCdr = `case when transactions.roaming_data->'cdr' is not null
	then coalesce(excluded.roaming_data, '{}'::jsonb) || jsonb_build_object('cdr', transactions.roaming_data->'cdr')
	else excluded.roaming_data end`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	var price string
	var stop, roaming []byte
	if err := row.Scan(&t.ID, &t.TenantID, &t.ChargingStationID, &t.ConnectorID, &t.TagID, &t.CompanyID, &t.SiteID, &t.SiteAreaID,
		&t.Issuer, &t.StartedAt, &t.MeterStartWh, &t.CurrentConsumptionWh, &price, &t.Currency, &t.LastConsumptionAt,
		&stop, &roaming); err != nil {
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, err
	}
	t.CurrentPrice = p
	if t.Stop, err = decodeJSON[models.TransactionStop](stop); err != nil {
		return nil, err
	}
	if t.RoamingData, err = decodeJSON[models.RoamingData](roaming); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransactionsRepo) Get(ctx context.Context, tenantID, id string) (*models.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRow(ctx, `select `+transactionColumns+` from transactions where tenant_id=$1 and transaction_id=$2`, tenantID, id))
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// GetByRoamingSessionID finds the transaction mirroring a partner session.
func (r *TransactionsRepo) GetByRoamingSessionID(ctx context.Context, tenantID, sessionID string) (*models.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRow(ctx, `
		select `+transactionColumns+` from transactions
		where tenant_id=$1 and roaming_session_id=$2
		order by started_at desc
		limit 1
	`, tenantID, sessionID))
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// Save upserts the whole transaction. An existing CDR is never replaced.
func (r *TransactionsRepo) Save(ctx context.Context, t models.Transaction) error {
	stop, err := nullJSON(t.Stop)
	if err != nil {
		return err
	}
	roaming, err := nullJSON(t.RoamingData)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		insert into transactions (transaction_id, tenant_id, charging_station_id, connector_id, tag_id, company_id, site_id, site_area_id,
		  issuer, started_at, meter_start_wh, current_consumption_wh, current_price, currency, last_consumption_at, stop, roaming_data)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13::numeric,$14,$15,$16,$17)
		on conflict (tenant_id, transaction_id) do update set
		  charging_station_id=excluded.charging_station_id,
		  connector_id=excluded.connector_id,
		  tag_id=excluded.tag_id,
		  company_id=excluded.company_id,
		  site_id=excluded.site_id,
		  site_area_id=excluded.site_area_id,
		  issuer=excluded.issuer,
		  started_at=excluded.started_at,
		  meter_start_wh=excluded.meter_start_wh,
		  current_consumption_wh=excluded.current_consumption_wh,
		  current_price=excluded.current_price,
		  currency=excluded.currency,
		  last_consumption_at=excluded.last_consumption_at,
		  stop=excluded.stop,
		  roaming_data=`+preserveCdr+`,
		  updated_at=now()
	`, t.ID, t.TenantID, t.ChargingStationID, t.ConnectorID, t.TagID, t.CompanyID, t.SiteID, t.SiteAreaID,
		t.Issuer, t.StartedAt, t.MeterStartWh, t.CurrentConsumptionWh, t.CurrentPrice.String(), t.Currency, t.LastConsumptionAt,
		stop, roaming)
	return err
}

// SaveRoamingData replaces the roaming sub-record, keeping an existing CDR.
func (r *TransactionsRepo) SaveRoamingData(ctx context.Context, tenantID, id string, rd *models.RoamingData) error {
	b, err := nullJSON(rd)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		update transactions set
		  roaming_data = case when roaming_data->'cdr' is not null
		    then coalesce($3::jsonb, '{}'::jsonb) || jsonb_build_object('cdr', roaming_data->'cdr')
		    else $3::jsonb end,
		  updated_at=now()
		where tenant_id=$1 and transaction_id=$2
	`, tenantID, id, b)
	return err
}

// ListAwaitingCdr returns stopped roaming transactions on our own stations with no CDR attached, oldest first.
func (r *TransactionsRepo) ListAwaitingCdr(ctx context.Context, tenantID string, limit int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		select `+transactionColumns+`
		from transactions
		where tenant_id=$1 and issuer=true and stop is not null and roaming_data is not null and roaming_data->'cdr' is null
		order by started_at
		limit $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
