package repo

import (
	"context"
	"encoding/json"

	"roaming/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ChargingStationsRepo struct{ db *pgxpool.Pool }

func NewChargingStationsRepo(db *pgxpool.Pool) *ChargingStationsRepo {
	return &ChargingStationsRepo{db: db}
}

const stationColumns = `charging_station_id, tenant_id, company_id, site_id, site_area_id, issuer, public, status,
	latitude, longitude, connectors, coalesce(remote_location_id,''), coalesce(remote_evse_uid,''), roaming_data,
	last_seen_at, created_at, updated_at`

func scanStation(row pgx.Row) (*models.ChargingStation, error) {
	var c models.ChargingStation
	var lat, lng *float64
	var connectors, roaming []byte
	if err := row.Scan(&c.ID, &c.TenantID, &c.CompanyID, &c.SiteID, &c.SiteAreaID, &c.Issuer, &c.Public, &c.Status,
		&lat, &lng, &connectors, &c.RemoteLocationID, &c.RemoteEvseUID, &roaming,
		&c.LastSeenAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Coordinates = joinCoordinates(lat, lng)
	if err := json.Unmarshal(connectors, &c.Connectors); err != nil {
		return nil, err
	}
	rd, err := decodeJSON[models.StationRoamingData](roaming)
	if err != nil {
		return nil, err
	}
	c.RoamingData = rd
	return &c, nil
}

func (r *ChargingStationsRepo) Get(ctx context.Context, tenantID, id string) (*models.ChargingStation, error) {
	c, err := scanStation(r.db.QueryRow(ctx, `select `+stationColumns+` from charging_stations where tenant_id=$1 and charging_station_id=$2`, tenantID, id))
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// GetByRemoteKey finds the station mirrored from a partner EVSE.
func (r *ChargingStationsRepo) GetByRemoteKey(ctx context.Context, tenantID, locationID, evseUID string) (*models.ChargingStation, error) {
	c, err := scanStation(r.db.QueryRow(ctx, `
		select `+stationColumns+` from charging_stations
		where tenant_id=$1 and remote_location_id=$2 and remote_evse_uid=$3
	`, tenantID, locationID, evseUID))
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// Save upserts the station's local fields. The roaming sidecar is written by SaveRoamingData.
func (r *ChargingStationsRepo) Save(ctx context.Context, c models.ChargingStation) error {
	connectors, err := json.Marshal(c.Connectors)
	if err != nil {
		return err
	}
	if c.Connectors == nil {
		connectors = []byte("[]")
	}
	lat, lng := splitCoordinates(c.Coordinates)
	_, err = r.db.Exec(ctx, `
		insert into charging_stations (charging_station_id, tenant_id, company_id, site_id, site_area_id, issuer, public, status,
		  latitude, longitude, connectors, remote_location_id, remote_evse_uid, last_seen_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,nullif($12,''),nullif($13,''),$14)
		on conflict (tenant_id, charging_station_id) do update set
		  company_id=excluded.company_id,
		  site_id=excluded.site_id,
		  site_area_id=excluded.site_area_id,
		  issuer=excluded.issuer,
		  public=excluded.public,
		  status=excluded.status,
		  latitude=excluded.latitude,
		  longitude=excluded.longitude,
		  connectors=excluded.connectors,
		  remote_location_id=excluded.remote_location_id,
		  remote_evse_uid=excluded.remote_evse_uid,
		  last_seen_at=excluded.last_seen_at,
		  updated_at=now()
	`, c.ID, c.TenantID, c.CompanyID, c.SiteID, c.SiteAreaID, c.Issuer, c.Public, c.Status,
		lat, lng, connectors, c.RemoteLocationID, c.RemoteEvseUID, c.LastSeenAt)
	return err
}

func (r *ChargingStationsRepo) SaveRoamingData(ctx context.Context, tenantID, id string, rd *models.StationRoamingData) error {
	b, err := nullJSON(rd)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		update charging_stations set roaming_data=$3, updated_at=now()
		where tenant_id=$1 and charging_station_id=$2
	`, tenantID, id, b)
	return err
}

func (r *ChargingStationsRepo) Delete(ctx context.Context, tenantID, id string) error {
	_, err := r.db.Exec(ctx, `delete from charging_stations where tenant_id=$1 and charging_station_id=$2`, tenantID, id)
	return err
}
