package repo

import (
	"context"
	"encoding/json"

	"roaming/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

type CompaniesRepo struct{ db *pgxpool.Pool }

func NewCompaniesRepo(db *pgxpool.Pool) *CompaniesRepo { return &CompaniesRepo{db: db} }

// Create returns the id of the tenant's company with this name, inserting it if needed.
func (r *CompaniesRepo) Create(ctx context.Context, c models.Company) (string, error) {
	row := r.db.QueryRow(ctx, `
		insert into companies (tenant_id, name, issuer) values ($1,$2,$3)
		on conflict (tenant_id, name) do update set name=excluded.name
		returning company_id
	`, c.TenantID, c.Name, c.Issuer)
	var id string
	if err := row.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (r *CompaniesRepo) List(ctx context.Context, tenantID string) ([]models.Company, error) {
	rows, err := r.db.Query(ctx, `select company_id, tenant_id, name, issuer from companies where tenant_id=$1 order by name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Company
	for rows.Next() {
		var c models.Company
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Issuer); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type SitesRepo struct{ db *pgxpool.Pool }

func NewSitesRepo(db *pgxpool.Pool) *SitesRepo { return &SitesRepo{db: db} }

func (r *SitesRepo) Create(ctx context.Context, s models.Site) (string, error) {
	addr, err := json.Marshal(s.Address)
	if err != nil {
		return "", err
	}
	lat, lng := splitCoordinates(s.Coordinates)
	row := r.db.QueryRow(ctx, `
		insert into sites (tenant_id, company_id, name, issuer, public, address, latitude, longitude)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
		on conflict (tenant_id, name) do update set name=excluded.name
		returning site_id
	`, s.TenantID, s.CompanyID, s.Name, s.Issuer, s.Public, addr, lat, lng)
	var id string
	if err := row.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (r *SitesRepo) List(ctx context.Context, tenantID string) ([]models.Site, error) {
	rows, err := r.db.Query(ctx, `
		select site_id, tenant_id, company_id, name, issuer, public, address, latitude, longitude, created_at
		from sites where tenant_id=$1 order by name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Site
	for rows.Next() {
		var s models.Site
		var addr []byte
		var lat, lng *float64
		if err := rows.Scan(&s.ID, &s.TenantID, &s.CompanyID, &s.Name, &s.Issuer, &s.Public, &addr, &lat, &lng, &s.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(addr, &s.Address); err != nil {
			return nil, err
		}
		s.Coordinates = joinCoordinates(lat, lng)
		out = append(out, s)
	}
	return out, rows.Err()
}

type SiteAreasRepo struct{ db *pgxpool.Pool }

func NewSiteAreasRepo(db *pgxpool.Pool) *SiteAreasRepo { return &SiteAreasRepo{db: db} }

func (r *SiteAreasRepo) Create(ctx context.Context, a models.SiteArea) (string, error) {
	addr, err := json.Marshal(a.Address)
	if err != nil {
		return "", err
	}
	lat, lng := splitCoordinates(a.Coordinates)
	row := r.db.QueryRow(ctx, `
		insert into site_areas (tenant_id, site_id, name, issuer, address, latitude, longitude)
		values ($1,$2,$3,$4,$5,$6,$7)
		on conflict (tenant_id, name) do update set name=excluded.name
		returning site_area_id
	`, a.TenantID, a.SiteID, a.Name, a.Issuer, addr, lat, lng)
	var id string
	if err := row.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (r *SiteAreasRepo) List(ctx context.Context, tenantID string) ([]models.SiteArea, error) {
	rows, err := r.db.Query(ctx, `
		select site_area_id, tenant_id, site_id, name, issuer, address, latitude, longitude, created_at
		from site_areas where tenant_id=$1 order by name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SiteArea
	for rows.Next() {
		var a models.SiteArea
		var addr []byte
		var lat, lng *float64
		if err := rows.Scan(&a.ID, &a.TenantID, &a.SiteID, &a.Name, &a.Issuer, &addr, &lat, &lng, &a.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(addr, &a.Address); err != nil {
			return nil, err
		}
		a.Coordinates = joinCoordinates(lat, lng)
		out = append(out, a)
	}
	return out, rows.Err()
}

func splitCoordinates(c *models.Coordinates) (*float64, *float64) {
	if c == nil {
		return nil, nil
	}
	lat, lng := c.Latitude, c.Longitude
	return &lat, &lng
}

func joinCoordinates(lat, lng *float64) *models.Coordinates {
	if lat == nil || lng == nil {
		return nil
	}
	return &models.Coordinates{Latitude: *lat, Longitude: *lng}
}
