package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"roaming/internal/errs"
	"roaming/internal/models"
	"roaming/internal/ocpi"
	"roaming/internal/syncresult"
	"roaming/internal/workpool"

	"github.com/sirupsen/logrus"
)

// SiteAreaSeparator joins a site name and a remote location id into a site area name.
const SiteAreaSeparator = "*"

// LocationReconciler mirrors partner locations into companies, sites, site
// areas and charging stations. Entities are matched by name against a
// working set loaded once per run, so locations are processed one at a time.
type LocationReconciler struct {
	endpointRunner
	Companies CompanyStore
	Sites     SiteStore
	SiteAreas SiteAreaStore
	Stations  StationStore
}

func NewLocationReconciler(endpoints EndpointStore, companies CompanyStore, sites SiteStore, areas SiteAreaStore,
	stations StationStore, opts Options, logger logrus.FieldLogger) *LocationReconciler {
	return &LocationReconciler{
		endpointRunner: newRunner(endpoints, opts, logger),
		Companies:      companies,
		Sites:          sites,
		SiteAreas:      areas,
		Stations:       stations,
	}
}

func (r *LocationReconciler) Mode() workpool.Mode { return workpool.Sequential }

// WorkingSet indexes a tenant's companies, sites and site areas by name.
type WorkingSet struct {
	companies map[string]string
	sites     map[string]*models.Site
	areas     map[string]*models.SiteArea
}

// Refresh loads the working set for a tenant.
func (r *LocationReconciler) Refresh(ctx context.Context, tenantID string) (*WorkingSet, error) {
	ws := &WorkingSet{
		companies: make(map[string]string),
		sites:     make(map[string]*models.Site),
		areas:     make(map[string]*models.SiteArea),
	}
	companies, err := r.Companies.List(ctx, tenantID)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "list companies", err)
	}
	for _, c := range companies {
		ws.companies[c.Name] = c.ID
	}
	sites, err := r.Sites.List(ctx, tenantID)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "list sites", err)
	}
	for i := range sites {
		ws.sites[sites[i].Name] = &sites[i]
	}
	areas, err := r.SiteAreas.List(ctx, tenantID)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "list site areas", err)
	}
	for i := range areas {
		ws.areas[areas[i].Name] = &areas[i]
	}
	return ws, nil
}

func (r *LocationReconciler) PullLocations(ctx context.Context, tenantID, endpointID string) (syncresult.Summary, error) {
	return r.run(ctx, JobPullLocations, tenantID, endpointID, func(ctx context.Context, ep *models.Endpoint, client *ocpi.Client, agg *syncresult.Aggregator) error {
		ws, err := r.Refresh(ctx, tenantID)
		if err != nil {
			return err
		}
		params := pullParams(r.now(), r.opts.lookback(), r.opts.pageLimit())
		return pullAll(ctx, client, ocpi.ModuleLocations, params, r.Mode(), agg,
			func(l ocpi.Location) string { return l.ID },
			func(ctx context.Context, l ocpi.Location) error { return r.ReconcileLocation(ctx, ep, ws, l) })
	})
}

// ReconcileLocation applies one location. Every EVSE is attempted; the
// returned error reports the EVSEs that failed.
func (r *LocationReconciler) ReconcileLocation(ctx context.Context, ep *models.Endpoint, ws *WorkingSet, loc ocpi.Location) error {
	if err := ocpi.Validate(loc); err != nil {
		return err
	}
	companyID, err := r.ensureCompany(ctx, ep, ws)
	if err != nil {
		return err
	}
	site, err := r.ensureSite(ctx, ep, ws, companyID, loc)
	if err != nil {
		return err
	}
	area, err := r.ensureSiteArea(ctx, ep, ws, site, loc)
	if err != nil {
		return err
	}

	var failed []string
	for _, evse := range loc.EVSEs {
		if err := r.reconcileEvse(ctx, ep, companyID, site, area, loc, evse); err != nil {
			r.logger.WithFields(logrus.Fields{
				"tenantId":   ep.TenantID,
				"locationId": loc.ID,
				"evseUid":    evse.UID,
			}).WithError(err).Warn("evse not reconciled")
			failed = append(failed, fmt.Sprintf("%s (%v)", evse.UID, err))
		}
	}
	if len(failed) > 0 {
		return errs.Newf(errs.CodeInvalidInput, "%d of %d evses failed: %s", len(failed), len(loc.EVSEs), strings.Join(failed, "; ")).
			With("locationId", loc.ID)
	}
	return nil
}

func (r *LocationReconciler) ensureCompany(ctx context.Context, ep *models.Endpoint, ws *WorkingSet) (string, error) {
	if id, ok := ws.companies[ep.Name]; ok {
		return id, nil
	}
	id, err := r.Companies.Create(ctx, models.Company{TenantID: ep.TenantID, Name: ep.Name})
	if err != nil {
		return "", errs.Wrap(errs.CodeInternal, "create company", err).With("name", ep.Name)
	}
	ws.companies[ep.Name] = id
	return id, nil
}

// SiteName is the operator name, or <country>*<party> of the endpoint when the location has none.
func SiteName(ep *models.Endpoint, loc ocpi.Location) string {
	if loc.Operator != nil && strings.TrimSpace(loc.Operator.Name) != "" {
		return strings.TrimSpace(loc.Operator.Name)
	}
	return ep.CountryCode + SiteAreaSeparator + ep.PartyID
}

func SiteAreaName(siteName, locationID string) string {
	return siteName + SiteAreaSeparator + locationID
}

func (r *LocationReconciler) ensureSite(ctx context.Context, ep *models.Endpoint, ws *WorkingSet, companyID string, loc ocpi.Location) (*models.Site, error) {
	name := SiteName(ep, loc)
	if s, ok := ws.sites[name]; ok {
		return s, nil
	}
	s := models.Site{
		TenantID:    ep.TenantID,
		CompanyID:   companyID,
		Name:        name,
		Public:      true,
		Address:     addressOf(loc),
		Coordinates: coordinatesOf(loc.Coordinates),
	}
	id, err := r.Sites.Create(ctx, s)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "create site", err).With("name", name)
	}
	s.ID = id
	ws.sites[name] = &s
	return &s, nil
}

func (r *LocationReconciler) ensureSiteArea(ctx context.Context, ep *models.Endpoint, ws *WorkingSet, site *models.Site, loc ocpi.Location) (*models.SiteArea, error) {
	name := SiteAreaName(site.Name, loc.ID)
	if a, ok := ws.areas[name]; ok {
		return a, nil
	}
	a := models.SiteArea{
		TenantID:    ep.TenantID,
		SiteID:      site.ID,
		Name:        name,
		Address:     addressOf(loc),
		Coordinates: coordinatesOf(loc.Coordinates),
	}
	id, err := r.SiteAreas.Create(ctx, a)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "create site area", err).With("name", name)
	}
	a.ID = id
	ws.areas[name] = &a
	return &a, nil
}

func (r *LocationReconciler) reconcileEvse(ctx context.Context, ep *models.Endpoint, companyID string, site *models.Site,
	area *models.SiteArea, loc ocpi.Location, evse ocpi.EVSE) error {
	if evse.UID == "" {
		return errs.New(errs.CodeInvalidInput, "evse has no uid").With("locationId", loc.ID)
	}
	existing, err := r.Stations.GetByRemoteKey(ctx, ep.TenantID, loc.ID, evse.UID)
	if err != nil {
		return errs.Wrap(errs.CodeInternal, "find station", err).With("evseUid", evse.UID)
	}

	if evse.Status == ocpi.EvseRemoved {
		if existing == nil {
			return nil
		}
		if err := r.Stations.Delete(ctx, ep.TenantID, existing.ID); err != nil {
			return errs.Wrap(errs.CodeInternal, "delete station", err).With("stationId", existing.ID)
		}
		return nil
	}

	cs := StationFromEvse(ep, loc, evse)
	if existing != nil {
		cs.ID = existing.ID
		cs.CreatedAt = existing.CreatedAt
	}
	cs.CompanyID = companyID
	cs.SiteID = site.ID
	cs.SiteAreaID = area.ID
	seen := r.now()
	cs.LastSeenAt = &seen

	if err := r.Stations.Save(ctx, cs); err != nil {
		return errs.Wrap(errs.CodeInternal, "save station", err).With("stationId", cs.ID)
	}
	e := evse
	rd := &models.StationRoamingData{EndpointID: ep.ID, LocationID: loc.ID, Evse: &e}
	if err := r.Stations.SaveRoamingData(ctx, ep.TenantID, cs.ID, rd); err != nil {
		return errs.Wrap(errs.CodeInternal, "save station roaming data", err).With("stationId", cs.ID)
	}
	return nil
}

// StationFromEvse builds the local view of a partner EVSE.
func StationFromEvse(ep *models.Endpoint, loc ocpi.Location, evse ocpi.EVSE) models.ChargingStation {
	id := evse.EvseID
	if id == "" {
		id = loc.ID + SiteAreaSeparator + evse.UID
	}
	coords := coordinatesOf(loc.Coordinates)
	if evse.Coordinates != nil {
		if c := coordinatesOf(*evse.Coordinates); c != nil {
			coords = c
		}
	}
	status := connectorStatus(evse.Status)
	connectors := make([]models.Connector, 0, len(evse.Connectors))
	for i, c := range evse.Connectors {
		phases := phasesOf(c.PowerType)
		power := c.Voltage * c.Amperage
		if phases > 1 {
			power *= phases
		}
		connectors = append(connectors, models.Connector{
			ConnectorID: i + 1,
			RemoteID:    c.ID,
			Type:        c.Standard,
			CurrentType: c.PowerType,
			PowerW:      power,
			Voltage:     c.Voltage,
			Amperage:    c.Amperage,
			Phases:      phases,
			Status:      status,
		})
	}
	return models.ChargingStation{
		ID:               id,
		TenantID:         ep.TenantID,
		Issuer:           false,
		Public:           true,
		Status:           status,
		Coordinates:      coords,
		Connectors:       connectors,
		RemoteLocationID: loc.ID,
		RemoteEvseUID:    evse.UID,
	}
}

func connectorStatus(s string) string {
	switch s {
	case ocpi.EvseAvailable:
		return models.ConnectorAvailable
	case ocpi.EvseCharging:
		return models.ConnectorCharging
	case ocpi.EvseReserved:
		return models.ConnectorReserved
	case ocpi.EvseOutOfOrder, ocpi.EvseInoperative:
		return models.ConnectorFaulted
	default:
		return models.ConnectorUnavailable
	}
}

func phasesOf(powerType string) int {
	switch powerType {
	case ocpi.PowerAC3Phase:
		return 3
	case ocpi.PowerAC1Phase:
		return 1
	default:
		return 0
	}
}

func coordinatesOf(g ocpi.GeoLocation) *models.Coordinates {
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(g.Latitude), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(g.Longitude), 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &models.Coordinates{Latitude: lat, Longitude: lng}
}

func addressOf(loc ocpi.Location) models.Address {
	return models.Address{Address: loc.Address, City: loc.City, PostalCode: loc.PostalCode, Country: loc.Country}
}
