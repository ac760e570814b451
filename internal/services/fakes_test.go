package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"roaming/internal/errs"
	"roaming/internal/models"
	"roaming/internal/ocpi"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

const tenant = "t1"

func clone[T any](v T) T {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return out
}

func nullLogger() (*logrus.Logger, *test.Hook) {
	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return l, hook
}

func testOptions() Options {
	return Options{PageLimit: 2, LookbackDays: 2, HTTPTimeout: 2 * time.Second, PublicBaseURL: "https://us.example/"}
}

func writeOCPI(w http.ResponseWriter, data any) {
	raw, _ := json.Marshal(data)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ocpi.Response{Data: raw, StatusCode: ocpi.StatusCodeSuccess, Timestamp: time.Now().UTC()})
}

type memEndpoints struct {
	mu        sync.Mutex
	eps       map[string]models.Endpoint
	conflicts int
	saves     int
}

func newMemEndpoints(eps ...models.Endpoint) *memEndpoints {
	m := &memEndpoints{eps: make(map[string]models.Endpoint)}
	for _, e := range eps {
		m.eps[e.ID] = e
	}
	return m
}

func testEndpoint(baseURL string) models.Endpoint {
	return models.Endpoint{
		ID: "ep1", TenantID: tenant, Name: "Hub", Role: models.RoleEMSP, BaseURL: baseURL, Token: "secret",
		CountryCode: "FR", PartyID: "ABC", Status: models.EndpointConnected, Version: 1,
	}
}

func (m *memEndpoints) Get(_ context.Context, tenantID, id string) (*models.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.eps[id]
	if !ok || e.TenantID != tenantID {
		return nil, nil
	}
	c := clone(e)
	return &c, nil
}

func (m *memEndpoints) ListByTenant(_ context.Context, tenantID string) ([]models.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Endpoint
	for _, e := range m.eps {
		if e.TenantID == tenantID {
			out = append(out, clone(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memEndpoints) SaveSyncOutcome(_ context.Context, e *models.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.eps[e.ID]
	if m.conflicts > 0 {
		m.conflicts--
		cur.Version++
		m.eps[e.ID] = cur
		return errs.New(errs.CodeConflict, "endpoint version is stale")
	}
	if cur.Version != e.Version {
		return errs.New(errs.CodeConflict, "endpoint version is stale")
	}
	e.Version++
	m.eps[e.ID] = clone(*e)
	m.saves++
	return nil
}

func (m *memEndpoints) outcome(id, job string) models.SyncOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eps[id].Outcomes[job]
}

type memTags struct {
	mu   sync.Mutex
	tags map[string]models.Tag
}

func newMemTags(tags ...models.Tag) *memTags {
	m := &memTags{tags: make(map[string]models.Tag)}
	for _, t := range tags {
		if t.TenantID == "" {
			t.TenantID = tenant
		}
		m.tags[t.ID] = t
	}
	return m
}

func (m *memTags) Get(_ context.Context, tenantID, id string) (*models.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tags[id]
	if !ok || t.TenantID != tenantID {
		return nil, nil
	}
	return &t, nil
}

func (m *memTags) ListIssued(_ context.Context, tenantID string, offset, limit int) ([]models.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.Tag
	for _, t := range m.tags {
		if t.TenantID == tenantID && t.Issuer {
			all = append(all, t)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

type memStations struct {
	mu      sync.Mutex
	byID    map[string]models.ChargingStation
	saves   int
	deletes int
}

func newMemStations(css ...models.ChargingStation) *memStations {
	m := &memStations{byID: make(map[string]models.ChargingStation)}
	for _, c := range css {
		m.byID[c.ID] = c
	}
	return m
}

func (m *memStations) Get(_ context.Context, tenantID, id string) (*models.ChargingStation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok || c.TenantID != tenantID {
		return nil, nil
	}
	c = clone(c)
	return &c, nil
}

func (m *memStations) GetByRemoteKey(_ context.Context, tenantID, locationID, evseUID string) (*models.ChargingStation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byID {
		if c.TenantID == tenantID && c.RemoteLocationID == locationID && c.RemoteEvseUID == evseUID {
			c = clone(c)
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStations) Save(_ context.Context, c models.ChargingStation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.byID[c.ID]; ok {
		c.RoamingData = prev.RoamingData
	}
	m.byID[c.ID] = clone(c)
	m.saves++
	return nil
}

func (m *memStations) SaveRoamingData(_ context.Context, _, id string, rd *models.StationRoamingData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.byID[id]
	c.RoamingData = clone(rd)
	m.byID[id] = c
	return nil
}

func (m *memStations) Delete(_ context.Context, _, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	m.deletes++
	return nil
}

type memTransactions struct {
	mu   sync.Mutex
	byID map[string]models.Transaction
	// stale, when set, is returned by ListAwaitingCdr as is
	stale []models.Transaction
}

func newMemTransactions(txs ...models.Transaction) *memTransactions {
	m := &memTransactions{byID: make(map[string]models.Transaction)}
	for _, t := range txs {
		m.byID[t.ID] = clone(t)
	}
	return m
}

func (m *memTransactions) Get(_ context.Context, tenantID, id string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok || t.TenantID != tenantID {
		return nil, nil
	}
	t = clone(t)
	return &t, nil
}

func (m *memTransactions) GetByRoamingSessionID(_ context.Context, tenantID, sessionID string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.byID {
		if t.TenantID == tenantID && t.RoamingData != nil && t.RoamingData.Session != nil && t.RoamingData.Session.ID == sessionID {
			t = clone(t)
			return &t, nil
		}
	}
	return nil, nil
}

func (m *memTransactions) Save(_ context.Context, t models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.byID[t.ID]; ok && prev.HasCdr() {
		if t.RoamingData == nil {
			t.RoamingData = &models.RoamingData{}
		}
		t.RoamingData.Cdr = prev.RoamingData.Cdr
	}
	m.byID[t.ID] = clone(t)
	return nil
}

func (m *memTransactions) SaveRoamingData(_ context.Context, _, id string, rd *models.RoamingData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.byID[id]
	next := clone(rd)
	if t.HasCdr() {
		if next == nil {
			next = &models.RoamingData{}
		}
		next.Cdr = t.RoamingData.Cdr
	}
	t.RoamingData = next
	m.byID[id] = t
	return nil
}

func (m *memTransactions) ListAwaitingCdr(_ context.Context, tenantID string, limit int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stale != nil {
		return m.stale, nil
	}
	var out []models.Transaction
	for _, t := range m.byID {
		if t.TenantID == tenantID && t.Issuer && t.Stop != nil && t.RoamingData != nil && !t.HasCdr() {
			out = append(out, clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memTransactions) get(id string) models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.byID[id])
}

func (m *memTransactions) all() []models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, t := range m.byID {
		out = append(out, clone(t))
	}
	return out
}

// memNamed backs companies, sites and site areas: unique by (tenant, name).
type memNamed[T any] struct {
	mu      sync.Mutex
	items   []T
	creates int
	name    func(T) string
	tenant  func(T) string
	setID   func(*T, string)
}

func (m *memNamed[T]) Create(_ context.Context, v T) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	id := m.tenant(v) + "/" + m.name(v)
	for _, it := range m.items {
		if m.tenant(it) == m.tenant(v) && m.name(it) == m.name(v) {
			return id, nil
		}
	}
	m.setID(&v, id)
	m.items = append(m.items, v)
	return id, nil
}

func (m *memNamed[T]) List(_ context.Context, tenantID string) ([]T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []T
	for _, it := range m.items {
		if m.tenant(it) == tenantID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memNamed[T]) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func newMemCompanies() *memNamed[models.Company] {
	return &memNamed[models.Company]{
		name:   func(c models.Company) string { return c.Name },
		tenant: func(c models.Company) string { return c.TenantID },
		setID:  func(c *models.Company, id string) { c.ID = id },
	}
}

func newMemSites() *memNamed[models.Site] {
	return &memNamed[models.Site]{
		name:   func(s models.Site) string { return s.Name },
		tenant: func(s models.Site) string { return s.TenantID },
		setID:  func(s *models.Site, id string) { s.ID = id },
	}
}

func newMemSiteAreas() *memNamed[models.SiteArea] {
	return &memNamed[models.SiteArea]{
		name:   func(a models.SiteArea) string { return a.Name },
		tenant: func(a models.SiteArea) string { return a.TenantID },
		setID:  func(a *models.SiteArea, id string) { a.ID = id },
	}
}

type memTariffs struct {
	tariffs map[string]models.Tariff
}

func (m *memTariffs) GetActiveForSite(_ context.Context, _, siteID string) (*models.Tariff, error) {
	t, ok := m.tariffs[siteID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

type memCommands struct {
	mu       sync.Mutex
	commands map[string]models.Command
	next     int
}

func newMemCommands() *memCommands {
	return &memCommands{commands: make(map[string]models.Command)}
}

func (m *memCommands) Create(_ context.Context, c models.Command) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	c.CommandID = fmt.Sprintf("cmd-%d", m.next)
	m.commands[c.CommandID] = c
	return c.CommandID, nil
}

func (m *memCommands) set(tenantID, id string, f func(*models.Command)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.commands[id]
	if !ok || c.TenantID != tenantID {
		return nil
	}
	f(&c)
	m.commands[id] = c
	return nil
}

func (m *memCommands) MarkSent(_ context.Context, tenantID, id string) error {
	return m.set(tenantID, id, func(c *models.Command) { c.Status = models.CommandSent })
}

func (m *memCommands) MarkAcked(_ context.Context, tenantID, id string, response []byte) error {
	return m.set(tenantID, id, func(c *models.Command) { c.Status = models.CommandAcked; c.ResponseJSON = response })
}

func (m *memCommands) MarkFailed(_ context.Context, tenantID, id string, msg string) error {
	return m.set(tenantID, id, func(c *models.Command) { c.Status = models.CommandFailed; c.Error = &msg })
}

func (m *memCommands) get(id string) models.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commands[id]
}
