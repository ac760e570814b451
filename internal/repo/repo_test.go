package repo

import (
	"context"
	"os"
	"testing"
	"time"

	"roaming/internal/db"
	"roaming/internal/errs"
	"roaming/internal/models"
	"roaming/internal/ocpi"
	"roaming/internal/syncresult"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPool connects to ROAMING_TEST_DATABASE_URL and applies the schema.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("ROAMING_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ROAMING_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	d, err := db.Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	require.NoError(t, d.Migrate(ctx))
	return d.Pool
}

func syncresultSummary(ok, failed int) syncresult.Summary {
	return syncresult.Summary{SuccessCount: ok, FailureCount: failed, TotalCount: ok + failed}
}

func TestEndpointVersionedSave(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	r := NewEndpointsRepo(pool)
	tenant := "t-" + uuid.NewString()

	id, err := r.Create(ctx, models.Endpoint{TenantID: tenant, Name: "hub", Role: models.RoleCPO, BaseURL: "https://hub.example", Token: "tok", CountryCode: "FR", PartyID: "ABC", Status: models.EndpointConnected})
	require.NoError(t, err)

	a, err := r.Get(ctx, tenant, id)
	require.NoError(t, err)
	b, err := r.Get(ctx, tenant, id)
	require.NoError(t, err)

	a.RecordOutcome("push-tokens", syncresultSummary(2, 1), time.Now().UTC())
	require.NoError(t, r.SaveSyncOutcome(ctx, a))

	b.RecordOutcome("pull-sessions", syncresultSummary(1, 0), time.Now().UTC())
	err = r.SaveSyncOutcome(ctx, b)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeConflict))

	got, err := r.Get(ctx, tenant, id)
	require.NoError(t, err)
	assert.Equal(t, a.Version, got.Version)
	assert.Equal(t, 3, got.Outcomes["push-tokens"].TotalCount)

	tenants, err := r.ListTenants(ctx)
	require.NoError(t, err)
	assert.Contains(t, tenants, tenant)
}

func TestTransactionCdrIsNeverReplaced(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	r := NewTransactionsRepo(pool)
	tenant := "t-" + uuid.NewString()
	start := time.Now().UTC().Truncate(time.Second)

	tx := models.Transaction{
		ID: "tx1", TenantID: tenant, ChargingStationID: "cs1", ConnectorID: 1, TagID: "T1", Issuer: true, StartedAt: start,
		CurrentPrice: decimal.RequireFromString("1.25"), Currency: "EUR",
		Stop:        &models.TransactionStop{StoppedAt: start.Add(time.Hour), TotalConsumptionWh: 5000},
		RoamingData: &models.RoamingData{EndpointID: "e1", Session: &ocpi.Session{ID: "S1"}},
	}
	require.NoError(t, r.Save(ctx, tx))

	awaiting, err := r.ListAwaitingCdr(ctx, tenant, 10)
	require.NoError(t, err)
	require.Len(t, awaiting, 1)
	assert.True(t, awaiting[0].CurrentPrice.Equal(decimal.RequireFromString("1.25")))

	byRef, err := r.GetByRoamingSessionID(ctx, tenant, "S1")
	require.NoError(t, err)
	require.NotNil(t, byRef)
	assert.Equal(t, "tx1", byRef.ID)

	withCdr := *tx.RoamingData
	withCdr.Cdr = &ocpi.Cdr{ID: "C1"}
	require.NoError(t, r.SaveRoamingData(ctx, tenant, "tx1", &withCdr))

	// a stale copy without the cdr must not erase it
	require.NoError(t, r.Save(ctx, tx))
	require.NoError(t, r.SaveRoamingData(ctx, tenant, "tx1", &models.RoamingData{EndpointID: "e1", Cdr: &ocpi.Cdr{ID: "C2"}}))

	got, err := r.Get(ctx, tenant, "tx1")
	require.NoError(t, err)
	require.True(t, got.HasCdr())
	assert.Equal(t, "C1", got.RoamingData.Cdr.ID)

	awaiting, err = r.ListAwaitingCdr(ctx, tenant, 10)
	require.NoError(t, err)
	assert.Empty(t, awaiting)
}

func TestStationRemoteKey(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	r := NewChargingStationsRepo(pool)
	tenant := "t-" + uuid.NewString()

	cs := models.ChargingStation{
		ID: "FR*ABC*E1", TenantID: tenant, Status: models.ConnectorAvailable,
		Coordinates:      &models.Coordinates{Latitude: 48.85, Longitude: 2.35},
		Connectors:       []models.Connector{{ConnectorID: 1, RemoteID: "1", Status: models.ConnectorAvailable}},
		RemoteLocationID: "L1", RemoteEvseUID: "E1",
	}
	require.NoError(t, r.Save(ctx, cs))
	require.NoError(t, r.SaveRoamingData(ctx, tenant, cs.ID, &models.StationRoamingData{EndpointID: "e1", LocationID: "L1"}))

	got, err := r.GetByRemoteKey(ctx, tenant, "L1", "E1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Connectors, 1)
	assert.Equal(t, "L1", got.RoamingData.LocationID)
	assert.InDelta(t, 48.85, got.Coordinates.Latitude, 1e-9)

	require.NoError(t, r.Delete(ctx, tenant, cs.ID))
	got, err = r.Get(ctx, tenant, cs.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSiteCreateIsIdempotent(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	tenant := "t-" + uuid.NewString()

	companies := NewCompaniesRepo(pool)
	c1, err := companies.Create(ctx, models.Company{TenantID: tenant, Name: "Hub"})
	require.NoError(t, err)
	c2, err := companies.Create(ctx, models.Company{TenantID: tenant, Name: "Hub"})
	require.NoError(t, err)
	assert.Equal(t, c1, c2)

	sites := NewSitesRepo(pool)
	s1, err := sites.Create(ctx, models.Site{TenantID: tenant, CompanyID: c1, Name: "Op"})
	require.NoError(t, err)
	s2, err := sites.Create(ctx, models.Site{TenantID: tenant, CompanyID: c1, Name: "Op"})
	require.NoError(t, err)
	assert.Equal(t, s1, s2)

	list, err := sites.List(ctx, tenant)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	tariffs := NewTariffsRepo(pool)
	_, err = tariffs.UpsertActiveForSite(ctx, tenant, s1, decimal.RequireFromString("0.30"), "EUR")
	require.NoError(t, err)
	_, err = tariffs.UpsertActiveForSite(ctx, tenant, s1, decimal.RequireFromString("0.35"), "EUR")
	require.NoError(t, err)
	tf, err := tariffs.GetActiveForSite(ctx, tenant, s1)
	require.NoError(t, err)
	assert.True(t, tf.PricePerKwh.Equal(decimal.RequireFromString("0.35")))
}

func TestCommandStatusUpdatesStayInTenant(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	r := NewCommandsRepo(pool)
	tenant := "t-" + uuid.NewString()
	other := "t-" + uuid.NewString()

	id, err := r.Create(ctx, models.Command{TenantID: tenant, EndpointID: "e1", Type: "START_SESSION", PayloadJSON: []byte(`{}`), Status: models.CommandQueued})
	require.NoError(t, err)

	require.NoError(t, r.MarkFailed(ctx, other, id, "not yours"))
	require.NoError(t, r.MarkAcked(ctx, other, id, []byte(`{}`)))
	got, err := r.Get(ctx, tenant, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.CommandQueued, got.Status)
	assert.Nil(t, got.Error)

	require.NoError(t, r.MarkSent(ctx, tenant, id))
	got, err = r.Get(ctx, tenant, id)
	require.NoError(t, err)
	assert.Equal(t, models.CommandSent, got.Status)
}

func TestOneTransactionPerRoamingSession(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	r := NewTransactionsRepo(pool)
	tenant := "t-" + uuid.NewString()
	start := time.Now().UTC().Truncate(time.Second)

	tx := models.Transaction{
		ID: "tx1", TenantID: tenant, ChargingStationID: "cs1", ConnectorID: 1, TagID: "T1", StartedAt: start, Currency: "EUR",
		RoamingData: &models.RoamingData{EndpointID: "e1", Session: &ocpi.Session{ID: "S1"}},
	}
	require.NoError(t, r.Save(ctx, tx))

	dup := tx
	dup.ID = "tx2"
	assert.Error(t, r.Save(ctx, dup))

	local := tx
	local.ID, local.RoamingData = "tx3", nil
	require.NoError(t, r.Save(ctx, local))
	local.ID = "tx4"
	assert.NoError(t, r.Save(ctx, local))
}
