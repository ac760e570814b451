package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"roaming/internal/errs"
	"roaming/internal/models"
	"roaming/internal/ocpi"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remoteStation() models.ChargingStation {
	return models.ChargingStation{
		ID: "FR*CCO*E1", TenantID: tenant, SiteID: "site-r", SiteAreaID: "area-r", RemoteLocationID: "L1", RemoteEvseUID: "1",
		Connectors: []models.Connector{{ConnectorID: 2, RemoteID: "B"}},
	}
}

func remoteSession(id, status string, kwh string, updated time.Time) ocpi.Session {
	cost := decimal.RequireFromString("4.10")
	evse := sampleEvse("1", ocpi.EvseCharging)
	evse.Connectors[0].ID = "B"
	return ocpi.Session{
		ID:            id,
		StartDateTime: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
		Kwh:           decimal.RequireFromString(kwh),
		AuthID:        "T1",
		AuthMethod:    "WHITELIST",
		Location:      sampleLocation("L1", evse),
		Currency:      "EUR",
		TotalCost:     &cost,
		Status:        status,
		LastUpdated:   updated,
	}
}

func newSessionPuller(baseURL string, txs *memTransactions) *SessionPuller {
	logger, _ := nullLogger()
	return NewSessionPuller(newMemEndpoints(testEndpoint(baseURL)), txs, newMemStations(remoteStation()), newMemTags(issuedTag("T1")), testOptions(), logger)
}

func TestMergeSessionCreatesThenUpdates(t *testing.T) {
	txs := newMemTransactions()
	p := newSessionPuller("http://unused", txs)
	ctx := context.Background()
	ep := testEndpoint("http://unused")
	t0 := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

	require.NoError(t, p.MergeSession(ctx, &ep, remoteSession("S1", ocpi.SessionActive, "5.5", t0)))
	all := txs.all()
	require.Len(t, all, 1)
	tx := all[0]
	assert.Equal(t, "FR*CCO*E1", tx.ChargingStationID)
	assert.Equal(t, 2, tx.ConnectorID)
	assert.Equal(t, "T1", tx.TagID)
	assert.Equal(t, "site-r", tx.SiteID)
	assert.False(t, tx.Issuer)
	assert.Equal(t, int64(5500), tx.CurrentConsumptionWh)
	assert.Nil(t, tx.Stop)
	assert.Equal(t, "ep1", tx.RoamingData.EndpointID)

	// an older copy is ignored
	require.NoError(t, p.MergeSession(ctx, &ep, remoteSession("S1", ocpi.SessionCompleted, "1", t0.Add(-time.Minute))))
	assert.Equal(t, int64(5500), txs.get(tx.ID).CurrentConsumptionWh)

	// a newer completed copy stops the transaction once
	end := t0.Add(30 * time.Minute)
	done := remoteSession("S1", ocpi.SessionCompleted, "12", end)
	done.EndDateTime = &end
	require.NoError(t, p.MergeSession(ctx, &ep, done))
	got := txs.get(tx.ID)
	require.NotNil(t, got.Stop)
	assert.Equal(t, int64(12000), got.Stop.TotalConsumptionWh)
	assert.True(t, got.Stop.StoppedAt.Equal(end))
	assert.Equal(t, int64(3600), got.Stop.TotalDurationSecs)
	assert.True(t, got.Stop.Price.Equal(decimal.RequireFromString("4.1")))

	later := remoteSession("S1", ocpi.SessionCompleted, "13", end.Add(time.Minute))
	require.NoError(t, p.MergeSession(ctx, &ep, later))
	got = txs.get(tx.ID)
	assert.Equal(t, int64(12000), got.Stop.TotalConsumptionWh, "stop is set once")
	assert.Equal(t, int64(13000), got.CurrentConsumptionWh)
	assert.Len(t, txs.all(), 1)
}

func TestMergeSessionRequiresStationAndTag(t *testing.T) {
	p := newSessionPuller("http://unused", newMemTransactions())
	ctx := context.Background()
	ep := testEndpoint("http://unused")
	now := time.Now().UTC()

	unknownTag := remoteSession("S1", ocpi.SessionActive, "1", now)
	unknownTag.AuthID = "STRANGER"
	err := p.MergeSession(ctx, &ep, unknownTag)
	assert.True(t, errs.Is(err, errs.CodeNotFound))

	unknownEvse := remoteSession("S2", ocpi.SessionActive, "1", now)
	unknownEvse.Location.EVSEs[0].UID = "404"
	err = p.MergeSession(ctx, &ep, unknownEvse)
	assert.True(t, errs.Is(err, errs.CodeNotFound))

	invalid := remoteSession("S3", ocpi.SessionActive, "1", now)
	invalid.AuthID = ""
	err = p.MergeSession(ctx, &ep, invalid)
	assert.True(t, errs.Is(err, errs.CodeInvalidInput))
}

func TestPullSessionsRecordsPerItemOutcomes(t *testing.T) {
	now := time.Now().UTC()
	bad := remoteSession("S2", ocpi.SessionActive, "1", now)
	bad.AuthID = "STRANGER"

	r := chi.NewRouter()
	r.Get("/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeOCPI(w, []ocpi.Session{remoteSession("S1", ocpi.SessionActive, "2", now), bad})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	txs := newMemTransactions()
	summary, err := newSessionPuller(srv.URL, txs).PullSessions(context.Background(), tenant, "ep1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SuccessCount)
	assert.Equal(t, []string{"S2"}, summary.FailedResourceIDs)
	assert.Len(t, txs.all(), 1)
}

func TestPullSessionsRepeatedSessionYieldsOneTransaction(t *testing.T) {
	now := time.Now().UTC()
	page := make([]ocpi.Session, 8)
	for i := range page {
		page[i] = remoteSession("S1", ocpi.SessionActive, "3", now)
	}
	r := chi.NewRouter()
	r.Get("/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeOCPI(w, page)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	txs := newMemTransactions()
	p := newSessionPuller(srv.URL, txs)
	for i := 0; i < 3; i++ {
		summary, err := p.PullSessions(context.Background(), tenant, "ep1")
		require.NoError(t, err)
		assert.Empty(t, summary.FailedResourceIDs)
	}

	all := txs.all()
	require.Len(t, all, 1)
	assert.Equal(t, SessionTransactionID(tenant, "S1"), all[0].ID)
}

func TestSessionTransactionIDIsStable(t *testing.T) {
	a := SessionTransactionID("t1", "S1")
	assert.Equal(t, a, SessionTransactionID("t1", "S1"))
	assert.NotEqual(t, a, SessionTransactionID("t2", "S1"))
	assert.NotEqual(t, a, SessionTransactionID("t1", "S2"))
}
