package services

import (
	"context"

	"roaming/internal/errs"
	"roaming/internal/models"
	"roaming/internal/ocpi"
	"roaming/internal/syncresult"
	"roaming/internal/workpool"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var thousand = decimal.NewFromInt(1000)

var sessionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("roaming/ocpi/session"))

// SessionTransactionID is the local transaction id of a partner session.
// Concurrent merges of the same session land on the same row.
func SessionTransactionID(tenantID, sessionID string) string {
	return uuid.NewSHA1(sessionNamespace, []byte(tenantID+"/"+sessionID)).String()
}

// SessionPuller mirrors partner sessions of our users into local transactions.
type SessionPuller struct {
	endpointRunner
	Transactions TransactionStore
	Stations     StationStore
	Tags         TagStore
}

func NewSessionPuller(endpoints EndpointStore, txs TransactionStore, stations StationStore, tags TagStore, opts Options, logger logrus.FieldLogger) *SessionPuller {
	return &SessionPuller{endpointRunner: newRunner(endpoints, opts, logger), Transactions: txs, Stations: stations, Tags: tags}
}

func (s *SessionPuller) Mode() workpool.Mode { return workpool.Bounded(workpool.MaxParallelRequests) }

func (s *SessionPuller) PullSessions(ctx context.Context, tenantID, endpointID string) (syncresult.Summary, error) {
	return s.run(ctx, JobPullSessions, tenantID, endpointID, func(ctx context.Context, ep *models.Endpoint, client *ocpi.Client, agg *syncresult.Aggregator) error {
		params := pullParams(s.now(), s.opts.lookback(), s.opts.pageLimit())
		return pullAll(ctx, client, ocpi.ModuleSessions, params, s.Mode(), agg,
			func(sess ocpi.Session) string { return sess.ID },
			func(ctx context.Context, sess ocpi.Session) error { return s.MergeSession(ctx, ep, sess) })
	})
}

// MergeSession applies a session to its transaction, creating the
// transaction on first sight. Replaying a session that is not newer than the
// stored copy changes nothing.
func (s *SessionPuller) MergeSession(ctx context.Context, ep *models.Endpoint, sess ocpi.Session) error {
	if err := ocpi.Validate(sess); err != nil {
		return err
	}
	tx, err := s.Transactions.GetByRoamingSessionID(ctx, ep.TenantID, sess.ID)
	if err != nil {
		return errs.Wrap(errs.CodeInternal, "find transaction", err).With("sessionId", sess.ID)
	}
	if tx == nil {
		if tx, err = s.newTransaction(ctx, ep, sess); err != nil {
			return err
		}
	} else if stored := tx.RoamingData; stored != nil && stored.Session != nil && !stored.Session.LastUpdated.Before(sess.LastUpdated) {
		return nil
	}

	now := s.now()
	wh := sess.Kwh.Mul(thousand).IntPart()
	tx.CurrentConsumptionWh = wh
	if sess.TotalCost != nil {
		tx.CurrentPrice = *sess.TotalCost
	}
	if sess.Currency != "" {
		tx.Currency = sess.Currency
	}
	updated := sess.LastUpdated
	tx.LastConsumptionAt = &updated

	if tx.Stop == nil && (sess.Status == ocpi.SessionCompleted || sess.Status == ocpi.SessionInvalid) {
		stoppedAt := sess.LastUpdated
		if sess.EndDateTime != nil {
			stoppedAt = *sess.EndDateTime
		}
		tx.Stop = &models.TransactionStop{
			StoppedAt:          stoppedAt,
			MeterStopWh:        tx.MeterStartWh + wh,
			TotalConsumptionWh: wh,
			TotalDurationSecs:  int64(stoppedAt.Sub(tx.StartedAt).Seconds()),
			Price:              tx.CurrentPrice,
			Currency:           tx.Currency,
			TagID:              tx.TagID,
		}
	}

	rd := tx.RoamingData
	if rd == nil {
		rd = &models.RoamingData{}
	}
	rd.EndpointID = ep.ID
	sc := sess
	rd.Session = &sc
	rd.SessionCheckedOn = &now
	tx.RoamingData = rd

	if err := s.Transactions.Save(ctx, *tx); err != nil {
		return errs.Wrap(errs.CodeInternal, "save transaction", err).With("transactionId", tx.ID)
	}
	return nil
}

func (s *SessionPuller) newTransaction(ctx context.Context, ep *models.Endpoint, sess ocpi.Session) (*models.Transaction, error) {
	if len(sess.Location.EVSEs) == 0 {
		return nil, errs.New(errs.CodeInvalidInput, "session location has no evse").With("sessionId", sess.ID)
	}
	evse := sess.Location.EVSEs[0]
	cs, err := s.Stations.GetByRemoteKey(ctx, ep.TenantID, sess.Location.ID, evse.UID)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "find station", err).With("sessionId", sess.ID)
	}
	if cs == nil {
		return nil, errs.New(errs.CodeNotFound, "charging station not found").
			With("sessionId", sess.ID).
			With("locationId", sess.Location.ID).
			With("evseUid", evse.UID)
	}
	tag, err := s.Tags.Get(ctx, ep.TenantID, sess.AuthID)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "find tag", err).With("sessionId", sess.ID)
	}
	if tag == nil {
		return nil, errs.New(errs.CodeNotFound, "tag not found").With("sessionId", sess.ID).With("authId", sess.AuthID)
	}

	connectorID := 1
	if len(evse.Connectors) > 0 {
		for _, c := range cs.Connectors {
			if c.RemoteID == evse.Connectors[0].ID {
				connectorID = c.ConnectorID
				break
			}
		}
	}
	return &models.Transaction{
		ID:                SessionTransactionID(ep.TenantID, sess.ID),
		TenantID:          ep.TenantID,
		ChargingStationID: cs.ID,
		ConnectorID:       connectorID,
		TagID:             tag.ID,
		CompanyID:         cs.CompanyID,
		SiteID:            cs.SiteID,
		SiteAreaID:        cs.SiteAreaID,
		Issuer:            false,
		StartedAt:         sess.StartDateTime,
		Currency:          sess.Currency,
	}, nil
}
