package services

import (
	"context"

	"roaming/internal/errs"
	"roaming/internal/models"
	"roaming/internal/ocpi"
	"roaming/internal/syncresult"
	"roaming/internal/workpool"

	"github.com/sirupsen/logrus"
)

// CdrPuller attaches partner CDRs to the transactions they settle.
type CdrPuller struct {
	endpointRunner
	Transactions TransactionStore
}

func NewCdrPuller(endpoints EndpointStore, txs TransactionStore, opts Options, logger logrus.FieldLogger) *CdrPuller {
	return &CdrPuller{endpointRunner: newRunner(endpoints, opts, logger), Transactions: txs}
}

func (c *CdrPuller) Mode() workpool.Mode { return workpool.Bounded(workpool.MaxParallelRequests) }

func (c *CdrPuller) PullCdrs(ctx context.Context, tenantID, endpointID string) (syncresult.Summary, error) {
	return c.run(ctx, JobPullCdrs, tenantID, endpointID, func(ctx context.Context, ep *models.Endpoint, client *ocpi.Client, agg *syncresult.Aggregator) error {
		params := pullParams(c.now(), c.opts.lookback(), c.opts.pageLimit())
		return pullAll(ctx, client, ocpi.ModuleCdrs, params, c.Mode(), agg,
			func(cdr ocpi.Cdr) string { return cdr.ID },
			func(ctx context.Context, cdr ocpi.Cdr) error { return c.MergeCdr(ctx, ep, cdr) })
	})
}

// MergeCdr attaches cdr unless the transaction already carries one.
func (c *CdrPuller) MergeCdr(ctx context.Context, ep *models.Endpoint, cdr ocpi.Cdr) error {
	if err := ocpi.Validate(cdr); err != nil {
		return err
	}
	ref := cdr.SessionRef()
	tx, err := c.Transactions.GetByRoamingSessionID(ctx, ep.TenantID, ref)
	if err != nil {
		return errs.Wrap(errs.CodeInternal, "find transaction", err).With("cdrId", cdr.ID)
	}
	if tx == nil {
		return errs.New(errs.CodeNotFound, "no transaction for cdr").With("cdrId", cdr.ID).With("sessionId", ref)
	}
	if tx.HasCdr() {
		return nil
	}

	now := c.now()
	rd := tx.RoamingData
	if rd == nil {
		rd = &models.RoamingData{EndpointID: ep.ID}
	}
	attached := cdr
	rd.Cdr = &attached
	rd.CdrCheckedOn = &now
	tx.RoamingData = rd

	if tx.Stop != nil {
		if err := c.Transactions.SaveRoamingData(ctx, ep.TenantID, tx.ID, rd); err != nil {
			return errs.Wrap(errs.CodeInternal, "save roaming data", err).With("transactionId", tx.ID)
		}
		return nil
	}

	wh := cdr.TotalEnergy.Mul(thousand).IntPart()
	tx.Stop = &models.TransactionStop{
		StoppedAt:          cdr.StopDateTime,
		MeterStopWh:        tx.MeterStartWh + wh,
		TotalConsumptionWh: wh,
		TotalDurationSecs:  int64(cdr.StopDateTime.Sub(cdr.StartDateTime).Seconds()),
		Price:              cdr.TotalCost,
		Currency:           cdr.Currency,
		TagID:              tx.TagID,
	}
	tx.CurrentConsumptionWh = wh
	tx.CurrentPrice = cdr.TotalCost
	if cdr.Currency != "" {
		tx.Currency = cdr.Currency
	}
	if err := c.Transactions.Save(ctx, *tx); err != nil {
		return errs.Wrap(errs.CodeInternal, "save transaction", err).With("transactionId", tx.ID)
	}
	return nil
}
