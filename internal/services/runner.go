package services

import (
	"context"
	"time"

	"roaming/internal/errs"
	"roaming/internal/logging"
	"roaming/internal/models"
	"roaming/internal/ocpi"
	"roaming/internal/syncresult"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

var endpointValidator = validator.New()

// Job names, also the keys of Endpoint.Outcomes.
const (
	JobPullLocations = "pull-locations"
	JobPushTokens    = "push-tokens"
	JobPullSessions  = "pull-sessions"
	JobPullCdrs      = "pull-cdrs"
	JobPushCdrs      = "push-cdrs"
)

const saveOutcomeAttempts = 3

type Options struct {
	PageLimit     int
	LookbackDays  int
	HTTPTimeout   time.Duration
	PublicBaseURL string
}

func (o Options) pageLimit() int {
	if o.PageLimit <= 0 {
		return 100
	}
	return o.PageLimit
}

func (o Options) lookback() int {
	if o.LookbackDays <= 0 {
		return 2
	}
	return o.LookbackDays
}

// endpointRunner loads an endpoint, runs a flow body against it and persists
// the outcome on a freshly read copy of the endpoint.
type endpointRunner struct {
	endpoints EndpointStore
	opts      Options
	logger    logrus.FieldLogger
	now       func() time.Time
}

func newRunner(endpoints EndpointStore, opts Options, logger logrus.FieldLogger) endpointRunner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return endpointRunner{endpoints: endpoints, opts: opts, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

type runBody func(ctx context.Context, ep *models.Endpoint, client *ocpi.Client, agg *syncresult.Aggregator) error

func (r endpointRunner) loadEndpoint(ctx context.Context, tenantID, endpointID string) (*models.Endpoint, error) {
	ep, err := r.endpoints.Get(ctx, tenantID, endpointID)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "load endpoint", err).With("endpointId", endpointID)
	}
	if ep == nil {
		return nil, errs.New(errs.CodeNotFound, "endpoint not found").With("tenantId", tenantID).With("endpointId", endpointID)
	}
	if err := endpointValidator.Struct(ep); err != nil {
		return nil, errs.Wrap(errs.CodeInvalidConfig, "endpoint is misconfigured", err).With("endpointId", endpointID)
	}
	return ep, nil
}

func (r endpointRunner) client(ep *models.Endpoint) *ocpi.Client {
	return ocpi.NewClient(ep.BaseURL, ep.Token, r.opts.HTTPTimeout)
}

// run returns the summary even when body fails; the partial outcome is persisted either way.
func (r endpointRunner) run(ctx context.Context, job, tenantID, endpointID string, body runBody) (syncresult.Summary, error) {
	ep, err := r.loadEndpoint(ctx, tenantID, endpointID)
	if err != nil {
		return syncresult.Summary{}, err
	}
	log := r.logger.WithFields(logrus.Fields{"job": job, "tenantId": tenantID, "endpointId": endpointID})
	log.Debug("sync run started")

	agg := syncresult.New()
	runErr := body(ctx, ep, r.client(ep), agg)
	if runErr != nil {
		agg.Logf("%s aborted: %v", job, runErr)
		logging.LogError(log, "services", job, "run aborted", nil, runErr)
	}
	summary := agg.Finalize()

	if err := r.saveOutcome(ctx, tenantID, endpointID, job, summary); err != nil {
		logging.LogError(log, "services", job, "save sync outcome", summary, err)
		if runErr == nil {
			runErr = err
		}
	}
	log.WithFields(logrus.Fields{
		"success": summary.SuccessCount,
		"failure": summary.FailureCount,
		"total":   summary.TotalCount,
	}).Info("sync run finished")
	return summary, runErr
}

func (r endpointRunner) saveOutcome(ctx context.Context, tenantID, endpointID, job string, s syncresult.Summary) error {
	var err error
	for i := 0; i < saveOutcomeAttempts; i++ {
		var ep *models.Endpoint
		if ep, err = r.loadEndpoint(ctx, tenantID, endpointID); err != nil {
			return err
		}
		ep.RecordOutcome(job, s, r.now())
		if err = r.endpoints.SaveSyncOutcome(ctx, ep); err == nil || !errs.Is(err, errs.CodeConflict) {
			return err
		}
	}
	return err
}
