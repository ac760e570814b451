package services

import (
	"context"

	"roaming/internal/logging"
	"roaming/internal/models"
	"roaming/internal/syncresult"

	"github.com/sirupsen/logrus"
)

// EndpointFlow is one pull or push run against a single endpoint.
type EndpointFlow func(ctx context.Context, tenantID, endpointID string) (syncresult.Summary, error)

// EndpointJob runs a flow for every connected endpoint of a tenant where we
// hold Role. Run errors are logged and swallowed.
type EndpointJob struct {
	JobName   string
	Role      string
	Endpoints EndpointStore
	Flow      EndpointFlow
	Logger    logrus.FieldLogger
}

func NewEndpointJob(name, role string, endpoints EndpointStore, flow EndpointFlow, logger logrus.FieldLogger) *EndpointJob {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &EndpointJob{JobName: name, Role: role, Endpoints: endpoints, Flow: flow, Logger: logger}
}

func (j *EndpointJob) Name() string { return j.JobName }

func (j *EndpointJob) Run(ctx context.Context, tenantID string) {
	eps, err := j.Endpoints.ListByTenant(ctx, tenantID)
	if err != nil {
		logging.LogError(j.Logger, "services", j.JobName, "list endpoints", map[string]string{"tenantId": tenantID}, err)
		return
	}
	for _, ep := range eps {
		if ep.Role != j.Role || ep.Status != models.EndpointConnected {
			continue
		}
		if _, err := j.Flow(ctx, tenantID, ep.ID); err != nil {
			logging.LogError(j.Logger, "services", j.JobName, "endpoint run failed",
				map[string]string{"tenantId": tenantID, "endpointId": ep.ID}, err)
		}
	}
}
