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

// TokensPageSize is how many local tags are read per storage page.
const TokensPageSize = 100

// TokenPusher publishes the tenant's tags to a partner as OCPI tokens.
type TokenPusher struct {
	endpointRunner
	Tags TagStore
}

func NewTokenPusher(endpoints EndpointStore, tags TagStore, opts Options, logger logrus.FieldLogger) *TokenPusher {
	return &TokenPusher{endpointRunner: newRunner(endpoints, opts, logger), Tags: tags}
}

func (p *TokenPusher) Mode() workpool.Mode { return workpool.Bounded(workpool.MaxParallelRequests) }

func (p *TokenPusher) PushAllTokens(ctx context.Context, tenantID, endpointID string) (syncresult.Summary, error) {
	return p.run(ctx, JobPushTokens, tenantID, endpointID, func(ctx context.Context, ep *models.Endpoint, client *ocpi.Client, agg *syncresult.Aggregator) error {
		for offset := 0; ; offset += TokensPageSize {
			tags, err := p.Tags.ListIssued(ctx, tenantID, offset, TokensPageSize)
			if err != nil {
				return errs.Wrap(errs.CodeInternal, "list tags", err).With("offset", offset)
			}
			_ = workpool.Run(ctx, p.Mode(), tags, func(ctx context.Context, tag models.Tag) error {
				if err := p.push(ctx, client, ep, tag); err != nil {
					agg.RecordFailure(tag.ID, failureLine("token", tag.ID, err))
					return nil
				}
				agg.RecordSuccess()
				return nil
			})
			if len(tags) < TokensPageSize {
				return nil
			}
		}
	})
}

// PushOne sends a single token. Any transport or remote failure is returned as is.
func (p *TokenPusher) PushOne(ctx context.Context, ep *models.Endpoint, tag models.Tag) error {
	return p.push(ctx, p.client(ep), ep, tag)
}

// PushTag is the manual single-token path.
func (p *TokenPusher) PushTag(ctx context.Context, tenantID, endpointID, tagID string) error {
	ep, err := p.loadEndpoint(ctx, tenantID, endpointID)
	if err != nil {
		return err
	}
	tag, err := p.Tags.Get(ctx, tenantID, tagID)
	if err != nil {
		return errs.Wrap(errs.CodeInternal, "load tag", err).With("tagId", tagID)
	}
	if tag == nil {
		return errs.New(errs.CodeNotFound, "tag not found").With("tagId", tagID)
	}
	return p.PushOne(ctx, ep, *tag)
}

func (p *TokenPusher) push(ctx context.Context, client *ocpi.Client, ep *models.Endpoint, tag models.Tag) error {
	return client.PutToken(ctx, ep.CountryCode, ep.PartyID, TokenFromTag(ep, tag))
}

const (
	TokenTypeRFID       = "RFID"
	WhitelistAllowed    = "ALLOWED"
	AuthMethodWhitelist = "WHITELIST"
)

func TokenFromTag(ep *models.Endpoint, tag models.Tag) ocpi.Token {
	visual := tag.VisualNumber
	if visual == "" {
		visual = tag.Description
	}
	return ocpi.Token{
		UID:          tag.ID,
		Type:         TokenTypeRFID,
		AuthID:       tag.ID,
		VisualNumber: visual,
		Issuer:       ep.Name,
		Valid:        tag.Active,
		Whitelist:    WhitelistAllowed,
		LastUpdated:  tag.LastChangedOn.UTC(),
	}
}
