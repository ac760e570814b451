package services

import (
	"context"
	"encoding/json"
	"strings"

	"roaming/internal/errs"
	"roaming/internal/models"
	"roaming/internal/ocpi"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const CommandResultAccepted = "ACCEPTED"

// CommandsService sends remote start/stop commands to a partner and records them.
type CommandsService struct {
	endpointRunner
	Commands     CommandStore
	Tags         TagStore
	Stations     StationStore
	Transactions TransactionStore
}

func NewCommandsService(endpoints EndpointStore, commands CommandStore, tags TagStore, stations StationStore,
	txs TransactionStore, opts Options, logger logrus.FieldLogger) *CommandsService {
	return &CommandsService{
		endpointRunner: newRunner(endpoints, opts, logger),
		Commands:       commands,
		Tags:           tags,
		Stations:       stations,
		Transactions:   txs,
	}
}

// ResponseURL is where the partner posts the asynchronous command result.
func (s *CommandsService) ResponseURL(command string) string {
	return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/ocpi/emsp/2.1.1/commands/" + command + "/" + uuid.NewString()
}

func (s *CommandsService) RemoteStart(ctx context.Context, tenantID, endpointID, tagID, stationID string) (*models.Command, error) {
	ep, err := s.loadEndpoint(ctx, tenantID, endpointID)
	if err != nil {
		return nil, err
	}
	tag, err := s.Tags.Get(ctx, tenantID, tagID)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "load tag", err).With("tagId", tagID)
	}
	if tag == nil {
		return nil, errs.New(errs.CodeInvalidInput, "tag not found").With("tagId", tagID)
	}
	cs, err := s.Stations.Get(ctx, tenantID, stationID)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "load charging station", err).With("stationId", stationID)
	}
	if cs == nil || cs.RemoteLocationID == "" {
		return nil, errs.New(errs.CodeInvalidInput, "charging station is not a roaming station").With("stationId", stationID)
	}

	body := ocpi.StartSession{
		ResponseURL: s.ResponseURL(ocpi.CommandStartSession),
		Token:       TokenFromTag(ep, *tag),
		LocationID:  cs.RemoteLocationID,
		EvseUID:     cs.RemoteEvseUID,
	}
	return s.send(ctx, ep, ocpi.CommandStartSession, body)
}

func (s *CommandsService) RemoteStop(ctx context.Context, tenantID, endpointID, txID string) (*models.Command, error) {
	ep, err := s.loadEndpoint(ctx, tenantID, endpointID)
	if err != nil {
		return nil, err
	}
	tx, err := s.Transactions.Get(ctx, tenantID, txID)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "load transaction", err).With("transactionId", txID)
	}
	if tx == nil || tx.RoamingData == nil || tx.RoamingData.Session == nil {
		return nil, errs.New(errs.CodeInvalidInput, "transaction has no roaming session").With("transactionId", txID)
	}

	body := ocpi.StopSession{
		ResponseURL: s.ResponseURL(ocpi.CommandStopSession),
		SessionID:   tx.RoamingData.Session.ID,
	}
	return s.send(ctx, ep, ocpi.CommandStopSession, body)
}

func (s *CommandsService) send(ctx context.Context, ep *models.Endpoint, command string, body any) (*models.Command, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "encode command", err)
	}
	cmd := models.Command{
		TenantID:    ep.TenantID,
		EndpointID:  ep.ID,
		Type:        command,
		PayloadJSON: payload,
		Status:      models.CommandQueued,
	}
	if cmd.CommandID, err = s.Commands.Create(ctx, cmd); err != nil {
		return nil, errs.Wrap(errs.CodeInternal, "record command", err)
	}
	log := s.logger.WithFields(logrus.Fields{"tenantId": ep.TenantID, "endpointId": ep.ID, "commandId": cmd.CommandID, "type": command})

	resp, err := s.client(ep).PostCommand(ctx, command, body)
	if err != nil {
		msg := err.Error()
		if markErr := s.Commands.MarkFailed(ctx, ep.TenantID, cmd.CommandID, msg); markErr != nil {
			log.WithError(markErr).Warn("mark command failed")
		}
		cmd.Status = models.CommandFailed
		cmd.Error = &msg
		return &cmd, err
	}
	if err := s.Commands.MarkSent(ctx, ep.TenantID, cmd.CommandID); err != nil {
		log.WithError(err).Warn("mark command sent")
	}
	cmd.Status = models.CommandSent

	raw, _ := json.Marshal(resp)
	cmd.ResponseJSON = raw
	if resp.Result != CommandResultAccepted {
		msg := "partner answered " + resp.Result
		if err := s.Commands.MarkFailed(ctx, ep.TenantID, cmd.CommandID, msg); err != nil {
			log.WithError(err).Warn("mark command failed")
		}
		cmd.Status = models.CommandFailed
		cmd.Error = &msg
		return &cmd, nil
	}
	if err := s.Commands.MarkAcked(ctx, ep.TenantID, cmd.CommandID, raw); err != nil {
		log.WithError(err).Warn("mark command acked")
	}
	cmd.Status = models.CommandAcked
	log.Info("command accepted")
	return &cmd, nil
}
