package services

import (
	"context"
	"strconv"

	"roaming/internal/errs"
	"roaming/internal/models"
	"roaming/internal/ocpi"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	DimensionEnergy = "ENERGY"
	DimensionTime   = "TIME"
)

// Finalizer computes a CDR for a finished roaming transaction, sends it to
// the partner and stores it on tx.RoamingData. It does not persist tx.
type Finalizer interface {
	FinalizeRoamingTransaction(ctx context.Context, tx *models.Transaction, cs *models.ChargingStation, tag *models.Tag) error
}

// CdrFinalizer is the OCPI Finalizer.
type CdrFinalizer struct {
	endpointRunner
	Pricing *PricingService
}

func NewCdrFinalizer(endpoints EndpointStore, pricing *PricingService, opts Options, logger logrus.FieldLogger) *CdrFinalizer {
	return &CdrFinalizer{endpointRunner: newRunner(endpoints, opts, logger), Pricing: pricing}
}

func (f *CdrFinalizer) FinalizeRoamingTransaction(ctx context.Context, tx *models.Transaction, cs *models.ChargingStation, tag *models.Tag) error {
	if tx.Stop == nil {
		return errs.New(errs.CodeInvalidInput, "transaction is not stopped").With("transactionId", tx.ID)
	}
	if tx.RoamingData == nil || tx.RoamingData.EndpointID == "" {
		return errs.New(errs.CodeInvalidInput, "transaction has no roaming endpoint").With("transactionId", tx.ID)
	}
	ep, err := f.loadEndpoint(ctx, tx.TenantID, tx.RoamingData.EndpointID)
	if err != nil {
		return err
	}
	price, err := f.Pricing.PriceTransaction(ctx, tx)
	if err != nil {
		return err
	}

	cdr := BuildCdr(tx, cs, tag, price)
	cdr.LastUpdated = f.now()
	if err := f.client(ep).PostCdr(ctx, cdr); err != nil {
		return err
	}

	checked := f.now()
	tx.RoamingData.Cdr = &cdr
	tx.RoamingData.CdrCheckedOn = &checked
	return nil
}

// BuildCdr assembles the CDR of a stopped transaction.
func BuildCdr(tx *models.Transaction, cs *models.ChargingStation, tag *models.Tag, price Price) ocpi.Cdr {
	kwh := decimal.NewFromInt(tx.Stop.TotalConsumptionWh).Div(thousand)
	hours := decimal.NewFromInt(tx.Stop.TotalDurationSecs).Div(decimal.NewFromInt(3600)).Round(4)

	var sessionID string
	if tx.RoamingData != nil && tx.RoamingData.Session != nil {
		sessionID = tx.RoamingData.Session.ID
	}
	return ocpi.Cdr{
		ID:            tx.ID,
		SessionID:     sessionID,
		StartDateTime: tx.StartedAt,
		StopDateTime:  tx.Stop.StoppedAt,
		AuthID:        tag.ID,
		AuthMethod:    AuthMethodWhitelist,
		Location:      locationOf(cs, tx.ConnectorID),
		Currency:      price.Currency,
		TariffID:      price.TariffID,
		ChargingPeriods: []ocpi.ChargingPeriod{{
			StartDateTime: tx.StartedAt,
			Dimensions: []ocpi.CdrDimension{
				{Type: DimensionEnergy, Volume: kwh},
				{Type: DimensionTime, Volume: hours},
			},
		}},
		TotalCost:        price.Amount,
		TotalEnergy:      kwh,
		TotalTime:        hours,
		TotalParkingTime: decimal.Zero,
	}
}

// locationOf describes the station as a single-EVSE OCPI location.
func locationOf(cs *models.ChargingStation, connectorID int) ocpi.Location {
	loc := ocpi.Location{ID: cs.SiteAreaID}
	if loc.ID == "" {
		loc.ID = cs.ID
	}
	if cs.Coordinates != nil {
		loc.Coordinates = ocpi.GeoLocation{
			Latitude:  decimal.NewFromFloat(cs.Coordinates.Latitude).StringFixed(6),
			Longitude: decimal.NewFromFloat(cs.Coordinates.Longitude).StringFixed(6),
		}
	}
	evse := ocpi.EVSE{UID: cs.ID, EvseID: cs.ID, Status: ocpi.EvseAvailable}
	for _, c := range cs.Connectors {
		if c.ConnectorID != connectorID {
			continue
		}
		id := c.RemoteID
		if id == "" {
			id = strconv.Itoa(c.ConnectorID)
		}
		evse.Connectors = append(evse.Connectors, ocpi.Connector{
			ID:        id,
			Standard:  c.Type,
			PowerType: c.CurrentType,
			Voltage:   c.Voltage,
			Amperage:  c.Amperage,
		})
	}
	loc.EVSEs = []ocpi.EVSE{evse}
	return loc
}
