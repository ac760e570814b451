package services

import (
	"context"

	"roaming/internal/errs"
	"roaming/internal/models"

	"github.com/shopspring/decimal"
)

type PricingService struct {
	Tariffs TariffStore
}

func NewPricingService(tariffs TariffStore) *PricingService {
	return &PricingService{Tariffs: tariffs}
}

// Price is what a finished transaction costs.
type Price struct {
	Amount   decimal.Decimal
	Currency string
	TariffID string
}

// PriceTransaction keeps a price already set on the stop. Otherwise it uses
// the site's active tariff: cost = kWh * price_per_kwh, rounded to 4 places.
// With neither, the price is zero in the transaction currency.
func (p *PricingService) PriceTransaction(ctx context.Context, tx *models.Transaction) (Price, error) {
	if tx.Stop == nil {
		return Price{}, errs.New(errs.CodeInvalidInput, "transaction is not stopped").With("transactionId", tx.ID)
	}
	currency := tx.Stop.Currency
	if currency == "" {
		currency = tx.Currency
	}
	if !tx.Stop.Price.IsZero() {
		return Price{Amount: tx.Stop.Price, Currency: currency}, nil
	}
	if tx.SiteID == "" || p.Tariffs == nil {
		return Price{Amount: decimal.Zero, Currency: currency}, nil
	}

	tariff, err := p.Tariffs.GetActiveForSite(ctx, tx.TenantID, tx.SiteID)
	if err != nil {
		return Price{}, errs.Wrap(errs.CodeInternal, "load tariff", err).With("siteId", tx.SiteID)
	}
	if tariff == nil {
		return Price{Amount: decimal.Zero, Currency: currency}, nil
	}
	kwh := decimal.NewFromInt(tx.Stop.TotalConsumptionWh).Div(thousand)
	return Price{
		Amount:   kwh.Mul(tariff.PricePerKwh).Round(4),
		Currency: tariff.Currency,
		TariffID: tariff.TariffID,
	}, nil
}
