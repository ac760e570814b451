package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"roaming/internal/config"
	"roaming/internal/db"
	"roaming/internal/logging"
	"roaming/internal/models"
	"roaming/internal/repo"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

func main() {
	tenant := flag.String("tenant", "t1", "tenant id")
	name := flag.String("name", "hub", "endpoint name (unique per tenant)")
	role := flag.String("role", models.RoleEMSP, "role we hold towards the partner (CPO or EMSP)")
	baseURL := flag.String("base_url", "http://localhost:9000/ocpi/cpo/2.1.1", "partner versioned module root")
	token := flag.String("token", "devtoken", "credential token sent to the partner")
	country := flag.String("country", "FR", "partner country code")
	party := flag.String("party", "ABC", "partner party id")
	tagList := flag.String("tags", "", "optional comma separated tag ids issued by us")
	siteID := flag.String("site", "", "optional site id to attach a tariff to")
	pricePerKwh := flag.String("price_per_kwh", "", "optional per-kWh price for the active tariff (requires --site)")
	currency := flag.String("currency", "EUR", "tariff currency")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("connect database")
	}
	defer d.Close()
	if err := d.Migrate(ctx); err != nil {
		logger.WithError(err).Fatal("apply schema")
	}

	ep := models.Endpoint{
		TenantID:    *tenant,
		Name:        *name,
		Role:        strings.ToUpper(*role),
		BaseURL:     *baseURL,
		Token:       *token,
		CountryCode: strings.ToUpper(*country),
		PartyID:     strings.ToUpper(*party),
		Status:      models.EndpointConnected,
	}
	if err := validator.New().StructExcept(ep, "ID"); err != nil {
		logger.WithError(err).Fatal("invalid endpoint")
	}
	id, err := repo.NewEndpointsRepo(d.Pool).Create(ctx, ep)
	if err != nil {
		logger.WithError(err).Fatal("create endpoint")
	}
	fmt.Println("Seeded endpoint:", id, "tenant=", *tenant, "role=", ep.Role)

	tags := repo.NewTagsRepo(d.Pool)
	for _, tagID := range strings.Split(*tagList, ",") {
		tagID = strings.TrimSpace(tagID)
		if tagID == "" {
			continue
		}
		err := tags.Upsert(ctx, models.Tag{ID: tagID, TenantID: *tenant, Active: true, Issuer: true, LastChangedOn: time.Now().UTC()})
		if err != nil {
			logger.WithError(err).Fatal("upsert tag")
		}
		fmt.Println("Seeded tag:", tagID)
	}

	if *siteID != "" && *pricePerKwh != "" {
		price, err := decimal.NewFromString(*pricePerKwh)
		if err != nil || !price.IsPositive() {
			logger.WithField("price", *pricePerKwh).Fatal("invalid price_per_kwh")
		}
		tariffID, err := repo.NewTariffsRepo(d.Pool).UpsertActiveForSite(ctx, *tenant, *siteID, price, *currency)
		if err != nil {
			logger.WithError(err).Fatal("upsert tariff")
		}
		fmt.Println("Seeded tariff:", tariffID, "site=", *siteID)
	}
}
