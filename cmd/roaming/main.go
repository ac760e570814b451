package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"roaming/internal/config"
	"roaming/internal/db"
	"roaming/internal/httpapi"
	"roaming/internal/lock"
	"roaming/internal/logging"
	"roaming/internal/models"
	"roaming/internal/repo"
	"roaming/internal/scheduler"
	"roaming/internal/services"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

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

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Fatal("connect redis")
	}
	locker := lock.NewRedisLocker(rdb, cfg.LockTTL)

	endpoints := repo.NewEndpointsRepo(d.Pool)
	tags := repo.NewTagsRepo(d.Pool)
	stations := repo.NewChargingStationsRepo(d.Pool)
	txs := repo.NewTransactionsRepo(d.Pool)
	companies := repo.NewCompaniesRepo(d.Pool)
	sites := repo.NewSitesRepo(d.Pool)
	areas := repo.NewSiteAreasRepo(d.Pool)
	tariffs := repo.NewTariffsRepo(d.Pool)
	commands := repo.NewCommandsRepo(d.Pool)

	opts := services.Options{
		PageLimit:     cfg.PageLimit,
		LookbackDays:  cfg.PullLookbackDays,
		HTTPTimeout:   cfg.HTTPTimeout,
		PublicBaseURL: cfg.PublicBaseURL,
	}
	locations := services.NewLocationReconciler(endpoints, companies, sites, areas, stations, opts, logger)
	tokens := services.NewTokenPusher(endpoints, tags, opts, logger)
	sessions := services.NewSessionPuller(endpoints, txs, stations, tags, opts, logger)
	cdrs := services.NewCdrPuller(endpoints, txs, opts, logger)
	finalizer := services.NewCdrFinalizer(endpoints, services.NewPricingService(tariffs), opts, logger)
	cdrPush := services.NewCdrPushTask(txs, stations, tags, locker, finalizer, logger)
	remote := services.NewCommandsService(endpoints, commands, tags, stations, txs, opts, logger)

	// locations first so sessions find their stations
	syncJobs := scheduler.New(cfg.SyncInterval, endpoints, logger,
		services.NewEndpointJob(services.JobPullLocations, models.RoleEMSP, endpoints, locations.PullLocations, logger),
		services.NewEndpointJob(services.JobPushTokens, models.RoleEMSP, endpoints, tokens.PushAllTokens, logger),
		services.NewEndpointJob(services.JobPullSessions, models.RoleEMSP, endpoints, sessions.PullSessions, logger),
		services.NewEndpointJob(services.JobPullCdrs, models.RoleEMSP, endpoints, cdrs.PullCdrs, logger),
	)
	pushJobs := scheduler.New(cfg.CdrPushInterval, endpoints, logger, cdrPush)

	api := &httpapi.Server{
		APIKey: cfg.AdminAPIKey,
		Tokens: tokens,
		Pulls: map[string]services.EndpointFlow{
			"locations": locations.PullLocations,
			"sessions":  sessions.PullSessions,
			"cdrs":      cdrs.PullCdrs,
		},
		CdrPush:    cdrPush,
		Commands:   remote,
		CommandLog: commands,
		Sites:      sites,
		Tariffs:    tariffs,
		Logger:     logger,
	}
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if cfg.AdminAPIKey == "" {
		logger.Warn("ROAMING_ADMIN_API_KEY is empty, the trigger API rejects every request")
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for _, s := range []*scheduler.Scheduler{syncJobs, pushJobs} {
		wg.Add(1)
		go func(s *scheduler.Scheduler) {
			defer wg.Done()
			s.Start(runCtx)
		}(s)
	}

	go func() {
		logger.WithField("addr", cfg.ListenAddr).Info("roaming listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("http server")
		}
	}()

	<-runCtx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	wg.Wait()
	logger.Info("roaming shutdown complete")
}
