package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/evbalanz/balanzd/internal/adminapi"
	"github.com/evbalanz/balanzd/internal/balanz"
	"github.com/evbalanz/balanzd/internal/config"
	"github.com/evbalanz/balanzd/internal/csvstore"
	"github.com/evbalanz/balanzd/internal/db"
	"github.com/evbalanz/balanzd/internal/logring"
	"github.com/evbalanz/balanzd/internal/model"
	"github.com/evbalanz/balanzd/internal/ocpp"
)

func main() {
	ring := logring.NewRing(2000)
	base, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	logger := zap.New(logring.WrapCore(base.Core(), ring))
	defer logger.Sync()

	logger.Info("starting balanzd - OCPP 1.6 CSMS and balanz load-balancing engine")

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("db_driver", cfg.DBDriver),
	)

	ctx := context.Background()
	database, err := db.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(database); err != nil {
			logger.Error("failed to close database", zap.Error(err))
		}
	}()

	if os.Getenv("RUN_MIGRATIONS") == "1" {
		logger.Info("running database migrations")
		dialect := "sqlite3"
		if cfg.DBDriver == "postgres" {
			dialect = "postgres"
		}
		if err := goose.SetDialect(dialect); err != nil {
			logger.Fatal("failed to set goose dialect", zap.Error(err))
		}
		if err := goose.Up(database, "migrations"); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		logger.Info("database migrations completed")
	}
	auditMirror := db.NewAuditMirror(database)

	store := model.NewStore()

	if err := csvstore.SeedDefaults(cfg.GroupsCSV, cfg.ChargersCSV, cfg.TagsCSV, logger); err != nil {
		logger.Fatal("failed to seed default config entities", zap.Error(err))
	}
	if err := csvstore.LoadGroups(cfg.GroupsCSV, store); err != nil {
		logger.Fatal("failed to load groups", zap.Error(err))
	}
	if err := csvstore.LoadChargers(cfg.ChargersCSV, store); err != nil {
		logger.Fatal("failed to load chargers", zap.Error(err))
	}
	if err := csvstore.LoadTags(cfg.TagsCSV, store); err != nil {
		logger.Fatal("failed to load tags", zap.Error(err))
	}
	users, err := csvstore.LoadUsers(cfg.UsersCSV)
	if err != nil {
		logger.Fatal("failed to load admin users", zap.Error(err))
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	ocppServer := ocpp.New(store, logger, ocpp.Config{
		SessionConfig: ocpp.SessionConfig{
			WatchdogInterval: cfg.WatchdogInterval,
			WatchdogStale:    cfg.WatchdogStale,
			ReplyTimeout:     cfg.ReplyTimeout,
			HTTPAuthDelay:    cfg.HTTPAuthDelay,
			HTTPAuthEnabled:  cfg.HTTPAuthEnabled,
		},
		DefaultGroupID:         cfg.DefaultGroupID,
		AutoRegisterChargers:   cfg.AutoRegisterChargers,
		DefaultChargerPriority: 1,
		DefaultConnMax:         32,
		DefaultConnectorCount:  1,
	})

	balanzCfg := balanz.Config{
		MinAllocation:                cfg.MinAllocation,
		MaxOfferIncrease:             cfg.MaxOfferIncrease,
		MinOfferIncreaseInterval:     cfg.MinOfferIncreaseInterval,
		UsageMonitoringInterval:      cfg.UsageMonitoringInterval,
		MarginLower:                  cfg.MarginLower,
		MarginIncrease:               cfg.MarginIncrease,
		UsageThreshold:               cfg.UsageThreshold,
		SuspendedAllocationTimeout:   cfg.SuspendedAllocationTimeout,
		SuspendedDelayedTime:         cfg.SuspendedDelayedTime,
		SuspendedDelayedTimeNotFirst: cfg.SuspendedDelayedTimeNotFirst,
		SuspendTopOfHour:             cfg.SuspendTopOfHour,
		EnergyThreshold:              cfg.EnergyThreshold,
		WaitAfterReduce:              cfg.WaitAfterReduce,
		FirstWait:                    cfg.FirstWait,
		RunInterval:                  cfg.RunInterval,
		IntervalsFull:                cfg.IntervalsFull,
		TransactionInterval:          cfg.TransactionInterval,
		TransactionTimeout:           cfg.TransactionTimeout,
	}
	store.UsageMonitoringInterval = balanzCfg.UsageMonitoringInterval

	sessionWriter := csvstore.NewSessionWriter(cfg.SessionsCSV)
	adminServer := adminapi.New(store, ocppServer, ocppServer, logger)
	adminServer.SetUsers(users)

	store.OnSession = func(s *model.Session) {
		if err := sessionWriter.Write(s); err != nil {
			logger.Error("failed to append completed session to csv log", zap.Error(err))
		}
		if err := auditMirror.Record(context.Background(), s); err != nil {
			logger.Error("failed to mirror completed session to database", zap.Error(err))
		}
		adminServer.RecordSession(s)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, group := range store.AllocationGroups() {
		loop := balanz.NewLoop(group, store, ocppServer, balanzCfg, logger)
		go loop.Run(runCtx)
	}

	watchdog := balanz.NewModelWatchdog(store, balanzCfg, logger)
	go watchdog.Run(runCtx, func() []string {
		var ids []string
		for _, g := range store.AllocationGroups() {
			for _, c := range store.ChargersInGroup(g.GroupID) {
				ids = append(ids, c.ChargerID)
			}
		}
		return ids
	})

	if cfg.SessionExportDir != "" {
		exportScheduler := csvstore.NewExportScheduler(cfg.SessionsCSV, cfg.SessionExportDir, 24*time.Hour, logger)
		go exportScheduler.Run(runCtx)
	}

	r.Handle("/api", adminServer.Handler())
	ocppServer.Mount(r)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		logger.Info("starting http server", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	logger.Info("balanzd is running", zap.String("ocpp_url", "ws://localhost"+cfg.HTTPAddr+"/{charger_id}"), zap.String("admin_url", "ws://localhost"+cfg.HTTPAddr+"/api"))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
