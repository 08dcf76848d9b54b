package main

import (
	"io"

	"github.com/sirupsen/logrus"

	"netonboard/internal/config"
	"netonboard/internal/driver"
	applog "netonboard/internal/log"
	"netonboard/internal/repository/sqlite"
	"netonboard/internal/service"
)

// app is the wired onboarding stack shared by serve and onboard.
type app struct {
	cfg        *config.Configuration
	logger     *logrus.Logger
	repo       *sqlite.Repository
	secrets    *service.SecretsService
	eventBus   *service.EventBus
	controller *service.Controller
}

func newApp(logOut io.Writer) (*app, error) {
	cfg, err := config.Load(args.ConfigFile, args.LogLevel)
	if err != nil {
		return nil, err
	}

	logger := applog.NewLogrusLogger(cfg.LogLevel, applog.Format(args.LogFormat), logOut)
	applog.RouteOpenTelemetry(logger)
	logger.WithFields(cfg.AsLogFields()).Info("configuration loaded")

	repo, err := sqlite.New(cfg.Database.Path, sqlite.WithOperationTimeout(cfg.Database.Timeout))
	if err != nil {
		return nil, err
	}

	secrets := service.NewSecretsService(cfg.Credentials.EnvPrefix, logger.WithField("component", "secrets"))
	secrets.SetMountedPaths(cfg.Credentials.Paths)
	if err := secrets.LoadMountedSecrets(); err != nil {
		repo.Close()
		return nil, err
	}

	registry := driver.DefaultRegistry(driver.WithCommandTimeout(cfg.Connector.CommandTimeout))
	connector := driver.NewConnector(registry, driver.ConnectorConfig{
		Timeout:      cfg.Connector.Timeout,
		ProbeOrder:   cfg.Connector.ProbeOrder,
		Reachability: cfg.Connector.Reachability,
		SSHPort:      cfg.Connector.SSHPort,
		SNMPPort:     cfg.Connector.SNMPPort,
	}, logger.WithField("component", "connector"))

	eventBus := service.NewEventBus()

	reconciler := service.NewReconciler(repo, service.ReconcilePolicy{
		DefaultSite:                 cfg.Reconcile.DefaultSite,
		DefaultRole:                 cfg.Reconcile.DefaultRole,
		CreateSiteIfMissing:         cfg.Reconcile.CreateSiteIfMissing,
		CreateManufacturerIfMissing: cfg.Reconcile.CreateManufacturerIfMissing,
		CreateDeviceTypeIfMissing:   cfg.Reconcile.CreateDeviceTypeIfMissing,
		CreatePlatformIfMissing:     cfg.Reconcile.CreatePlatformIfMissing,
		CreateDeviceRoleIfMissing:   cfg.Reconcile.CreateDeviceRoleIfMissing,
		GuessRoleFromHostname:       cfg.Reconcile.GuessRoleFromHostname,
	}, eventBus, logger.WithField("component", "reconciler"))

	controller := service.NewController(connector, reconciler, secrets, service.ControllerConfig{
		Concurrency:      cfg.Concurrency,
		MaxRetries:       cfg.Retry.MaxRetries,
		InitialBackoff:   cfg.Retry.InitialBackoff,
		MaxBackoff:       cfg.Retry.MaxBackoff,
		ReconcileTimeout: cfg.Reconcile.Timeout,
	}, eventBus, logger.WithField("component", "controller"))

	return &app{
		cfg:        cfg,
		logger:     logger,
		repo:       repo,
		secrets:    secrets,
		eventBus:   eventBus,
		controller: controller,
	}, nil
}

func (a *app) Close() error {
	return a.repo.Close()
}
