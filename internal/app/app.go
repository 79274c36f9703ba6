// Package app wires configuration into the ingestion pipeline.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/fba-recon/internal/config"
	"github.com/and161185/fba-recon/internal/crypto"
	"github.com/and161185/fba-recon/internal/document"
	"github.com/and161185/fba-recon/internal/lwa"
	"github.com/and161185/fba-recon/internal/orders"
	"github.com/and161185/fba-recon/internal/recon"
	"github.com/and161185/fba-recon/internal/reports"
	"github.com/and161185/fba-recon/internal/repository/postgres"
	"github.com/and161185/fba-recon/internal/service"
	"github.com/and161185/fba-recon/internal/spapi"
)

// Version is set at build time.
var Version = "dev"

// NewLogger returns a development logger in dev mode and a production one otherwise.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg != nil && cfg.Dev() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// App holds the wired pipeline.
type App struct {
	Vault    *crypto.Vault
	DB       *postgres.DB
	Accounts *postgres.AccountRepo
	Service  *service.Service
	Recon    *recon.Service
}

// Close releases the database pool.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

// Build connects to the database and constructs every pipeline component.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg.LWAClientID == "" || cfg.LWAClientSecret == "" {
		return nil, errors.New("LWA_CLIENT_ID and LWA_CLIENT_SECRET are required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	region, ok := spapi.LookupRegion(cfg.Region)
	if !ok {
		return nil, fmt.Errorf("unknown region %q", cfg.Region)
	}

	vault, err := crypto.NewVault(cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	tokens := lwa.NewManager(vault,
		lwa.NewClient(lwa.ClientConfig{
			ClientID:     cfg.LWAClientID,
			ClientSecret: cfg.LWAClientSecret,
			TokenURL:     cfg.LWATokenURL,
			Timeout:      cfg.TokenTimeout,
		}, nil),
		lwa.NewCache(nil),
		log.Named("lwa"))

	var signer spapi.Signer
	if cfg.SigningEnabled() {
		signer = spapi.NewSigV4(cfg.AWSAccessKey, cfg.AWSSecretKey, region.SigningRegion)
	} else {
		log.Warn("request signing disabled", zap.Bool("no_aws_mode", cfg.NoAWSMode))
	}
	exec := spapi.NewExecutor(tokens, spapi.Options{
		BaseURL:        region.Endpoint,
		Signer:         signer,
		RequestTimeout: cfg.RequestTimeout,
		UserAgent:      "fba-recon/" + Version,
	}, log.Named("spapi"))

	orch := reports.NewOrchestrator(exec,
		document.NewDecoder(nil, cfg.DownloadTimeout, log.Named("document")),
		reports.Options{
			MarketplaceIDs: spapi.MarketplaceIDs(cfg.Region, nil),
			PollInterval:   cfg.PollInterval,
			PollTimeout:    cfg.PollTimeout,
			StatusTimeout:  cfg.RequestTimeout,
		}, log.Named("reports"))

	accounts := postgres.NewAccountRepo(db)
	rec := recon.NewService(postgres.NewReconRepo(db), recon.Options{}, log.Named("recon"))
	svc := service.New(service.Deps{
		Accounts: accounts,
		Reports:  postgres.NewReportRepo(db),
		Orders:   postgres.NewOrderRepo(db),
		Jobs:     orch,
		OrderAPI: orders.NewFetcher(exec, cfg.MaxOrders, log.Named("orders")),
		Recon:    rec,
		Log:      log.Named("service"),
	})

	return &App{Vault: vault, DB: db, Accounts: accounts, Service: svc, Recon: rec}, nil
}
