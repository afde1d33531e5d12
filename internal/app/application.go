// Package app wires the domain services, their stores, and the background
// components into one application with a managed lifecycle.
package app

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/domainledger/registry_layer/internal/app/services/fraction"
	oraclesvc "github.com/domainledger/registry_layer/internal/app/services/oracle"
	registrysvc "github.com/domainledger/registry_layer/internal/app/services/registry"
	treasurysvc "github.com/domainledger/registry_layer/internal/app/services/treasury"
	"github.com/domainledger/registry_layer/internal/app/storage"
	"github.com/domainledger/registry_layer/internal/app/storage/memory"
	"github.com/domainledger/registry_layer/internal/app/system"
	"github.com/domainledger/registry_layer/internal/config"
	"github.com/domainledger/registry_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Registry storage.RegistryStore
	Treasury storage.TreasuryStore
	Fraction storage.FractionStore
	Oracle   storage.OracleStore
}

// Application ties the ledger services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Registry *registrysvc.Service
	Treasury *treasurysvc.Service
	Fraction *fraction.Service
	Oracle   *oraclesvc.Service
	Token    *registrysvc.MemoryToken
}

// New builds a fully initialised application with the provided stores.
func New(cfg config.Config, stores Stores, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Registry == nil {
		stores.Registry = mem
	}
	if stores.Treasury == nil {
		stores.Treasury = mem
	}
	if stores.Fraction == nil {
		stores.Fraction = mem
	}
	if stores.Oracle == nil {
		stores.Oracle = mem
	}

	manager := system.NewManager(log)

	floor, err := decimal.NewFromString(cfg.Oracle.RateFloor)
	if err != nil {
		return nil, err
	}

	var feed oraclesvc.FeedSource
	if cfg.Oracle.FeedURL != "" {
		httpClient := &http.Client{Timeout: 10 * time.Second}
		httpFeed, err := oraclesvc.NewHTTPFeed(httpClient, cfg.Oracle.FeedURL, int32(cfg.Oracle.FeedDecimals), log)
		if err != nil {
			return nil, err
		}
		feed = httpFeed
	} else {
		log.Warn("ORACLE_FEED_URL not set; exchange rates served from the fallback only")
	}

	oracleService := oraclesvc.New(stores.Oracle, feed, cfg.Identity.Admin, cfg.Oracle.Staleness, floor, log)

	registryService := registrysvc.New(stores.Registry, cfg.Identity.Admin, cfg.Identity.Registry, log)
	registryService.SetOracle(oracleService)
	registryService.SetFractionAddress(cfg.Identity.Fraction)

	token := registrysvc.NewMemoryToken()
	registryService.SetToken(token)

	treasuryService, err := treasurysvc.New(stores.Treasury, cfg.Treasury.DefaultFeeBps, cfg.Identity.Treasury, log)
	if err != nil {
		return nil, err
	}
	treasuryService.SetRegistry(registryService, cfg.Identity.Registry)
	registryService.SetTreasury(treasuryService, cfg.Identity.Treasury)

	fractionService := fraction.New(stores.Fraction, cfg.Identity.Fraction, cfg.Fraction.GracePeriod, log)
	fractionService.SetRegistry(registryService)

	if cfg.Sweeper.Enabled {
		sweeper := treasurysvc.NewSweeper(treasuryService, registryService,
			cfg.Sweeper.Schedule, cfg.Sweeper.Window, cfg.Sweeper.Years, log)
		manager.Register(sweeper)
	}

	return &Application{
		manager:  manager,
		log:      log,
		Registry: registryService,
		Treasury: treasuryService,
		Fraction: fractionService,
		Oracle:   oracleService,
		Token:    token,
	}, nil
}

// SeedPrices applies per-suffix prices as the configured administrator.
// Existing prices are overwritten; call at startup before serving traffic.
func (a *Application) SeedPrices(ctx context.Context, admin string, prices map[string]*big.Int) error {
	for suffix, perYear := range prices {
		if err := a.Registry.SetSuffixPrice(ctx, admin, suffix, perYear); err != nil {
			return fmt.Errorf("seed price for %q: %w", suffix, err)
		}
	}
	return nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) {
	a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.StartAll(ctx)
}

// Stop stops all services in reverse order.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.StopAll(ctx)
}
