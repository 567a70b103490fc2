package main

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arvopay/ledger/internal/application/ledgerservice"
	"github.com/arvopay/ledger/internal/infrastructure/cache"
	"github.com/arvopay/ledger/internal/infrastructure/database"
	"github.com/arvopay/ledger/internal/ledger"
	"github.com/arvopay/ledger/internal/repositories/balancerepo"
	"github.com/arvopay/ledger/internal/repositories/historyrepo"
	"github.com/arvopay/ledger/internal/repositories/transactionrepo"
	"github.com/arvopay/ledger/internal/server"
	"github.com/arvopay/ledger/internal/server/websocket"
	"github.com/arvopay/ledger/pkg/config"
	"github.com/arvopay/ledger/pkg/logger"
)

func main() {
	logger := logger.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.ShutDown()

	var snapshotCache *cache.SnapshotCache
	if cfg.Redis.Addr != "" {
		snapshotCache, err = cache.New(&cfg.Redis, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer snapshotCache.Close()
	}

	transactionRepo := transactionrepo.New(db, logger)
	balanceRepo := balancerepo.New(db, logger)
	historyRepo := historyrepo.New(db, logger)

	wsHub := websocket.NewWsHub(logger)

	ledgerService := ledgerservice.NewLedgerService(
		transactionRepo,
		balanceRepo,
		historyRepo,
		ledger.NewLifecycle(),
		ledger.NewProjector(overdraftFunc(cfg.Ledger, logger)),
		snapshotCache,
		wsHub,
		cfg.Ledger,
		cfg.Reconciler,
		logger,
	)

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go ledgerService.RunDriftMonitor(monitorCtx)

	srv := server.New(cfg, ledgerService, logger, wsHub)
	srv.Start()
}

// overdraftFunc resolves per-account overdraft limits from configuration.
// Malformed limits are logged once at startup and treated as zero.
func overdraftFunc(cfg config.LedgerConfig, log zerolog.Logger) ledger.OverdraftFunc {
	parse := func(accountID, raw string) decimal.Decimal {
		if raw == "" {
			return decimal.Zero
		}
		limit, err := decimal.NewFromString(raw)
		if err != nil || limit.IsNegative() {
			log.Warn().Str("account_id", accountID).Str("limit", raw).Msg("Ignoring invalid overdraft limit")
			return decimal.Zero
		}
		return limit
	}

	defaultLimit := parse("", cfg.DefaultOverdraft)
	limits := make(map[string]decimal.Decimal, len(cfg.OverdraftLimits))
	for accountID, raw := range cfg.OverdraftLimits {
		limits[accountID] = parse(accountID, raw)
	}

	return func(accountID string) decimal.Decimal {
		if limit, ok := limits[accountID]; ok {
			return limit
		}
		return defaultLimit
	}
}
