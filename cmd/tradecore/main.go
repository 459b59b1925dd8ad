package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jai-bhardwaj/tradecore/internal/ba"
	"github.com/jai-bhardwaj/tradecore/internal/config"
	"github.com/jai-bhardwaj/tradecore/internal/domain"
	"github.com/jai-bhardwaj/tradecore/internal/dsw"
	"github.com/jai-bhardwaj/tradecore/internal/errs"
	"github.com/jai-bhardwaj/tradecore/internal/eventbus"
	"github.com/jai-bhardwaj/tradecore/internal/hotstore"
	"github.com/jai-bhardwaj/tradecore/internal/mme"
	"github.com/jai-bhardwaj/tradecore/internal/om"
	"github.com/jai-bhardwaj/tradecore/internal/qd"
)

const version = "v1.0"

func main() {
	// ═══════════════════════════════════════════════════════════════════
	// BOOTSTRAP
	// ═══════════════════════════════════════════════════════════════════

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Msgf("tradecore %s starting", version)

	// ═══════════════════════════════════════════════════════════════════
	// LAYER 1: HOT STATE + DURABLE STORAGE
	// ═══════════════════════════════════════════════════════════════════

	store := hotstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("redis unreachable")
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("hot store connected")

	sqlStore, err := dsw.NewStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("sql store unavailable")
	}
	log.Info().Msg("durable store connected")

	bus := eventbus.New(cfg.BrokerEventBufferSize)

	// ═══════════════════════════════════════════════════════════════════
	// LAYER 2: ORDER MANAGER
	// ═══════════════════════════════════════════════════════════════════

	manager := om.New(store, bus, cfg)

	// ═══════════════════════════════════════════════════════════════════
	// LAYER 3: BROKER ADAPTER + MOCK MATCHING ENGINE
	// ═══════════════════════════════════════════════════════════════════

	brokerAdapter := ba.New(store, bus, manager, cfg, os.Getenv("BROKER_BASE_URL"))
	matchEngine := mme.New(store, manager, durationMs(cfg.PaperMatchTimeoutMs))

	go brokerAdapter.RunTokenRefresh(ctx)
	go matchEngine.RunTimeoutSweeper(ctx)
	if wsURL := os.Getenv("BROKER_WS_URL"); wsURL != "" {
		go brokerAdapter.RunEventStream(ctx, wsURL)
	}

	// ═══════════════════════════════════════════════════════════════════
	// LAYER 4: PRIORITY QUEUE DISPATCHER
	// ═══════════════════════════════════════════════════════════════════

	dispatcher := qd.New(store, routeHandler(brokerAdapter, matchEngine, manager), cfg.QueueWorkers, cfg.QueueMaxSize,
		cfg.QueueFairnessEveryM, cfg.QueueStaleThreshold, cfg.QueueRebalanceEvery)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := dispatcher.Run(ctx); err != nil {
			log.Error().Err(err).Msg("dispatcher stopped")
		}
	}()

	// ═══════════════════════════════════════════════════════════════════
	// LAYER 5: DB SYNC WORKER
	// ═══════════════════════════════════════════════════════════════════

	syncWorker := dsw.NewWorker(sqlStore, store, manager, bus, cfg)
	wg.Add(1)
	go func() {
		defer wg.Done()
		syncWorker.Run(ctx)
	}()

	log.Info().Msg("tradecore fully wired, awaiting signals")

	// ═══════════════════════════════════════════════════════════════════
	// SHUTDOWN
	// ═══════════════════════════════════════════════════════════════════

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown signal received, draining in-flight work")
	cancel()
	wg.Wait()
	_ = store.Close()
	log.Info().Msg("shutdown complete")
}

func durationMs(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// routeHandler is the qd.Handler that sends LIVE orders to the broker
// adapter and PAPER orders to the mock matching engine, the one branch
// point spec §9 calls out as an explicit per-order mode flag rather than an
// implicit fallback.
func routeHandler(bAdapter *ba.Adapter, engine *mme.Engine, mgr *om.Manager) qd.Handler {
	return func(ctx context.Context, item domain.QueueItem) error {
		order, err := mgr.Get(ctx, item.OrderID)
		if err != nil {
			return err
		}
		switch order.Mode {
		case domain.ModeLive:
			return bAdapter.Submit(ctx, item)
		case domain.ModePaper:
			return engine.Submit(ctx, item)
		default:
			return errs.New(errs.KindValidation, "main.route", "order has no routing mode").WithOrder(order.ID)
		}
	}
}
