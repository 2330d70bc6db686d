package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flarebets/internal/chain"
	"flarebets/internal/config"
	"flarebets/internal/events"
	"flarebets/internal/f1data"
	"flarebets/internal/gateway"
	"flarebets/internal/metrics"
	"flarebets/internal/model"
	"flarebets/internal/odds"
	"flarebets/internal/storage"
	"flarebets/internal/storage/postgres"
	"flarebets/internal/store"
)

// demoOwner is the wallet identity used by the simulated gateway.
var demoOwner = common.HexToAddress("0x00000000000000000000000000000000000D3110")

// session wires the gateway, store, and event aggregator for one command
// invocation.
type session struct {
	cfg    config.Config
	logger *zap.Logger

	gw    gateway.Gateway
	owner common.Address
	store *store.Store
	agg   *events.Aggregator
	pg    *postgres.Store

	chainClient *chain.Client
}

// newSession loads config, builds the logger, and assembles the stack. The
// gateway strategy follows the config: live when an RPC URL and contract
// address are present, simulated otherwise.
func newSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	metrics.Register()

	s := &session{cfg: cfg, logger: logger}

	if cfg.Live() {
		rpcURL := cfg.RPCURL
		if cfg.WSURL != "" {
			rpcURL = cfg.WSURL
		}
		chainClient, err := chain.NewClient(ctx, rpcURL)
		if err != nil {
			return nil, fmt.Errorf("connect rpc: %w", err)
		}
		s.chainClient = chainClient

		live, err := gateway.NewLive(ctx, chainClient, common.HexToAddress(cfg.ContractAddress), cfg.PrivateKey, cfg.ConfirmTimeout, logger)
		if err != nil {
			chainClient.Close()
			return nil, err
		}
		s.gw = live
		s.owner = live.From()
		logger.Info("live gateway",
			zap.String("contract", cfg.ContractAddress),
			zap.String("owner", s.owner.Hex()))
	} else {
		s.gw = gateway.NewSimulated(cfg.SimDelay, demoOwner, logger)
		s.owner = demoOwner
		logger.Info("demo gateway", zap.Duration("sim_delay", cfg.SimDelay))
	}

	var cache odds.Cache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cache = odds.NewRedisCache(client, cfg.RedisTTL)
	}
	estimator := odds.NewEstimator(s.gw, cache, logger)

	s.store = store.New(s.gw, estimator, logger)

	var sinks []events.Sink
	if cfg.FeedPath != "" {
		sinks = append(sinks, storage.NewJsonlSink(cfg.FeedPath))
	}
	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.pg = pg
		sinks = append(sinks, pg)
	}
	s.agg = events.New(s.gw, multiSink(sinks), cfg.LookbackBlocks, logger)

	s.seedRaces(ctx)

	return s, nil
}

// seedRaces loads the season calendar. A failure leaves the calendar empty
// rather than killing the session.
func (s *session) seedRaces(ctx context.Context) {
	f1 := f1data.New(s.cfg.F1APIURL, s.logger)
	races, err := f1.Races(ctx, s.cfg.Season)
	if err != nil {
		s.logger.Warn("season calendar unavailable",
			zap.String("season", s.cfg.Season),
			zap.Error(err))
		return
	}
	s.store.SeedRaces(races)
	s.logger.Info("season seeded",
		zap.String("season", s.cfg.Season),
		zap.Int("races", len(races)))
}

func (s *session) close() {
	if s.store != nil {
		s.store.Teardown()
	}
	if s.pg != nil {
		s.pg.Close()
	}
	if s.chainClient != nil {
		s.chainClient.Close()
	}
	if s.logger != nil {
		_ = s.logger.Sync()
	}
}

// fanoutSink forwards events to every configured sink; one failing sink
// does not block the others.
type fanoutSink []events.Sink

func multiSink(sinks []events.Sink) events.Sink {
	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	default:
		return fanoutSink(sinks)
	}
}

func (f fanoutSink) AppendEvents(ctx context.Context, evts []model.ContractEvent) error {
	var firstErr error
	for _, sink := range f {
		if err := sink.AppendEvents(ctx, evts); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
