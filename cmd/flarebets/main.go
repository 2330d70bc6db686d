package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "flarebets",
		Short:        "F1 parimutuel betting client for the Flare bet manager contract",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("rpc", "", "Flare RPC URL (empty selects demo mode)")
	root.PersistentFlags().String("ws-rpc", "", "websocket RPC URL for live event subscriptions")
	root.PersistentFlags().String("contract-address", "", "bet manager contract address")
	root.PersistentFlags().String("private-key", "", "hex private key for write operations")
	root.PersistentFlags().Int64("chain-id", 114, "chain id (114 = Coston2)")
	root.PersistentFlags().String("f1-api-url", "https://api.jolpi.ca/ergast/f1", "Ergast-compatible F1 API base URL")
	root.PersistentFlags().String("season", "2025", "F1 season to load")
	root.PersistentFlags().Uint64("lookback-blocks", 50000, "event scan window in blocks")
	root.PersistentFlags().Duration("confirm-timeout", 2*time.Minute, "transaction confirmation timeout")
	root.PersistentFlags().Duration("refresh-interval", 30*time.Second, "odds and event refresh interval")
	root.PersistentFlags().Duration("sim-delay", 1500*time.Millisecond, "simulated confirmation delay in demo mode")
	root.PersistentFlags().String("feed-path", "", "JSONL event feed output path")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN for the bet and event archive")
	root.PersistentFlags().String("redis-addr", "", "Redis address for the shared odds cache")
	root.PersistentFlags().Duration("redis-ttl", 10*time.Minute, "TTL for cached odds in Redis")
	root.PersistentFlags().Int("metrics-port", 9090, "metrics server port")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync session: seed races, track events, reconcile bets",
		RunE:  runServe,
	}
	root.AddCommand(serveCmd)

	betCmd := &cobra.Command{
		Use:   "bet",
		Short: "Place, claim, and list bets",
	}

	betPlaceCmd := &cobra.Command{
		Use:   "place",
		Short: "Place a bet on a driver",
		RunE:  runBetPlace,
	}
	betPlaceCmd.Flags().String("race", "", "race id (season-round)")
	betPlaceCmd.Flags().String("driver", "", "driver id")
	betPlaceCmd.Flags().Float64("stake", 0, "stake in FLR")

	betClaimCmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim the payout of a won bet",
		RunE:  runBetClaim,
	}
	betClaimCmd.Flags().String("bet", "", "bet id")

	betListCmd := &cobra.Command{
		Use:   "list",
		Short: "List the session's bets and stats",
		RunE:  runBetList,
	}

	betCmd.AddCommand(betPlaceCmd, betClaimCmd, betListCmd)
	root.AddCommand(betCmd)

	betsCmd := &cobra.Command{
		Use:   "bets",
		Short: "List the session's bets and stats",
		RunE:  runBetList,
	}
	root.AddCommand(betsCmd)

	oracleCmd := &cobra.Command{
		Use:   "oracle",
		Short: "Oracle operations",
	}

	setResultCmd := &cobra.Command{
		Use:   "set-result",
		Short: "Write a race result (oracle only)",
		RunE:  runSetResult,
	}
	setResultCmd.Flags().String("race", "", "race id (season-round)")
	setResultCmd.Flags().String("winner", "", "winning driver id")

	oracleCmd.AddCommand(setResultCmd)
	root.AddCommand(oracleCmd)

	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Print the unified contract event feed",
		RunE:  runEvents,
	}
	eventsCmd.Flags().String("type", "", "filter by event type")
	root.AddCommand(eventsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
