package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flarebets/internal/metrics"
	"flarebets/internal/model"
)

func runBetPlace(cmd *cobra.Command, _ []string) error {
	raceID, _ := cmd.Flags().GetString("race")
	driverID, _ := cmd.Flags().GetString("driver")
	stake, _ := cmd.Flags().GetFloat64("stake")

	if raceID == "" || driverID == "" {
		return fmt.Errorf("race and driver are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	result, err := s.store.PlaceBet(ctx, s.owner.Hex(), raceID, driverID, stake)
	var extraction *model.BetIDExtractionError
	if errors.As(err, &extraction) {
		s.logger.Warn("bet placed but contract id not yet known",
			zap.String("tx_hash", extraction.TxHash))
	} else if err != nil {
		metrics.OperationErrors.WithLabelValues("place_bet").Inc()
		return err
	}
	metrics.BetsPlaced.Inc()

	return printJSON(result)
}

func runBetClaim(cmd *cobra.Command, _ []string) error {
	betID, _ := cmd.Flags().GetString("bet")
	if betID == "" {
		return fmt.Errorf("bet id is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	// The local collection starts empty in a fresh process; pull the
	// chain's view first so the bet can be found.
	if err := s.store.Reconcile(ctx, s.owner); err != nil {
		s.logger.Warn("reconciliation failed", zap.Error(err))
	}

	bet, err := s.store.ClaimPayout(ctx, betID)
	if err != nil {
		metrics.OperationErrors.WithLabelValues("claim_payout").Inc()
		return err
	}
	metrics.PayoutsClaimed.Inc()

	return printJSON(bet)
}

func runBetList(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.store.Reconcile(ctx, s.owner); err != nil {
		s.logger.Warn("reconciliation failed", zap.Error(err))
	}

	return printJSON(struct {
		Bets  []model.Bet     `json:"bets"`
		Stats model.UserStats `json:"stats"`
	}{
		Bets:  s.store.Bets(),
		Stats: s.store.Stats(),
	})
}

func printJSON(value any) error {
	out, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Println(string(out))
	return err
}
