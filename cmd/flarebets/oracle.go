package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flarebets/internal/metrics"
)

func runSetResult(cmd *cobra.Command, _ []string) error {
	raceID, _ := cmd.Flags().GetString("race")
	winnerID, _ := cmd.Flags().GetString("winner")

	if raceID == "" || winnerID == "" {
		return fmt.Errorf("race and winner are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.store.SetRaceResult(ctx, raceID, winnerID); err != nil {
		metrics.OperationErrors.WithLabelValues("set_race_result").Inc()
		return err
	}
	metrics.RacesSettled.Inc()

	s.logger.Info("result recorded",
		zap.String("race_id", raceID),
		zap.String("winner", winnerID))
	return nil
}
