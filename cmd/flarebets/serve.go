package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flarebets/internal/metrics"
)

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if s.pg != nil {
		if ts, ok, err := s.pg.LoadState(ctx, "bet_archive"); err != nil {
			s.logger.Warn("archive state load failed", zap.Error(err))
		} else if ok {
			s.logger.Info("resuming bet archive",
				zap.Time("last_archived", time.Unix(int64(ts), 0)))
		}
	}

	srv := metrics.StartServer(s.cfg.MetricsPort, func(ctx context.Context) error {
		_, err := s.gw.LatestBlock(ctx)
		return err
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := s.agg.Refresh(ctx); err != nil {
		metrics.EventRefreshFailures.Inc()
		s.logger.Warn("initial event refresh failed", zap.Error(err))
	} else {
		metrics.EventRefreshes.Inc()
	}

	unsubscribe, err := s.agg.Subscribe(ctx)
	if err != nil {
		s.logger.Warn("live event subscription unavailable, polling only", zap.Error(err))
	} else {
		s.store.OnTeardown(unsubscribe)
	}

	if err := s.store.Reconcile(ctx, s.owner); err != nil {
		s.logger.Warn("initial reconciliation failed", zap.Error(err))
	}

	s.store.StartOddsRefresh(s.cfg.RefreshInterval)

	s.logger.Info("session running",
		zap.Bool("demo", s.gw.Demo()),
		zap.String("owner", s.owner.Hex()),
		zap.Int("metrics_port", s.cfg.MetricsPort))

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session stopping")
			return nil
		case <-ticker.C:
			if err := s.agg.Refresh(ctx); err != nil {
				metrics.EventRefreshFailures.Inc()
				s.logger.Warn("event refresh failed", zap.Error(err))
			} else {
				metrics.EventRefreshes.Inc()
			}
			if err := s.store.Reconcile(ctx, s.owner); err != nil {
				s.logger.Warn("reconciliation failed", zap.Error(err))
			}
			s.archiveBets(ctx)
		}
	}
}

// archiveBets mirrors the current bet collection into Postgres when an
// archive is configured.
func (s *session) archiveBets(ctx context.Context) {
	if s.pg == nil {
		return
	}
	if err := s.pg.UpsertBets(ctx, s.store.Bets()); err != nil {
		s.logger.Warn("bet archive failed", zap.Error(err))
		return
	}
	if err := s.pg.SaveState(ctx, "bet_archive", uint64(time.Now().Unix())); err != nil {
		s.logger.Warn("archive state save failed", zap.Error(err))
	}
}
