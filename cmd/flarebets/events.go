package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"flarebets/internal/betman"
	"flarebets/internal/model"
)

func runEvents(cmd *cobra.Command, _ []string) error {
	typeFilter, _ := cmd.Flags().GetString("type")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.agg.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh events: %w", err)
	}

	var feed []model.ContractEvent
	if typeFilter != "" {
		eventType, ok := betman.EventName(typeFilter)
		if !ok {
			return fmt.Errorf("unknown event type %q", typeFilter)
		}
		feed = s.agg.FeedByType(eventType)
	} else {
		feed = s.agg.Feed()
	}

	for _, event := range feed {
		line, err := json.Marshal(event)
		if err != nil {
			return err
		}
		fmt.Println(string(line))
	}
	return nil
}
