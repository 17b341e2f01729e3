/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/reverside/timetracker/config"
	"github.com/reverside/timetracker/internal/mq"
	"github.com/reverside/timetracker/types"
	"github.com/spf13/cobra"
)

// notifyCmd consumes workflow events. It logs each one; mail or chat
// integrations hook in here.
var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Consume timesheet workflow events",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bus, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			if errors.Is(err, mq.ErrDisabled) {
				return errors.New("notify needs a broker: set MQ_BACKEND")
			}
			return err
		}
		defer bus.Close()

		logger.Info("consuming workflow events", "backend", cfg.MQ.Backend, "channel", cfg.MQ.Channel)
		err = bus.Subscribe(ctx, cfg.MQ.Channel, mq.EventHandlerFunc(logger, func(_ context.Context, e types.TimesheetEvent) error {
			logger.Info("timesheet event",
				"event_id", e.ID,
				"type", e.Type,
				"timesheet_id", e.TimesheetID,
				"user_id", e.UserID,
				"actor_id", e.ActorID,
				"period", e.PeriodKey,
				"status", e.Status,
				"reason", e.Reason,
			)
			return nil
		}))
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notifyCmd)
}
