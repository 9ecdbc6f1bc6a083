package main

import (
	"github.com/spf13/cobra"

	"github.com/smartexam/reval/internal/events"
	"github.com/smartexam/reval/internal/output"
	"github.com/smartexam/reval/internal/svcctx"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow request lifecycle events",
	Long: `Print lifecycle events (results published, requests failed) as workers
and evaluators produce them. Requires events.backend: redis.`,
	RunE: withServices(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc := svcctx.ServicesFrom(ctx)
		cfg := svc.Config.Get()
		if cfg.Events.Backend != "redis" {
			output.Notice("events.backend is %q; only the redis backend can be followed", cfg.Events.Backend)
		}

		ch, err := events.Subscribe(ctx, svc.Redis, cfg.Events.Channel)
		if err != nil {
			return err
		}
		for ev := range ch {
			if err := output.Print(ev); err != nil {
				return err
			}
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
