package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smartexam/reval/internal/home"
	"github.com/smartexam/reval/internal/output"
	"github.com/smartexam/reval/internal/redisdev"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Manage a local Redis container for development",
	Long: `Manage a Redis container for running the queues locally.

Data is persisted with the append-only file under ~/.reval/redis/.
Point redis.url at the printed URL (the default config already does).

Examples:
  reval redis start   # Create or start the container
  reval redis stop    # Stop the container (data preserved)
  reval redis status  # Check container status`,
}

var redisPort string

func getRedisManager(h *home.Dir) (*redisdev.Manager, error) {
	return redisdev.NewManager(redisdev.Config{
		HomePath: h.Path(),
		DataPath: h.RedisDataPath(),
		HostPort: redisPort,
	})
}

var redisStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Redis container",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		h, err := getHome()
		if err != nil {
			return err
		}
		mgr, err := getRedisManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		output.Notice("Starting Redis...")
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start Redis: %w", err)
		}
		output.Notice("Redis is running at %s", mgr.URL())
		return nil
	},
}

var redisStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the Redis container",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		h, err := getHome()
		if err != nil {
			return err
		}
		mgr, err := getRedisManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		if err := mgr.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop Redis: %w", err)
		}
		output.Notice("Redis stopped")
		return nil
	},
}

var redisRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the Redis container (data preserved)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		h, err := getHome()
		if err != nil {
			return err
		}
		mgr, err := getRedisManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		if err := mgr.Remove(ctx); err != nil {
			return err
		}
		output.Notice("Redis container removed, data kept in %s", h.RedisDataPath())
		return nil
	},
}

var redisStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show Redis container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		h, err := getHome()
		if err != nil {
			return err
		}
		mgr, err := getRedisManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		status, err := mgr.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}
		return output.Print(map[string]string{
			"container": mgr.ContainerName(),
			"status":    string(status),
			"url":       mgr.URL(),
		})
	},
}

var redisLogsTail string

var redisLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show Redis container logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		h, err := getHome()
		if err != nil {
			return err
		}
		mgr, err := getRedisManager(h)
		if err != nil {
			return err
		}
		defer mgr.Close()

		logs, err := mgr.Logs(ctx, redisLogsTail)
		if err != nil {
			return err
		}
		fmt.Print(logs)
		return nil
	},
}

func init() {
	redisCmd.PersistentFlags().StringVar(&redisPort, "port", redisdev.DefaultPort, "host port to bind")
	redisLogsCmd.Flags().StringVar(&redisLogsTail, "tail", "100", "number of lines to show")

	redisCmd.AddCommand(redisStartCmd)
	redisCmd.AddCommand(redisStopCmd)
	redisCmd.AddCommand(redisRemoveCmd)
	redisCmd.AddCommand(redisStatusCmd)
	redisCmd.AddCommand(redisLogsCmd)
	rootCmd.AddCommand(redisCmd)
}
