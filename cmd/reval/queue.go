package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/smartexam/reval/internal/output"
	"github.com/smartexam/reval/internal/pipeline"
	"github.com/smartexam/reval/internal/queue"
	"github.com/smartexam/reval/internal/svcctx"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and maintain the job queues",
}

var (
	queueName   string
	queueStates []string
	queueLimit  int
)

// selectedQueues returns --queue or every pipeline queue.
func selectedQueues() ([]string, error) {
	if queueName == "" {
		return pipeline.Queues, nil
	}
	if !slices.Contains(pipeline.Queues, queueName) {
		return nil, fmt.Errorf("unknown queue %q (want one of %v)", queueName, pipeline.Queues)
	}
	return []string{queueName}, nil
}

func parseStates(names []string) ([]queue.State, error) {
	states := make([]queue.State, 0, len(names))
	for _, n := range names {
		st, err := queue.ParseState(n)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts per queue and state",
	RunE: withServices(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		names, err := selectedQueues()
		if err != nil {
			return err
		}
		stats := make(map[string]queue.Counts, len(names))
		for _, name := range names {
			c, err := svcctx.QueueFrom(ctx).Counts(ctx, name)
			if err != nil {
				return err
			}
			stats[name] = c
		}
		return output.Print(stats)
	}),
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs of one queue in one state",
	Long: `List jobs of a queue in a state, e.g. the failures with their errors:

  reval queue list --queue grading --state failed`,
	RunE: withServices(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if queueName == "" {
			return fmt.Errorf("--queue is required")
		}
		if _, err := selectedQueues(); err != nil {
			return err
		}
		states, err := parseStates(queueStates)
		if err != nil {
			return err
		}
		if len(states) != 1 {
			return fmt.Errorf("exactly one --state is required")
		}
		jobs, err := svcctx.QueueFrom(ctx).List(ctx, queueName, states[0], queueLimit)
		if err != nil {
			return err
		}
		return output.Print(jobs)
	}),
}

var queueCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove jobs from the queues",
	Long: `Remove jobs in the given states (default: every state) from one queue
(--queue) or all of them. Removing active jobs while workers run makes their
results unrecordable; stop the workers first.

Examples:
  reval queue clean --state completed --state failed
  reval queue clean --queue grading`,
	RunE: withServices(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		names, err := selectedQueues()
		if err != nil {
			return err
		}
		states, err := parseStates(queueStates)
		if err != nil {
			return err
		}
		removed := make(map[string]int, len(names))
		for _, name := range names {
			n, err := svcctx.QueueFrom(ctx).Clean(ctx, name, states...)
			if err != nil {
				return err
			}
			removed[name] = n
		}
		return output.Print(removed)
	}),
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Move failed jobs back to waiting",
	Long: `Requeue failed jobs. Workers decide again from the stored request
state, so a request that has since been graded is not graded twice.`,
	RunE: withServices(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		names, err := selectedQueues()
		if err != nil {
			return err
		}
		retried := make(map[string]int, len(names))
		for _, name := range names {
			n, err := svcctx.QueueFrom(ctx).RetryFailed(ctx, name)
			if err != nil {
				return err
			}
			retried[name] = n
		}
		return output.Print(retried)
	}),
}

func init() {
	for _, c := range []*cobra.Command{queueStatsCmd, queueListCmd, queueCleanCmd, queueRetryCmd} {
		c.Flags().StringVar(&queueName, "queue", "", "queue name (default: all pipeline queues)")
	}
	queueListCmd.Flags().StringSliceVar(&queueStates, "state", nil, "job state: waiting, active, completed, failed, delayed")
	queueListCmd.Flags().IntVar(&queueLimit, "limit", 20, "maximum jobs to list (0 for all)")
	queueCleanCmd.Flags().StringSliceVar(&queueStates, "state", nil, "job states to remove (default: all)")

	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueCleanCmd)
	queueCmd.AddCommand(queueRetryCmd)
	rootCmd.AddCommand(queueCmd)
}
