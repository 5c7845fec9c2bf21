package main

import (
	"encoding/json"
	"fmt"
	"io"

	job "github.com/goliatone/go-job"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-shopsync/adapters/gojob"
)

func reconcileCmd(flags *globalFlags) *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass against the Admin API",
		Long: `Pull orders, products and customers for every syncable tenant, or for
one tenant with --tenant.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd, flags, gojob.ReconcileMessage(tenantID))
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "reconcile only this tenant id")
	return cmd
}

// replay only reaches entries dead-lettered by this process, since the
// queue is held in memory.
func replayCmd(flags *globalFlags) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay dead-lettered dispatches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd, flags, gojob.ReplayMessage(batch))
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 0, "entries to replay (0 uses resilience.replay_batch_size)")
	return cmd
}

func runJob(cmd *cobra.Command, flags *globalFlags, msg *job.ExecutionMessage) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, flags, false)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	result, err := s.runtime.Jobs.Run(ctx, msg)
	if err != nil {
		return err
	}
	return writeResult(cmd.OutOrStdout(), result)
}

func writeResult(w io.Writer, result gojob.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("shopsync: encode result: %w", err)
	}
	return nil
}
