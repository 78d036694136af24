package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/social-content/pkg/socialcontent/sweep"
)

func newSweepCmd(opts *rootOptions) *cobra.Command {
	var (
		dryRun bool
		apply  bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete attachments and files whose purge grace period has expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !apply && !dryRun {
				dryRun = true
			}

			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			rt, err := cfg.Build(cmd.Context(), logger)
			if err != nil {
				return fmt.Errorf("failed to build service: %w", err)
			}
			defer rt.Close()

			result, err := rt.Sweeper.Run(cmd.Context(), apply)
			if err != nil {
				return err
			}
			return writeSweepResult(cmd.OutOrStdout(), result, opts.jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be reclaimed without deleting")
	cmd.Flags().BoolVar(&apply, "apply", false, "delete expired attachments and files")
	cmd.MarkFlagsMutuallyExclusive("dry-run", "apply")
	return cmd
}

func writeSweepResult(w io.Writer, result sweep.Result, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	mode := "dry run"
	if !result.DryRun {
		mode = "applied"
	}
	_, err := fmt.Fprintf(w, "%s: attachments=%d candidates=%d deleted=%d failed=%d skipped=%d reclaimed_bytes=%d\n",
		mode, result.Attachments, result.Candidates, result.Deleted, result.Failed, result.Skipped, result.ReclaimedBytes)
	return err
}

// runSweepLoop applies the sweep every interval until ctx is done.
func runSweepLoop(ctx context.Context, sweeper *sweep.Sweeper, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := sweeper.Run(ctx, true)
			if err != nil {
				logger.Error("scheduled sweep failed", "error", err)
				continue
			}
			logger.Info("scheduled sweep finished",
				"attachments", result.Attachments,
				"deleted", result.Deleted,
				"failed", result.Failed,
				"reclaimed_bytes", result.ReclaimedBytes)
		}
	}
}
