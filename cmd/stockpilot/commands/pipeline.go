package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// pipelineCmd represents the pipeline command
var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run pipeline stages directly",
	Long: `Runs prediction pipeline stages as one-shot commands.

Subcommands:
  run       - full pipeline (snapshot + evaluate + recompute)
  snapshot  - capture snapshots for all tracked tickers
  evaluate  - resolve matured predictions
  recompute - rebuild analyst scores from resolved outcomes

Example:
  go run ./cmd/stockpilot pipeline run
  go run ./cmd/stockpilot pipeline snapshot --symbol AAPL`,
}

var (
	snapshotSymbol string

	pipelineRunCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline",
		RunE:  runFullPipeline,
	}

	pipelineSnapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Capture snapshots for tracked tickers",
		RunE:  runPipelineSnapshot,
	}

	pipelineEvaluateCmd = &cobra.Command{
		Use:   "evaluate",
		Short: "Resolve matured predictions",
		RunE:  runPipelineEvaluate,
	}

	pipelineRecomputeCmd = &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild analyst scores",
		RunE:  runPipelineRecompute,
	}
)

func init() {
	rootCmd.AddCommand(pipelineCmd)
	pipelineCmd.AddCommand(pipelineRunCmd)
	pipelineCmd.AddCommand(pipelineSnapshotCmd)
	pipelineCmd.AddCommand(pipelineEvaluateCmd)
	pipelineCmd.AddCommand(pipelineRecomputeCmd)

	pipelineSnapshotCmd.Flags().StringVar(&snapshotSymbol, "symbol", "", "capture a single ticker instead of all tracked tickers")
}

func runFullPipeline(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := context.Background()
	start := time.Now()

	result, err := svc.snapshot.RunNightlyPipeline(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	fmt.Printf("Pipeline completed in %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("  Snapshot:  %d tracked, %d ok, %d failed\n",
		result.Snapshot.Tracked, result.Snapshot.OK, result.Snapshot.Failed)
	fmt.Printf("  Evaluated: %d resolved, %d unresolvable\n",
		result.Evaluate.Resolved, result.Evaluate.Unresolvable)
	fmt.Printf("  Scores:    %d written from %d resolved predictions\n",
		result.Recompute.ScoresWritten, result.Recompute.SourceRows)
	return nil
}

func runPipelineSnapshot(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	if snapshotSymbol != "" {
		result := svc.snapshot.RunSnapshotForSymbol(ctx, snapshotSymbol, now)
		fmt.Printf("Snapshot for %s: %d ok, %d failed\n", snapshotSymbol, result.OK, result.Failed)
		return nil
	}

	result, err := svc.snapshot.RunDailySnapshot(ctx, now)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	fmt.Printf("Snapshot: %d tracked, %d ok, %d failed\n", result.Tracked, result.OK, result.Failed)
	return nil
}

func runPipelineEvaluate(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.snapshot.EvaluateExpiredPredictions(context.Background(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	fmt.Printf("Evaluated: %d resolved, %d unresolvable\n", result.Resolved, result.Unresolvable)
	return nil
}

func runPipelineRecompute(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.snapshot.RecomputeScores(context.Background())
	if err != nil {
		return fmt.Errorf("recompute: %w", err)
	}

	fmt.Printf("Scores: %d written from %d resolved predictions\n", result.ScoresWritten, result.SourceRows)
	return nil
}
