package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/calebmorris/stockpilot/internal/prediction"
	"github.com/calebmorris/stockpilot/pkg/config"
	"github.com/calebmorris/stockpilot/pkg/logger"
)

// SnapshotJob captures analyst and consensus snapshots for every tracked
// ticker once a day.
type SnapshotJob struct {
	snapshots *prediction.SnapshotService
	config    *config.Config
	logger    *logger.Logger
}

// NewSnapshotJob creates a new snapshot job
func NewSnapshotJob(svc *prediction.SnapshotService, cfg *config.Config, log *logger.Logger) *SnapshotJob {
	return &SnapshotJob{
		snapshots: svc,
		config:    cfg,
		logger:    log,
	}
}

// Name returns the job name
func (j *SnapshotJob) Name() string {
	return "prediction_snapshot"
}

// Schedule returns the cron schedule
func (j *SnapshotJob) Schedule() string {
	return j.config.Prediction.SnapshotSchedule
}

// Run executes the daily snapshot
func (j *SnapshotJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled prediction snapshot")

	result, err := j.snapshots.RunDailySnapshot(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("daily snapshot: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"tracked": result.Tracked,
		"ok":      result.OK,
		"failed":  result.Failed,
	}).Info("Scheduled prediction snapshot completed")
	return nil
}

// NightlyPipelineJob runs the full snapshot, evaluation and score
// recomputation sequence.
type NightlyPipelineJob struct {
	snapshots *prediction.SnapshotService
	config    *config.Config
	logger    *logger.Logger
}

// NewNightlyPipelineJob creates a new nightly pipeline job
func NewNightlyPipelineJob(svc *prediction.SnapshotService, cfg *config.Config, log *logger.Logger) *NightlyPipelineJob {
	return &NightlyPipelineJob{
		snapshots: svc,
		config:    cfg,
		logger:    log,
	}
}

// Name returns the job name
func (j *NightlyPipelineJob) Name() string {
	return "nightly_pipeline"
}

// Schedule returns the cron schedule
func (j *NightlyPipelineJob) Schedule() string {
	return j.config.Prediction.PipelineSchedule
}

// Run executes the nightly pipeline
func (j *NightlyPipelineJob) Run(ctx context.Context) error {
	j.logger.Info("Starting nightly prediction pipeline")

	result, err := j.snapshots.RunNightlyPipeline(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("nightly pipeline: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"snapshot_ok":     result.Snapshot.OK,
		"snapshot_failed": result.Snapshot.Failed,
		"resolved":        result.Evaluate.Resolved,
		"unresolvable":    result.Evaluate.Unresolvable,
		"scores_written":  result.Recompute.ScoresWritten,
	}).Info("Nightly prediction pipeline completed")
	return nil
}
