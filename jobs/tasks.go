package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/rolegate/rolegate/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTokensPruneExpired deletes persisted API tokens past their expiry.
	TaskTokensPruneExpired = "tokens:prune_expired"
)

// PruneExpiredPayload is the body of a prune task. Source records who enqueued it.
type PruneExpiredPayload struct {
	Source string `json:"source"`
}

// NewPruneExpiredTask builds a prune task.
func NewPruneExpiredTask(source string) (*asynq.Task, error) {
	body, err := json.Marshal(PruneExpiredPayload{Source: source})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTokensPruneExpired, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// TokenPruner removes expired persisted tokens.
type TokenPruner interface {
	PruneExpired(ctx context.Context) (int64, error)
}

// PruneExpiredJob handles TaskTokensPruneExpired.
type PruneExpiredJob struct {
	tokens  TokenPruner
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewPruneExpiredJob wires the prune handler. metrics may be nil.
func NewPruneExpiredJob(tokens TokenPruner, logger *slog.Logger, metrics *jobmetrics.Metrics) *PruneExpiredJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PruneExpiredJob{tokens: tokens, logger: logger, metrics: metrics}
}

// Handle runs one prune pass.
func (j *PruneExpiredJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload PruneExpiredPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track(TaskTokensPruneExpired)
	removed, err := j.tokens.PruneExpired(ctx)
	if err != nil {
		j.logger.Error("prune expired tokens", slog.String("source", payload.Source), slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger.Info("pruned expired tokens", slog.String("source", payload.Source), slog.Int64("removed", removed))
	return tracker.End(nil)
}
