package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-lms/odyssey-lms/internal/jobs"
	"github.com/odyssey-lms/odyssey-lms/internal/rbac"
)

// SnapshotWarmer computes a permission snapshot through the cache.
type SnapshotWarmer interface {
	Snapshot(ctx context.Context, userID string) (*rbac.PermissionSnapshot, error)
	Wait()
}

// PermissionWarmJob refills the permission cache after membership changes.
type PermissionWarmJob struct {
	Permissions SnapshotWarmer
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewPermissionWarmJob wires dependencies for the warm handler.
func NewPermissionWarmJob(permissions SnapshotWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *PermissionWarmJob {
	return &PermissionWarmJob{Permissions: permissions, Logger: logger, Metrics: metrics}
}

// Handle processes TaskPermissionWarm tasks.
func (j *PermissionWarmJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Permissions == nil {
		return errors.New("permission warm: handler not configured")
	}
	tracker := j.Metrics.Track(TaskPermissionWarm)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var payload PermissionWarmPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("permission warm: decode payload: %w", asynq.SkipRetry)
	}
	payload.UserID = strings.TrimSpace(payload.UserID)
	if payload.UserID == "" {
		return fmt.Errorf("permission warm: %w: %w", errEmptyUserID, asynq.SkipRetry)
	}

	logger := j.logger().With(slog.String("user_id", payload.UserID))
	snap, err := j.Permissions.Snapshot(ctx, payload.UserID)
	if err != nil {
		logger.Error("warm permission snapshot", slog.Any("error", err))
		return err
	}
	// Snapshot populates the cache in the background; finish before acking.
	j.Permissions.Wait()
	logger.Debug("warmed permission snapshot",
		slog.Int64("version", snap.Version),
		slog.Int("departments", len(snap.DepartmentRights)))
	return nil
}

func (j *PermissionWarmJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
