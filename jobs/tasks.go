package jobs

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAuthz carries permission cache maintenance and is weighted above default.
	QueueAuthz = "authz"
	// TaskPermissionWarm recomputes and caches a user's permission snapshot.
	TaskPermissionWarm = "authz:permissions:warm"
)

var errEmptyUserID = errors.New("jobs: user id is required")

// PermissionWarmPayload names the user whose snapshot should be warmed.
type PermissionWarmPayload struct {
	UserID string `json:"user_id"`
}

// NewPermissionWarmTask constructs an Asynq task.
func NewPermissionWarmTask(userID string) (*asynq.Task, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errEmptyUserID
	}
	data, err := json.Marshal(PermissionWarmPayload{UserID: userID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionWarm, data), nil
}
