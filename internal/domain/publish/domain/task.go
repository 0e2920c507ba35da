package domain

import (
	"fmt"
	"time"
)

// TaskID identifies a task. It doubles as the sequence number echoed to the
// caller system.
type TaskID int64

// TaskStatus is the publish status of a task.
type TaskStatus string

const (
	StatusUnpublished    TaskStatus = "unpublished"
	StatusPublishing     TaskStatus = "publishing"
	StatusPublishSuccess TaskStatus = "publish_success"
	StatusPublishFailed  TaskStatus = "publish_failed"
)

// IsTerminal reports whether no callback may change the status any more.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusPublishSuccess || s == StatusPublishFailed
}

// Code returns the numeric status used by the legacy status endpoint.
func (s TaskStatus) Code() int {
	switch s {
	case StatusPublishing:
		return 1
	case StatusPublishSuccess:
		return 2
	case StatusPublishFailed:
		return 3
	}
	return 0
}

// StatusFromCode parses a legacy numeric status. Zero means "no change".
func StatusFromCode(code int) (TaskStatus, error) {
	switch code {
	case 0:
		return StatusUnpublished, nil
	case 1:
		return StatusPublishing, nil
	case 2:
		return StatusPublishSuccess, nil
	case 3:
		return StatusPublishFailed, nil
	}
	return "", fmt.Errorf("unknown task status code %d", code)
}

// StatusFromResult maps a builder result code to a task status.
func StatusFromResult(result string) TaskStatus {
	switch result {
	case "SUCCESS":
		return StatusPublishSuccess
	case "FAILURE":
		return StatusPublishFailed
	}
	return StatusPublishing
}

// ConfigStoreBinding is the config-store coordinate set persisted on a gateway
// task so the built artifact can be applied when the build succeeds.
type ConfigStoreBinding struct {
	StoreCoordinates
	NodeID int `json:"nodeId"`
	// Namespace is the tenant name the Tenant id was resolved from.
	Namespace string `json:"namespace,omitempty"`
}

// Task is one release attempt. It is never deleted.
type Task struct {
	ID          TaskID
	ProjectID   int64
	IterationID int64
	ProcessID   int64
	Environment Node
	ProjectType ProjectType
	Branch      string
	Version     string
	// QueueID correlates the task with the builder queue entry.
	QueueID int64
	// ExternalTaskID is issued by the caller system for external publishes.
	ExternalTaskID string
	BuildID        string
	Status         TaskStatus
	ConfigStore    *ConfigStoreBinding
	DomainID       int64
	CreatorID      string
	CreatorName    string
	Description    string
	Extra          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewTask creates a task in the publishing state.
func NewTask(projectID, iterationID, processID int64, env Node, pt ProjectType, branch, version string, now time.Time) *Task {
	return &Task{
		ProjectID:   projectID,
		IterationID: iterationID,
		ProcessID:   processID,
		Environment: env,
		ProjectType: pt,
		Branch:      branch,
		Version:     version,
		Status:      StatusPublishing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsGateway reports whether success re-applies a config-store payload.
func (t *Task) IsGateway() bool {
	return t.ProjectType == ProjectGateway
}
