// Package dto provides data transfer objects for the publish API.
package dto

import (
	"time"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
)

// ErrorResponse is an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// TaskDTO is the API representation of a task.
type TaskDTO struct {
	ID             int64     `json:"id"`
	ProjectID      int64     `json:"projectId"`
	IterationID    int64     `json:"iterationId,omitempty"`
	ProcessID      int64     `json:"processId,omitempty"`
	Environment    string    `json:"environment"`
	ProjectType    string    `json:"projectType"`
	Branch         string    `json:"branch"`
	Version        string    `json:"version"`
	QueueID        int64     `json:"queueId"`
	ExternalTaskID string    `json:"externalTaskId,omitempty"`
	BuildID        string    `json:"buildId,omitempty"`
	Status         string    `json:"status"`
	StatusCode     int       `json:"statusCode"`
	DomainID       int64     `json:"domainId,omitempty"`
	CreatorName    string    `json:"creatorName,omitempty"`
	Description    string    `json:"desc,omitempty"`
	Job            string    `json:"job,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewTaskDTO maps a task.
func NewTaskDTO(t *domain.Task) *TaskDTO {
	if t == nil {
		return nil
	}
	return &TaskDTO{
		ID:             int64(t.ID),
		ProjectID:      t.ProjectID,
		IterationID:    t.IterationID,
		ProcessID:      t.ProcessID,
		Environment:    string(t.Environment),
		ProjectType:    string(t.ProjectType),
		Branch:         t.Branch,
		Version:        t.Version,
		QueueID:        t.QueueID,
		ExternalTaskID: t.ExternalTaskID,
		BuildID:        t.BuildID,
		Status:         string(t.Status),
		StatusCode:     t.Status.Code(),
		DomainID:       t.DomainID,
		CreatorName:    t.CreatorName,
		Description:    t.Description,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

// PublishResponse answers publish requests.
type PublishResponse struct {
	Task       *TaskDTO `json:"task,omitempty"`
	QueueID    int64    `json:"queueId"`
	Advisories []string `json:"advisories,omitempty"`
}

// PreCheckResponse answers publish pre-checks.
type PreCheckResponse struct {
	OK         bool     `json:"ok"`
	Advisories []string `json:"advisories"`
}

// CallbackRequest is the builder's completion report. TaskID carries the
// caller-issued id; Number carries the task id.
type CallbackRequest struct {
	Result   string `json:"result"`
	HookStep string `json:"hookStep"`
	TaskID   string `json:"taskId"`
	BuildID  string `json:"buildId"`
	Number   int64  `json:"number"`
}

// CallbackResponse reports what a completion report changed.
type CallbackResponse struct {
	Applied      bool                    `json:"applied"`
	Status       string                  `json:"status,omitempty"`
	Notification ports.BuildNotification `json:"notification"`
}

// LegacyStatusRequest is a numeric status update.
type LegacyStatusRequest struct {
	Status  int    `json:"status"`
	BuildID string `json:"buildId"`
}

// StatusResponse reports whether a status update was applied.
type StatusResponse struct {
	Applied bool `json:"applied"`
}

// HistoryDTO is the API representation of a deploy history row.
type HistoryDTO struct {
	ID           int64                `json:"id"`
	ProjectID    int64                `json:"projectId"`
	ProjectType  string               `json:"projectType"`
	TaskID       int64                `json:"taskId"`
	IterationID  int64                `json:"iterationId,omitempty"`
	Version      string               `json:"version"`
	Environment  string               `json:"environment"`
	ArtifactURL  string               `json:"artifactUrl"`
	MicroModules []domain.MicroModule `json:"microModules,omitempty"`
	DomainID     int64                `json:"domainId,omitempty"`
	CreatedAt    time.Time            `json:"createdAt"`
}

// NewHistoryDTO maps a history row; nil stays nil.
func NewHistoryDTO(h *domain.DeployHistory) *HistoryDTO {
	if h == nil {
		return nil
	}
	return &HistoryDTO{
		ID:           h.ID,
		ProjectID:    h.ProjectID,
		ProjectType:  string(h.ProjectType),
		TaskID:       int64(h.TaskID),
		IterationID:  h.IterationID,
		Version:      h.Version,
		Environment:  string(h.Environment),
		ArtifactURL:  h.ArtifactURL,
		MicroModules: h.MicroModules,
		DomainID:     h.DomainID,
		CreatedAt:    h.CreatedAt,
	}
}

// RollbackResponse describes a completed rollback.
type RollbackResponse struct {
	History *HistoryDTO             `json:"history"`
	Target  domain.StoreCoordinates `json:"target"`
	Bytes   int                     `json:"bytes"`
}

// DiffResponse holds both history rows; either may be null.
type DiffResponse struct {
	Online   *HistoryDTO `json:"online"`
	Rollback *HistoryDTO `json:"rollback"`
}
