package domain

import "errors"

// Domain errors for publish operations.
var (
	// ErrTaskNotFound indicates a task was not found.
	ErrTaskNotFound = errors.New("task not found")

	// ErrIterationNotFound indicates an iteration was not found.
	ErrIterationNotFound = errors.New("iteration not found")

	// ErrProcessNotFound indicates a process was not found.
	ErrProcessNotFound = errors.New("process not found")

	// ErrProjectNotFound indicates a project was not found.
	ErrProjectNotFound = errors.New("project not found")

	// ErrDomainNotFound indicates a config-store domain binding was not found.
	ErrDomainNotFound = errors.New("domain not found")

	// ErrHistoryNotFound indicates no deploy history matched.
	ErrHistoryNotFound = errors.New("deploy history not found")

	// ErrConcurrentUpdate indicates an optimistic write lost against a newer revision.
	ErrConcurrentUpdate = errors.New("aggregate was modified concurrently")

	// ErrQueueIDAssigned indicates the task already carries a correlation id.
	ErrQueueIDAssigned = errors.New("task already has a queue id")

	// ErrQueueIDInUse indicates the correlation id belongs to another task.
	ErrQueueIDInUse = errors.New("queue id is attached to another task")

	// ErrUnknownNode indicates an unrecognized workflow node name.
	ErrUnknownNode = errors.New("unknown workflow node")

	// ErrUnknownProjectType indicates an unrecognized project type.
	ErrUnknownProjectType = errors.New("unknown project type")

	// ErrTaskFinished indicates the task is already in a terminal state.
	ErrTaskFinished = errors.New("task already finished")
)
