package domain

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// TaskContext is the context passed to the task state machine.
type TaskContext struct {
	Task *Task
}

// Event names for the task state machine.
const (
	EventBuildProgress  statekit.EventType = "BUILD_PROGRESS"
	EventBuildSucceeded statekit.EventType = "BUILD_SUCCEEDED"
	EventBuildFailed    statekit.EventType = "BUILD_FAILED"
)

// State IDs for the task state machine.
var (
	StateIDPublishing     statekit.StateID = statekit.StateID(StatusPublishing)
	StateIDPublishSuccess statekit.StateID = statekit.StateID(StatusPublishSuccess)
	StateIDPublishFailed  statekit.StateID = statekit.StateID(StatusPublishFailed)
)

// newTaskInterpreter returns a fresh interpreter over the shared task machine.
var newTaskInterpreter func() *statekit.Interpreter[TaskContext]

func init() {
	m, err := statekit.NewMachine[TaskContext]("publish-task").
		WithInitial(StateIDPublishing).
		State(StateIDPublishing).
		On(EventBuildProgress).Target(StateIDPublishing).
		On(EventBuildSucceeded).Target(StateIDPublishSuccess).
		On(EventBuildFailed).Target(StateIDPublishFailed).
		Done().
		State(StateIDPublishSuccess).
		Final().
		Done().
		State(StateIDPublishFailed).
		Final().
		Done().
		Build()
	if err != nil {
		panic(fmt.Sprintf("building task state machine: %v", err))
	}
	newTaskInterpreter = func() *statekit.Interpreter[TaskContext] {
		return statekit.NewInterpreter(m)
	}
}

// EventForStatus returns the machine event that drives a task to status.
func EventForStatus(status TaskStatus) statekit.EventType {
	switch status {
	case StatusPublishSuccess:
		return EventBuildSucceeded
	case StatusPublishFailed:
		return EventBuildFailed
	}
	return EventBuildProgress
}

// NextStatus runs event against a task in status from and returns the
// resulting status. Terminal statuses absorb every event; the second result
// reports whether the status changed.
func NextStatus(from TaskStatus, event statekit.EventType) (TaskStatus, bool) {
	if from.IsTerminal() {
		return from, false
	}
	interp := newTaskInterpreter()
	interp.Start()
	interp.Send(statekit.Event{Type: event})
	to := TaskStatus(interp.State().Value)
	return to, to != from
}
