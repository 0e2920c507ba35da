package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	lperrors "github.com/relicta-tech/launchpad/internal/errors"
)

func publishDevelopment(t *testing.T, h *harness) *domain.Task {
	t.Helper()
	out, err := h.publish.Publish(context.Background(), webInput(domain.NodeDevelopment))
	require.NoError(t, err)
	return out.Task
}

func TestTaskLifecycle_CompleteIsIdempotent(t *testing.T) {
	h := newHarness(t)
	task := publishDevelopment(t, h)
	in := CallbackInput{TaskID: task.ID, BuildID: "b-17", Result: ResultSuccess, HookStep: "deploy"}

	first, err := h.lifecycle.Complete(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.Equal(t, domain.StatusPublishSuccess, first.Status)

	second, err := h.lifecycle.Complete(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, domain.StatusPublishSuccess, second.Status)

	assert.Equal(t, 1, h.iterations.get(iterationID).DevCount)
	assert.Equal(t, "b-17", h.tasks.get(task.ID).BuildID)

	require.Len(t, h.notifier.notifications, 2)
	for _, n := range h.notifier.notifications {
		assert.Equal(t, ResultSuccess, n.Result)
		assert.Equal(t, "deploy", n.HookStep)
		assert.Equal(t, task.ID, n.Number)
		assert.Equal(t, int64(4242), n.QueueID)
		assert.Equal(t, "b-17", n.BuildID)
	}
}

func TestTaskLifecycle_CompleteResults(t *testing.T) {
	tests := []struct {
		result  string
		want    domain.TaskStatus
		applied bool
		counter int
	}{
		{ResultSuccess, domain.StatusPublishSuccess, true, 1},
		{ResultFailure, domain.StatusPublishFailed, true, 0},
		{"ABORTED", domain.StatusPublishing, false, 0},
		{"", domain.StatusPublishing, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.result, func(t *testing.T) {
			h := newHarness(t)
			task := publishDevelopment(t, h)

			out, err := h.lifecycle.Complete(context.Background(), CallbackInput{TaskID: task.ID, Result: tt.result})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Status)
			assert.Equal(t, tt.applied, out.Applied)
			assert.Equal(t, tt.counter, h.iterations.get(iterationID).DevCount)
			assert.Len(t, h.notifier.notifications, 1)
		})
	}
}

func TestTaskLifecycle_TerminalTaskAbsorbsReports(t *testing.T) {
	h := newHarness(t)
	task := publishDevelopment(t, h)

	_, err := h.lifecycle.Complete(context.Background(), CallbackInput{TaskID: task.ID, Result: ResultFailure})
	require.NoError(t, err)
	out, err := h.lifecycle.Complete(context.Background(), CallbackInput{TaskID: task.ID, Result: ResultSuccess})
	require.NoError(t, err)

	assert.False(t, out.Applied)
	assert.Equal(t, domain.StatusPublishFailed, h.tasks.get(task.ID).Status)
	assert.Zero(t, h.iterations.get(iterationID).DevCount)
}

func TestTaskLifecycle_CompleteUnknownTaskStillNotifies(t *testing.T) {
	h := newHarness(t)

	_, err := h.lifecycle.Complete(context.Background(), CallbackInput{ExternalTaskID: "missing", Result: ResultSuccess})

	require.Error(t, err)
	assert.True(t, lperrors.IsKind(err, lperrors.KindNotFound))
	require.Len(t, h.notifier.notifications, 1)
	n := h.notifier.notifications[0]
	assert.Equal(t, ResultFailure, n.Result)
	assert.Equal(t, "missing", n.ExternalTaskID)
	assert.Zero(t, n.Number)
}

func TestTaskLifecycle_NotificationFailureEscalated(t *testing.T) {
	h := newHarness(t)
	task := publishDevelopment(t, h)
	h.notifier.err = errors.New("503 from caller")

	out, err := h.lifecycle.Complete(context.Background(), CallbackInput{TaskID: task.ID, Result: ResultSuccess})

	require.Error(t, err)
	assert.True(t, lperrors.IsKind(err, lperrors.KindNotification))
	assert.True(t, out.Applied, "local update is kept")
	assert.Equal(t, domain.StatusPublishSuccess, h.tasks.get(task.ID).Status)
}

func TestTaskLifecycle_ProductionSuccessMarksNotMerged(t *testing.T) {
	h := newHarness(t)
	h.setIteration(t, iterationID, func(it *domain.Iteration) { it.CurrentNode = domain.NodeFix })

	out, err := h.publish.Publish(context.Background(), webInput(domain.NodeProduction))
	require.NoError(t, err)
	_, err = h.lifecycle.Complete(context.Background(), CallbackInput{TaskID: out.Task.ID, Result: ResultSuccess})
	require.NoError(t, err)

	it := h.iterations.get(iterationID)
	assert.Equal(t, domain.NodeProductionNotMerge, it.CurrentNode)
	assert.Equal(t, domain.NodeProductionNotMerge, it.SubNodes[domain.ProjectWeb])
	assert.Zero(t, it.FixCount)
}

func TestTaskLifecycle_ConcurrentCounterIncrements(t *testing.T) {
	h := newHarness(t)
	const n = 12

	tasks := make([]*domain.Task, n)
	for i := range tasks {
		tasks[i] = publishDevelopment(t, h)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		counters []int
	)
	for _, task := range tasks {
		wg.Add(1)
		go func(task *domain.Task) {
			defer wg.Done()
			c, err := h.tracker.OnTaskSucceeded(context.Background(), task)
			assert.NoError(t, err)
			mu.Lock()
			counters = append(counters, c)
			mu.Unlock()
		}(task)
	}
	wg.Wait()

	sort.Ints(counters)
	for i, c := range counters {
		assert.Equal(t, i+1, c)
	}
	assert.Equal(t, n, h.iterations.get(iterationID).DevCount)
}

func TestTaskLifecycle_GatewaySuccessAppliesRecordedArtifact(t *testing.T) {
	h := newHarness(t)
	task := publishGateway(t, h)

	html := []byte("<html><head></head><body>v2</body></html>")
	_, err := h.recorder.RecordArtifact(context.Background(), task.ID, html)
	require.NoError(t, err)

	_, err = h.lifecycle.Complete(context.Background(), CallbackInput{TaskID: task.ID, Result: ResultSuccess})
	require.NoError(t, err)

	assert.Equal(t, string(html), h.store.docs[task.ConfigStore.StoreCoordinates])
	assert.Equal(t, domain.StatusPublishSuccess, h.tasks.get(task.ID).Status)
}

func publishGateway(t *testing.T, h *harness) *domain.Task {
	t.Helper()
	in := webInput(domain.NodeProduction)
	in.ProjectID, in.IterationID, in.ProjectType = gatewayID, 20, domain.ProjectGateway
	in.DomainID = domainID

	out, err := h.publish.Publish(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, out.Task.ConfigStore)
	return out.Task
}

func TestTaskLifecycle_GatewayCallbackBeforeArtifact(t *testing.T) {
	h := newHarness(t)
	task := publishGateway(t, h)
	at := task.ConfigStore.StoreCoordinates
	h.store.docs[at] = "<html><body>live</body></html>"

	out, err := h.lifecycle.Complete(context.Background(), CallbackInput{TaskID: task.ID, Result: ResultSuccess})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, domain.StatusPublishSuccess, h.tasks.get(task.ID).Status)
	assert.Equal(t, 1, h.store.writes)
	assert.Equal(t, "<html><body>live</body></html>", h.store.docs[at])

	_, ok, err := h.store.LookupNamespace(context.Background(), domain.EnvProd, task.ConfigStore.Namespace)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTaskLifecycle_GatewayCallbackWithNothingToApply(t *testing.T) {
	h := newHarness(t)
	task := publishGateway(t, h)

	out, err := h.lifecycle.Complete(context.Background(), CallbackInput{TaskID: task.ID, Result: ResultSuccess})
	require.Error(t, err)
	assert.True(t, lperrors.IsKind(err, lperrors.KindDependency))
	assert.True(t, out.Applied)
	assert.Equal(t, domain.StatusPublishFailed, h.tasks.get(task.ID).Status)
	assert.Zero(t, h.store.writes)

	require.Len(t, h.notifier.notifications, 1)
	assert.Equal(t, ResultFailure, h.notifier.notifications[0].Result)
}

func TestTaskLifecycle_GatewayWithoutBindingFails(t *testing.T) {
	h := newHarness(t)
	task := domain.NewTask(gatewayID, 20, 0, domain.NodeProduction, domain.ProjectGateway, "release/2.0.0", "2.0.0", h.clock.Now())
	require.NoError(t, h.lifecycle.Create(context.Background(), task))

	applied, err := h.lifecycle.ApplyLegacyStatus(context.Background(), task.ID, domain.StatusPublishSuccess.Code(), "")
	assert.True(t, applied)
	assert.True(t, lperrors.IsKind(err, lperrors.KindDependency))
	assert.Equal(t, domain.StatusPublishFailed, h.tasks.get(task.ID).Status)
}

func TestTaskLifecycle_AttachQueueIDConflicts(t *testing.T) {
	h := newHarness(t)
	first := publishDevelopment(t, h)

	second := domain.NewTask(projectID, iterationID, 0, domain.NodeTesting, domain.ProjectWeb, "test/1.4.0", "1.4.0", h.clock.Now())
	require.NoError(t, h.lifecycle.Create(context.Background(), second))

	err := h.lifecycle.AttachQueueID(context.Background(), second, first.QueueID)
	assert.True(t, lperrors.IsKind(err, lperrors.KindConflict))
	assert.Zero(t, second.QueueID)

	err = h.lifecycle.AttachQueueID(context.Background(), first, 9000)
	assert.True(t, lperrors.IsKind(err, lperrors.KindConflict))
	assert.Equal(t, first.QueueID, h.tasks.get(first.ID).QueueID)
}

func TestTaskLifecycle_ApplyLegacyStatus(t *testing.T) {
	h := newHarness(t)
	task := publishDevelopment(t, h)

	applied, err := h.lifecycle.ApplyLegacyStatus(context.Background(), task.ID, 0, "")
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = h.lifecycle.ApplyLegacyStatus(context.Background(), task.ID, 2, "b-1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, h.iterations.get(iterationID).DevCount)
	assert.Empty(t, h.notifier.notifications)

	applied, err = h.lifecycle.ApplyLegacyStatus(context.Background(), task.ID, 3, "")
	require.NoError(t, err)
	assert.False(t, applied)

	_, err = h.lifecycle.ApplyLegacyStatus(context.Background(), task.ID, 9, "")
	assert.True(t, lperrors.IsKind(err, lperrors.KindValidation))
}
