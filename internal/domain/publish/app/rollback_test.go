package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	lperrors "github.com/relicta-tech/launchpad/internal/errors"
)

// recordProduction stores an artifact for a production task of the given
// project and version.
func recordProduction(t *testing.T, h *harness, pid int64, pt domain.ProjectType, version string, body []byte) *domain.DeployHistory {
	t.Helper()
	ctx := context.Background()
	task := domain.NewTask(pid, 0, 0, domain.NodeProduction, pt, "release/"+version, version, h.clock.now)
	task.DomainID = domainID
	require.NoError(t, h.tasks.Create(ctx, task))
	row, err := h.recorder.RecordArtifact(ctx, task.ID, body)
	require.NoError(t, err)
	return row
}

func TestRollbackService_GatewayRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	original := []byte("<html><head><script>window.env={\"a\":1}</script></head><body>é v2.0.0</body></html>")
	recordProduction(t, h, gatewayID, domain.ProjectGateway, "2.0.0", original)

	target, err := h.packager.ResolveStore(ctx, domain.ProjectGateway, domainID, 1, domain.NodeProduction)
	require.NoError(t, err)
	at := target.Binding.StoreCoordinates
	h.store.docs[at] = "<html>v2.1.0</html>"
	tasksBefore := len(h.tasks.tasks)
	rowsBefore := len(h.history.rows)

	out, err := h.rollback.Rollback(ctx, RollbackInput{
		ProjectID:       gatewayID,
		ProjectType:     domain.ProjectGateway,
		RollbackVersion: "2.0.0",
		DomainID:        domainID,
	})
	require.NoError(t, err)

	assert.Equal(t, at, out.Coordinates)
	assert.Equal(t, original, []byte(h.store.docs[at]))
	assert.Len(t, h.tasks.tasks, tasksBefore, "rollback creates no task")
	assert.Len(t, h.history.rows, rowsBefore, "rollback creates no history")
}

func TestRollbackService_WebUsesProductionSettings(t *testing.T) {
	h := newHarness(t)
	body := []byte("<html>portal 1.3.0</html>")
	recordProduction(t, h, projectID, domain.ProjectWeb, "1.3.0", body)

	out, err := h.rollback.Rollback(context.Background(), RollbackInput{
		ProjectID:       projectID,
		ProjectType:     domain.ProjectWeb,
		RollbackVersion: "1.3.0",
	})
	require.NoError(t, err)

	want := domain.StoreCoordinates{URL: "http://store.test", Group: "WEB", Tenant: "prod-tenant", DataID: "portal.html"}
	assert.Equal(t, want, out.Coordinates)
	assert.Equal(t, string(body), h.store.docs[want])
}

func TestRollbackService_UnsupportedTypeRejectedBeforeLookup(t *testing.T) {
	h := newHarness(t)

	_, err := h.rollback.Rollback(context.Background(), RollbackInput{
		ProjectID:       404,
		ProjectType:     domain.ProjectIOS,
		RollbackVersion: "1.0.0",
	})

	require.Error(t, err)
	assert.True(t, lperrors.IsKind(err, lperrors.KindValidation))
	assert.Equal(t, MsgRollbackUnsupported, lperrors.Message(err))
}

func TestRollbackService_MissingArtifact(t *testing.T) {
	h := newHarness(t)

	_, err := h.rollback.Rollback(context.Background(), RollbackInput{
		ProjectID:       projectID,
		ProjectType:     domain.ProjectWeb,
		RollbackVersion: "0.9.0",
	})

	require.Error(t, err)
	assert.True(t, lperrors.IsKind(err, lperrors.KindNotFound))
	assert.Equal(t, MsgArtifactNotFound, lperrors.Message(err))
	assert.Zero(t, h.store.writes)
}

func TestRollbackService_EmptyArtifact(t *testing.T) {
	h := newHarness(t)
	row := recordProduction(t, h, projectID, domain.ProjectWeb, "1.3.0", []byte("x"))
	h.artifacts.objects[row.ArtifactURL] = nil

	_, err := h.rollback.Rollback(context.Background(), RollbackInput{
		ProjectID:       projectID,
		ProjectType:     domain.ProjectWeb,
		RollbackVersion: "1.3.0",
	})

	require.Error(t, err)
	assert.Equal(t, MsgArtifactEmpty, lperrors.Message(err))
	assert.Zero(t, h.store.writes)
}

func TestRollbackService_DiffWithOnlyRollbackRow(t *testing.T) {
	h := newHarness(t)
	row := recordProduction(t, h, projectID, domain.ProjectWeb, "1.3.0", []byte("<html>1.3.0</html>"))

	out, err := h.rollback.Diff(context.Background(), DiffInput{
		ProjectID:       projectID,
		ProjectType:     domain.ProjectWeb,
		OnlineVersion:   "1.4.0",
		RollbackVersion: "1.3.0",
	})

	require.NoError(t, err)
	assert.Nil(t, out.Online)
	require.NotNil(t, out.Rollback)
	assert.Equal(t, row.ID, out.Rollback.ID)
	assert.Zero(t, h.store.writes)
}
