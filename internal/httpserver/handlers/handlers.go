package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/relicta-tech/launchpad/internal/domain/publish/app"
	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	lperrors "github.com/relicta-tech/launchpad/internal/errors"
	"github.com/relicta-tech/launchpad/internal/httpserver/dto"
	"github.com/relicta-tech/launchpad/internal/httpserver/middleware"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// maxArtifactBytes bounds uploaded artifact documents.
const maxArtifactBytes = 16 << 20

// Publisher runs publishes.
type Publisher interface {
	PreCheck(ctx context.Context, in app.PublishInput) (*app.PreCheckOutput, error)
	Publish(ctx context.Context, in app.PublishInput) (*app.PublishOutput, error)
	PublishExternal(ctx context.Context, in app.ExternalPublishInput) (*app.PublishOutput, error)
}

// Lifecycle applies build status reports.
type Lifecycle interface {
	Complete(ctx context.Context, in app.CallbackInput) (*app.CallbackOutput, error)
	ApplyLegacyStatus(ctx context.Context, id domain.TaskID, code int, buildID string) (bool, error)
}

// Rollbacker restores production artifacts.
type Rollbacker interface {
	Rollback(ctx context.Context, in app.RollbackInput) (*app.RollbackOutput, error)
	Diff(ctx context.Context, in app.DiffInput) (*app.DiffOutput, error)
}

// Querier answers task queries.
type Querier interface {
	Detail(ctx context.Context, id domain.TaskID) (*app.TaskDetail, error)
	ExtraByExternalID(ctx context.Context, externalID string, withModules bool) (*app.TaskExtra, error)
}

// ArtifactRecorder stores deployed documents.
type ArtifactRecorder interface {
	RecordArtifact(ctx context.Context, id domain.TaskID, body []byte) (*domain.DeployHistory, error)
}

// Handlers serves the publish API.
type Handlers struct {
	publisher Publisher
	lifecycle Lifecycle
	rollback  Rollbacker
	query     Querier
	artifacts ArtifactRecorder
	version   string
}

// Deps are the services behind the API.
type Deps struct {
	Publisher Publisher
	Lifecycle Lifecycle
	Rollback  Rollbacker
	Query     Querier
	Artifacts ArtifactRecorder
	Version   string
}

// New creates the handlers.
func New(deps Deps) *Handlers {
	return &Handlers{
		publisher: deps.Publisher,
		lifecycle: deps.Lifecycle,
		rollback:  deps.Rollback,
		query:     deps.Query,
		artifacts: deps.Artifacts,
		version:   deps.Version,
	}
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, message, code string, details any) {
	respondJSON(w, status, dto.ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// respondFailure maps an application error to its status code. Validation
// messages reach the caller verbatim.
func respondFailure(w http.ResponseWriter, err error) {
	kind := lperrors.GetKind(err)

	var details any
	var e *lperrors.Error
	if errors.As(err, &e) && len(e.Details) > 0 {
		details = e.Details
	}
	respondError(w, kind.HTTPStatus(), lperrors.Message(err), kind.String(), details)
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body", lperrors.KindValidation.String(), err.Error())
		return false
	}
	return true
}

// taskIDParam parses the {id} path parameter.
func taskIDParam(w http.ResponseWriter, r *http.Request) (domain.TaskID, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid task id", lperrors.KindValidation.String(), nil)
		return 0, false
	}
	return domain.TaskID(id), true
}

// operator converts the authenticated operator to an application user.
func operator(r *http.Request) app.User {
	op := middleware.GetOperator(r)
	return app.User{ID: op.ID, Name: op.Name, Email: op.Email}
}
