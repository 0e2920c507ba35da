package app

import (
	"errors"
	"fmt"

	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	lperrors "github.com/relicta-tech/launchpad/internal/errors"
)

// Validation messages returned verbatim to callers.
const (
	MsgIterationDeprecated   = "iteration is deprecated"
	MsgNoApproval            = "no approval information"
	MsgApprovalPending       = "approval is still pending"
	MsgApprovalRejected      = "approval was rejected"
	MsgApprovalForwarded     = "approval was forwarded and awaits another approver"
	MsgDeployConfigRequired  = "deployment configuration is required before publishing"
	MsgThirdPartyRequired    = "select at least one third-party account"
	MsgRollbackUnsupported   = "type not supported"
	MsgArtifactNotFound      = "artifact not found"
	MsgArtifactEmpty         = "artifact empty"
	MsgGatewayPublishBlocked = "gateway publishing is disabled in this deployment"
	MsgBehindTrunk           = "release branch is behind trunk"
	MsgBuildInFlight         = "build is queued but workflow state was not updated; do not resubmit"
)

// notFound maps repository sentinels to a not-found error and wraps anything
// else as internal.
func notFound(err error, op, message string) error {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrIterationNotFound),
		errors.Is(err, domain.ErrProcessNotFound),
		errors.Is(err, domain.ErrProjectNotFound),
		errors.Is(err, domain.ErrDomainNotFound),
		errors.Is(err, domain.ErrHistoryNotFound):
		return lperrors.NotFoundWrap(err, op, message)
	}
	return lperrors.InternalWrap(err, op, message)
}

// invalid builds a validation error with a formatted message.
func invalid(op, format string, args ...any) error {
	return lperrors.Validation(op, fmt.Sprintf(format, args...))
}
