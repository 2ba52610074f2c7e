package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperr "github.com/agrobridge/backend/internal/pkg/errors"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

// RespondDomainError maps the service error taxonomy onto HTTP statuses.
func RespondDomainError(c *gin.Context, err error) {
	var (
		nfErr   *apperr.NotFoundError
		oooErr  *apperr.OutOfOrderError
		immErr  *apperr.ImmutableStageError
		permErr *apperr.InsufficientPermissionsError
		inelErr *apperr.IneligibleBatchError
		dupErr  *apperr.DuplicateCertificateError
		seErr   *apperr.StageAlreadyExistsError
		termErr *apperr.StageTerminallyRejectedError
		incErr  *apperr.IncompleteLifecycleError
	)
	switch {
	case errors.As(err, &nfErr):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.As(err, &oooErr):
		c.JSON(http.StatusConflict, ErrorEnvelope{Error: APIError{
			Message: err.Error(),
			Code:    "out_of_order",
			Details: gin.H{"requested": oooErr.Requested, "expected": oooErr.Expected},
		}})
	case errors.As(err, &immErr):
		c.JSON(http.StatusConflict, ErrorEnvelope{Error: APIError{
			Message: err.Error(),
			Code:    "stage_anchored",
			Details: gin.H{"anchor_ref": immErr.AnchorRef},
		}})
	case errors.As(err, &seErr):
		c.JSON(http.StatusConflict, ErrorEnvelope{Error: APIError{
			Message: err.Error(),
			Code:    "stage_exists",
			Details: gin.H{"existing_id": seErr.ExistingID},
		}})
	case errors.As(err, &termErr):
		c.JSON(http.StatusConflict, ErrorEnvelope{Error: APIError{
			Message: err.Error(),
			Code:    "stage_terminally_rejected",
			Details: gin.H{"stage_type": termErr.StageType},
		}})
	case errors.As(err, &dupErr):
		RespondError(c, http.StatusConflict, "certificate_exists", err)
	case errors.As(err, &inelErr):
		c.JSON(http.StatusUnprocessableEntity, ErrorEnvelope{Error: APIError{
			Message: err.Error(),
			Code:    "batch_ineligible",
			Details: gin.H{"missing_stages": inelErr.MissingStages, "cold_chain": inelErr.ColdChain},
		}})
	case errors.As(err, &incErr):
		c.JSON(http.StatusUnprocessableEntity, ErrorEnvelope{Error: APIError{
			Message: err.Error(),
			Code:    "lifecycle_incomplete",
			Details: gin.H{"incomplete": incErr.Incomplete},
		}})
	case errors.As(err, &permErr):
		RespondError(c, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, apperr.ErrUnauthorized):
		RespondError(c, http.StatusUnauthorized, "unauthorized", err)
	case errors.Is(err, apperr.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, apperr.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
