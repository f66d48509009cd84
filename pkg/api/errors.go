package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proxima-health/oracle/pkg/deepdive"
	"github.com/proxima-health/oracle/pkg/email"
	"github.com/proxima-health/oracle/pkg/followup"
	"github.com/proxima-health/oracle/pkg/httpx"
	"github.com/proxima-health/oracle/pkg/photo"
	"github.com/proxima-health/oracle/pkg/quickscan"
	"github.com/proxima-health/oracle/pkg/reports"
	"github.com/proxima-health/oracle/pkg/store"
	"github.com/proxima-health/oracle/pkg/tracking"
)

// validationErrs get 422: the request was readable but semantically
// unusable.
var validationErrs = []error{
	quickscan.ErrNoBodyParts,
	deepdive.ErrNoBodyParts,
	deepdive.ErrEmptyAnswer,
	followup.ErrInvalidAssessmentID,
	followup.ErrNoResponses,
	followup.ErrUnknownSourceType,
	email.ErrNoRecipient,
	email.ErrAttachmentTooLarge,
	tracking.ErrNoMetricName,
	reports.ErrInvalidRating,
	reports.ErrUnknownSpecialty,
}

// stateErrs get 409: the resource exists but cannot take this
// transition.
var stateErrs = []error{
	deepdive.ErrSessionNotActive,
	deepdive.ErrNotAnalyzed,
	deepdive.ErrAskMoreClosed,
	deepdive.ErrQuestionLimit,
	tracking.ErrSuggestionActioned,
}

var ownershipErrs = []error{
	email.ErrNotOwner,
	tracking.ErrNotOwner,
	reports.ErrNotOwner,
}

// fail maps a domain error to its HTTP status and writes the error
// envelope. Unclassified errors become a 500 whose detail is only
// exposed in debug mode.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case matchesAny(err, validationErrs):
		status = http.StatusUnprocessableEntity
	case matchesAny(err, ownershipErrs):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate):
		status = http.StatusConflict
	case matchesAny(err, stateErrs):
		status = http.StatusConflict
	case errors.Is(err, photo.ErrInappropriatePhoto):
		status = http.StatusBadRequest
	case matchesAny(err, []error{photo.ErrNoPhotos, photo.ErrNoAnalyzablePhotos, photo.ErrPhotoExpired}):
		status = http.StatusUnprocessableEntity
	case httpx.IsRateLimit(err):
		status = http.StatusTooManyRequests
	case httpx.IsNetwork(err):
		status = http.StatusServiceUnavailable
	case isHTTPErr(err):
		status = http.StatusBadGateway
	}

	body := gin.H{"status": "error", "error": publicMessage(status, err, s.deps.Debug)}
	c.AbortWithStatusJSON(status, body)
}

// badRequest rejects malformed request bodies.
func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"status": "error",
		"error":  "invalid request: " + err.Error(),
	})
}

func matchesAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func isHTTPErr(err error) bool {
	var he *httpx.HTTPError
	return errors.As(err, &he)
}

// publicMessage hides internal detail on 5xx unless debug is on.
func publicMessage(status int, err error, debug bool) string {
	if status < http.StatusInternalServerError || debug {
		return err.Error()
	}
	return "internal error"
}
