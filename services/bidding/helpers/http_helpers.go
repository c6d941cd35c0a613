package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"night-auction/internal/biddingerrors"
	"night-auction/utils"

	"github.com/gin-gonic/gin"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrSessionNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrNotEligible):
		return http.StatusForbidden, "user is not eligible to bid"
	case errors.Is(err, biddingerrors.ErrSessionTerminal):
		return http.StatusConflict, "session already ended"
	case errors.Is(err, biddingerrors.ErrTwoSidedBidding):
		return http.StatusConflict, "withdrawal no longer possible"
	case errors.Is(err, biddingerrors.ErrBelowCurrentMinimum):
		return http.StatusBadRequest, "ceiling below current minimum"
	case errors.Is(err, biddingerrors.ErrNoHighBid):
		return http.StatusConflict, "session has no high bid"
	case errors.Is(err, biddingerrors.ErrVersionConflict):
		return http.StatusConflict, "concurrent update, please retry"
	case errors.Is(err, biddingerrors.ErrInvariantViolation):
		return http.StatusInternalServerError, "session state is inconsistent"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
