package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/LandRegistry/internal/model"
)

// statusFor maps a wire code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case model.CodeValidation:
		return http.StatusBadRequest
	case model.CodeUnauthenticated:
		return http.StatusUnauthorized
	case model.CodeNotAuthorized:
		return http.StatusForbidden
	case model.CodeNotFound:
		return http.StatusNotFound
	case model.CodeAlreadyVoted, model.CodeNotPending, model.CodeDuplicateID, model.CodeConflict:
		return http.StatusConflict
	case model.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError responds with {"error", "code"} (plus "field" for validation
// failures). Server-side failures are logged and their detail withheld.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	code := model.ErrorCode(err)
	status := statusFor(code)
	body := gin.H{"error": err.Error(), "code": code}

	var ve *model.ValidationError
	if errors.As(err, &ve) {
		body["error"] = ve.Reason
		body["field"] = ve.Field
	}
	if status >= http.StatusInternalServerError {
		logger.Error("ledger request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
		body["error"] = "ledger unavailable"
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, field, reason string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": reason, "code": model.CodeValidation, "field": field})
}
