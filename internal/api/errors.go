package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"parking-access-backend/internal/ledger"
	"parking-access-backend/internal/logger"
)

var statusByCode = map[string]int{
	ledger.CodeDuplicateEntry: http.StatusBadRequest,
	ledger.CodeNoOpenEntry:    http.StatusBadRequest,
	ledger.CodeNegativeStay:   http.StatusBadRequest,
	ledger.CodeUnknownVehicle: http.StatusBadRequest,
	ledger.CodeValidation:     http.StatusBadRequest,
	ledger.CodeNotFound:       http.StatusNotFound,
	ledger.CodeInconsistency:  http.StatusInternalServerError,
	ledger.CodeStore:          http.StatusInternalServerError,
}

var messageByCode = map[string]string{
	ledger.CodeDuplicateEntry: "the vehicle already has an active entry; register its exit first",
	ledger.CodeNoOpenEntry:    "the vehicle has no active entry; an exit cannot be registered",
	ledger.CodeNegativeStay:   "the exit date/time cannot precede the entry date/time",
	ledger.CodeUnknownVehicle: "the vehicle is not registered",
	ledger.CodeNotFound:       "access event not found",
	ledger.CodeInconsistency:  "data inconsistency, contact the administrator",
	ledger.CodeStore:          "internal server error",
}

// respondError writes the JSON error envelope for err. Server-side
// failures are logged with their full cause and reported opaquely.
func respondError(c *gin.Context, err error) {
	code := ledger.Code(err)
	status := statusByCode[code]

	msg := messageByCode[code]
	var verr *ledger.ValidationError
	if errors.As(err, &verr) {
		msg = verr.Error()
	}

	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		logger.FromContext(c.Request.Context()).Error("request failed",
			zap.String("code", code), zap.Error(err))
	}
	c.Set("error_code", code)
	c.JSON(status, gin.H{"success": false, "error": msg, "code": code})
}

// badRequest reports a malformed request that never reached the ledger.
func badRequest(c *gin.Context, field, message string) {
	respondError(c, &ledger.ValidationError{Field: field, Message: message})
}
