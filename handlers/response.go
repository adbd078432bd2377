package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"apzla-backend/logger"
	"apzla-backend/middleware"
	"apzla-backend/services"
)

// statusFor maps an error kind to its HTTP status. A missing base URL is
// server configuration and reports like any other config error.
func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindValidation, services.KindSessionNotFound, services.KindPolicyViolation:
		return http.StatusBadRequest
	case services.KindInvalidToken, services.KindSignatureMismatch, services.KindTokenExpired, services.KindWrongTokenType:
		return http.StatusUnauthorized
	case services.KindTooManyAttempts:
		return http.StatusTooManyRequests
	case services.KindPersonNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {status:"error", message}. Causes of internal
// failures stay in the logs.
func respondError(c *gin.Context, err error) {
	message := "Internal server error"
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		message = svcErr.Message
	} else {
		logger.Error("unhandled error", logger.Fields{"path": c.FullPath(), "error": err})
	}
	c.JSON(statusFor(services.KindOf(err)), gin.H{
		"status":  "error",
		"message": message,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"status":  "error",
		"message": message,
	})
}

// scopeTenant reconciles the tenant named in a request with the tenant of
// the admin token. It writes the error response and returns false when they
// disagree.
func scopeTenant(c *gin.Context, requested string) (string, bool) {
	admin := middleware.AdminTenant(c)
	switch {
	case admin == "":
		if requested == "" {
			badRequest(c, "tenantId is required")
			return "", false
		}
		return requested, true
	case requested == "" || requested == admin:
		return admin, true
	default:
		logger.Warn("admin tenant mismatch", logger.Fields{"adminTenantId": admin, "tenantId": requested, "path": c.FullPath()})
		c.JSON(http.StatusForbidden, gin.H{
			"status":  "error",
			"message": "You do not have access to this church",
		})
		return "", false
	}
}
