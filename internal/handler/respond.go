package handler

import (
	"errors"

	"account_service/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Error codes surfaced to clients. Responses always carry the uniform shape
// {"error": ..., "code": ...}; driver errors and query text never do.
const (
	CodeInvalidInput    = "invalid_input"
	CodeUnauthenticated = "unauthenticated"
	CodePaymentDeclined = "payment_declined"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeUpstreamFailure = "upstream_failure"
	CodeUpstreamTimeout = "upstream_timeout"
	CodeInternal        = "internal"
)

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": message, "code": code})
}

// Helpers to get authenticated identity from context, set by the auth middleware

func getAuthUserID(c *gin.Context) (int, error) {
	userIDVal, exists := c.Get(middleware.AuthUserKey)
	if !exists {
		return 0, errors.New("user ID not found in context")
	}
	userID, ok := userIDVal.(int)
	if !ok {
		return 0, errors.New("invalid user ID type in context")
	}
	return userID, nil
}

func getAuthUserRole(c *gin.Context) (string, error) {
	roleVal, exists := c.Get(middleware.AuthRoleKey)
	if !exists {
		return "", errors.New("user role not found in context")
	}
	role, ok := roleVal.(string)
	if !ok {
		return "", errors.New("invalid user role type in context")
	}
	return role, nil
}
