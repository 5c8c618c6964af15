package utils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
)

// Context keys set by the auth middleware
const (
	ContextTenantID = "tenant_id"
	ContextUserID   = "user_id"
	ContextRole     = "user_role"
)

// GetTenantIDFromContext extracts the tenant ID from Gin context
func GetTenantIDFromContext(c *gin.Context) (string, error) {
	tenantID, exists := c.Get(ContextTenantID)
	if !exists {
		return "", errors.New("tenant ID not found in context")
	}

	tenantStr, ok := tenantID.(string)
	if !ok || tenantStr == "" {
		return "", errors.New("invalid tenant ID type")
	}

	return tenantStr, nil
}

// GetUserIDFromContext extracts user ID from Gin context
func GetUserIDFromContext(c *gin.Context) (string, error) {
	userID, exists := c.Get(ContextUserID)
	if !exists {
		return "", errors.New("user ID not found in context")
	}

	userStr, ok := userID.(string)
	if !ok {
		return "", errors.New("invalid user ID type")
	}

	return userStr, nil
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header required")
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errors.New("invalid authorization format")
	}

	return parts[1], nil
}

// GenerateRandomString generates a random string of specified length
func GenerateRandomString(length int) string {
	bytes := make([]byte, (length+1)/2)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)[:length]
}
