package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Mizroch-Management/ocma-sub004/internal/auth"
	"github.com/Mizroch-Management/ocma-sub004/internal/common"
)

const (
	TenantIDKey  = "tenant_id"
	RequestIDKey = "request_id"
)

// RequestID tags every request, honoring a caller-supplied X-Request-ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// Recovery turns panics into the standard 500 envelope instead of a
// dropped connection.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[recovery] panic: %v", r)
				common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// AuthRequired validates the bearer JWT and puts the tenant id on the
// context.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			common.Fail(c, http.StatusUnauthorized, 40101, "missing bearer token")
			c.Abort()
			return
		}
		tenantID, err := auth.ParseJWT(strings.TrimPrefix(h, "Bearer "), secret)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid token")
			c.Abort()
			return
		}
		c.Set(TenantIDKey, tenantID)
		c.Next()
	}
}

// OperatorRequired guards administrative routes with the configured
// operator key. No configured hash means the route is disabled.
func OperatorRequired(keyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if keyHash == "" {
			common.Fail(c, http.StatusForbidden, 40301, "operator access not configured")
			c.Abort()
			return
		}
		if !auth.CheckKey(keyHash, c.GetHeader("X-Operator-Key")) {
			common.Fail(c, http.StatusForbidden, 40302, "invalid operator key")
			c.Abort()
			return
		}
		c.Next()
	}
}
