package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"apzla-backend/logger"
)

// AdminTenantKey is the gin context key holding the tenant an admin token
// was issued for.
const AdminTenantKey = "adminTenantId"

// AdminClaims is the payload of a church admin's session token.
type AdminClaims struct {
	TenantID string `json:"tenantId"`
	jwt.RegisteredClaims
}

// GenerateAdminToken signs an admin token for tenantID.
func GenerateAdminToken(secret, tenantID, subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	now := time.Now()
	claims := &AdminClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseAdminToken verifies an HS256 admin token. Other algorithms are rejected.
func ParseAdminToken(secret, tokenStr string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AdminClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.TenantID == "" {
		return nil, errors.New("admin token has no tenant")
	}
	return claims, nil
}

// RequireAdmin guards the issuing and management routes. With an empty
// secret the guard is off, which is only meant for local development.
func RequireAdmin(secret string) gin.HandlerFunc {
	if secret == "" {
		logger.Warn("ADMIN_JWT_SECRET is not set, admin routes are unauthenticated", nil)
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		var tokenStr string
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				tokenStr = strings.TrimSpace(parts[1])
			}
		}

		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "Authorization required",
			})
			return
		}

		claims, err := ParseAdminToken(secret, tokenStr)
		if err != nil {
			logger.Warn("rejected admin token", logger.Fields{"path": c.FullPath(), "error": err})
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "Session expired or invalid. Please sign in again.",
			})
			return
		}

		c.Set(AdminTenantKey, claims.TenantID)
		c.Next()
	}
}

// AdminTenant returns the tenant bound by RequireAdmin, or "" when the
// guard is off.
func AdminTenant(c *gin.Context) string {
	return c.GetString(AdminTenantKey)
}
