package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"onboarding-backend/internal/identity"
	"onboarding-backend/internal/shared/auth"
	"onboarding-backend/internal/shared/server/respond"
)

const (
	userIDKey    = "userId"
	userEmailKey = "userEmail"
	userNameKey  = "userName"
	sessionKey   = "session"
)

// TokenVerifier validates a bearer token. *auth.Manager implements it.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// Auth validates bearer JWTs and stores the caller's session in context.
// Paths listed in public skip verification.
func Auth(verifier TokenVerifier, public ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		path := c.Request.URL.Path
		for _, p := range public {
			if path == p {
				c.Next()
				return
			}
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(authHeader, "Bearer ") {
			respond.Unauthorized(c)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if token == "" || verifier == nil {
			respond.Unauthorized(c)
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			respond.Unauthorized(c)
			return
		}

		sess := identity.New(claims.Sub, claims.Email, claims.Name, token).WithSID(claims.SID)
		c.Set(userIDKey, sess.UserID)
		if claims.Email != "" {
			c.Set(userEmailKey, claims.Email)
		}
		if claims.Name != "" {
			c.Set(userNameKey, claims.Name)
		}
		c.Set(sessionKey, sess)
		c.Request = c.Request.WithContext(identity.WithSession(c.Request.Context(), sess))
		c.Next()
	}
}

// UserIDFromContext fetches the user ID set by the auth middleware.
func UserIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

// SessionFromContext returns the session set by the auth middleware, or an anonymous one.
func SessionFromContext(c *gin.Context) identity.Session {
	if c == nil {
		return identity.Session{}
	}
	val, _ := c.Get(sessionKey)
	if sess, ok := val.(identity.Session); ok {
		return sess
	}
	return identity.Session{}
}

// UserEmailFromContext fetches the user email set by the auth middleware.
func UserEmailFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userEmailKey)
	if email, ok := val.(string); ok {
		return email
	}
	return ""
}

// UserNameFromContext fetches the user name set by the auth middleware.
func UserNameFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userNameKey)
	if name, ok := val.(string); ok {
		return name
	}
	return ""
}
