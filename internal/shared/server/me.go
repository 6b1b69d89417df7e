package server

import (
	"github.com/gin-gonic/gin"

	"onboarding-backend/internal/shared/server/middleware"
	"onboarding-backend/internal/shared/server/respond"
)

type meResponse struct {
	UserID    string `json:"userId"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	SessionID string `json:"sessionId"`
}

// registerMeRoutes attaches the /me endpoint.
func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", meHandler)
}

// meHandler echoes the verified session; the token itself is never returned.
func meHandler(c *gin.Context) {
	sess := middleware.SessionFromContext(c)
	if sess.Anonymous() {
		respond.Unauthorized(c)
		return
	}
	respond.OK(c, meResponse{
		UserID:    sess.UserID,
		Email:     sess.Email,
		Name:      sess.Name,
		SessionID: sess.ID,
	})
}
