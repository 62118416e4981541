package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"alertrelay.io/relay/internal/api/middleware"
	apperrors "alertrelay.io/relay/internal/pkg/errors"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles POST /api/v1/auth/login. Credentials check against the
// configured administrator account; the bcrypt comparison also runs for
// unknown usernames so both failures take the same time.
func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest("INVALID_REQUEST", "username and password are required"))
		return
	}

	hash := s.adminPasswordHash
	if req.Username != s.adminUser || hash == "" {
		hash = "$2a$10$invalidinvalidinvalidinvalidinvalidinvalidinvalidinval"
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil || req.Username != s.adminUser {
		_ = c.Error(apperrors.Unauthorized("INVALID_CREDENTIALS", "invalid username or password"))
		return
	}

	token, expiresAt, err := middleware.GenerateToken(s.jwtCfg, req.Username)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}
