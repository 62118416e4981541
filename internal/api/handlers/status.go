package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"alertrelay.io/relay/internal/domain"
	apperrors "alertrelay.io/relay/internal/pkg/errors"
)

// notificationStatus is the public view of a notification. The action
// token never leaves the server.
type notificationStatus struct {
	ID          string       `json:"id"`
	State       domain.State `json:"state"`
	Channel     string       `json:"channel"`
	Subject     string       `json:"subject"`
	SentAt      *time.Time   `json:"sent_at,omitempty"`
	ReceivedAt  *time.Time   `json:"received_at,omitempty"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty"`
	CancelledAt *time.Time   `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// GetNotificationStatus handles GET /notifications/:id/status.
func (s *Server) GetNotificationStatus(c *gin.Context) {
	n, err := s.store.FetchByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, apperrors.ErrNotFound) {
		_ = c.Error(apperrors.NotFound("NOT_FOUND", "notification not found"))
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, notificationStatus{
		ID:          n.ID,
		State:       n.State,
		Channel:     string(domain.NormalizeChannel(n.Channel)),
		Subject:     n.Subject,
		SentAt:      n.SentAt,
		ReceivedAt:  n.ReceivedAt,
		ResolvedAt:  n.ResolvedAt,
		CancelledAt: n.CancelledAt,
		CreatedAt:   n.CreatedAt,
	})
}

// GetLiveness handles GET /healthz.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetReadiness handles GET /readyz.
func (s *Server) GetReadiness(c *gin.Context) {
	if s.ready != nil {
		if err := s.ready(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"checks": gin.H{"database": "error"},
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"checks": gin.H{"database": "ok"},
	})
}
