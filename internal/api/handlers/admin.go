package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"alertrelay.io/relay/internal/domain"
	apperrors "alertrelay.io/relay/internal/pkg/errors"
)

type createNotificationRequest struct {
	SourceID     string     `json:"source_id"`
	AlertID      string     `json:"alert_id"`
	TypeID       string     `json:"type_id"`
	Subject      string     `json:"subject" binding:"required"`
	Body         string     `json:"body"`
	Channel      string     `json:"channel"`
	Recipients   string     `json:"recipients"`
	ScheduledFor *time.Time `json:"scheduled_for"`
}

// CreateNotification handles POST /api/v1/admin/notifications. New rows
// always start pending; the next dispatch cycle picks them up once due.
func (s *Server) CreateNotification(c *gin.Context) {
	var req createNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest("INVALID_REQUEST", "subject is required"))
		return
	}

	channel := domain.NormalizeChannel(domain.Channel(req.Channel))
	if channel != domain.ChannelEmail && channel != domain.ChannelChat {
		_ = c.Error(apperrors.BadRequest("INVALID_CHANNEL", "channel must be email or chat"))
		return
	}
	if req.Recipients == "" && req.TypeID == "" {
		_ = c.Error(apperrors.BadRequest("MISSING_RECIPIENTS", "recipients or type_id is required"))
		return
	}

	id, err := s.store.Create(c.Request.Context(), &domain.Notification{
		SourceID:     req.SourceID,
		AlertID:      req.AlertID,
		TypeID:       req.TypeID,
		Subject:      req.Subject,
		Body:         req.Body,
		Channel:      channel,
		Recipients:   req.Recipients,
		ScheduledFor: req.ScheduledFor,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id, "state": domain.StatePending})
}

// DeleteNotification handles DELETE /api/v1/admin/notifications/:id.
func (s *Server) DeleteNotification(c *gin.Context) {
	err := s.store.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, apperrors.ErrNotFound) {
		_ = c.Error(apperrors.NotFound("NOT_FOUND", "notification not found"))
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetStats handles GET /api/v1/admin/stats.
func (s *Server) GetStats(c *gin.Context) {
	counts, err := s.store.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	var total int64
	byState := make(map[string]int64, len(counts))
	for state, n := range counts {
		byState[string(state)] = n
		total += n
	}

	c.JSON(http.StatusOK, gin.H{
		"total":    total,
		"by_state": byState,
	})
}
