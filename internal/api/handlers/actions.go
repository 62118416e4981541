package handlers

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"alertrelay.io/relay/internal/lifecycle"
)

// The action gateway is hit from links in notification emails, so it
// answers plain GETs and can render a small confirmation page for
// browsers alongside the JSON contract used by tooling.

// MarkReceived handles GET /notifications/:id/received.
func (s *Server) MarkReceived(c *gin.Context) {
	s.action(c, s.engine.MarkReceived)
}

// MarkResolved handles GET /notifications/:id/resolved.
func (s *Server) MarkResolved(c *gin.Context) {
	s.action(c, s.engine.MarkResolved)
}

// CancelNotification handles GET /notifications/:id/cancel.
func (s *Server) CancelNotification(c *gin.Context) {
	s.action(c, s.engine.Cancel)
}

func (s *Server) action(c *gin.Context, apply func(ctx context.Context, id, token string) lifecycle.Result) {
	id := c.Param("id")
	token := c.Query("token")
	if token == "" {
		s.renderAction(c, http.StatusBadRequest, lifecycle.Result{
			Success: false,
			Message: "token query parameter is required",
			Code:    "TOKEN_REQUIRED",
		})
		return
	}

	res := apply(c.Request.Context(), id, token)

	status := http.StatusOK
	switch {
	case res.Success:
	case res.Code == lifecycle.CodeInternalError:
		status = http.StatusInternalServerError
	default:
		status = http.StatusBadRequest
	}
	s.renderAction(c, status, res)
}

func (s *Server) renderAction(c *gin.Context, status int, res lifecycle.Result) {
	if wantsHTML(c) {
		c.Data(status, "text/html; charset=utf-8", []byte(actionPage(res)))
		return
	}
	c.JSON(status, res)
}

// wantsHTML reports whether the client is a browser rather than an API
// consumer. Browsers send text/html first in Accept.
func wantsHTML(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	htmlIdx := strings.Index(accept, "text/html")
	if htmlIdx < 0 {
		return false
	}
	jsonIdx := strings.Index(accept, "application/json")
	return jsonIdx < 0 || htmlIdx < jsonIdx
}

func actionPage(res lifecycle.Result) string {
	head := "Action completed"
	color := "#2e7d32"
	if !res.Success {
		head = "Action failed"
		color = "#c62828"
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>")
	b.WriteString(head)
	b.WriteString("</title></head><body style=\"font-family: Arial, sans-serif; max-width: 480px; margin: 80px auto; text-align: center;\">")
	fmt.Fprintf(&b, "<h1 style=\"color: %s;\">%s</h1>", color, head)
	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(res.Message))
	b.WriteString("<p style=\"color: #888; font-size: 13px;\">You can close this window.</p>")
	b.WriteString("</body></html>")
	return b.String()
}
