// Package audit defines the audit action vocabulary and the best-effort
// write helper. Audit rows are append-only records; a failed write is
// logged and never rolls back the state transition it documents.
package audit

import (
	"context"

	"go.uber.org/zap"

	"alertrelay.io/relay/internal/pkg/logger"
	"alertrelay.io/relay/internal/repository"
)

// Audit actions. The values are persisted and consumed by the dashboard;
// they must not change.
const (
	ActionSent             = "NOTIFICATION_SENT"
	ActionChatSent         = "NOTIFICATION_CHAT_SENT"
	ActionError            = "ERROR_NOTIFICATION"
	ActionChatError        = "ERROR_NOTIFICATION_CHAT"
	ActionMarkedReceived   = "MARKED_RECEIVED"
	ActionMarkedResolved   = "MARKED_RESOLVED"
	ActionCancelled        = "NOTIFICATION_CANCELLED"
	ActionRelatedResolved  = "RELATED_NOTIFICATIONS_RESOLVED"
	ActionRelatedCancelled = "RELATED_NOTIFICATIONS_CANCELLED"
)

// Log appends an audit entry, logging and swallowing any failure. Every
// caller in the engine and the dispatch loop follows the same pattern so
// it is centralised here.
func Log(ctx context.Context, store repository.Store, id, action, detail string) {
	if store == nil {
		return
	}
	if err := store.AppendAudit(ctx, id, action, detail); err != nil {
		logger.Warn("failed to write audit entry",
			zap.String("notification_id", id),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
