// Package lifecycle implements the notification state machine.
//
// Every transition goes through the repository's conditional update and
// is safe to attempt redundantly: concurrent or duplicate invocations of
// the same action succeed without double-processing. The engine holds no
// locks and never lets a storage error escape as anything but a generic
// internal-error result.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"alertrelay.io/relay/internal/audit"
	"alertrelay.io/relay/internal/domain"
	apperrors "alertrelay.io/relay/internal/pkg/errors"
	"alertrelay.io/relay/internal/pkg/logger"
	"alertrelay.io/relay/internal/repository"
)

// Result codes surfaced to the action gateway.
const (
	CodeInvalidToken  = "INVALID_OR_EXPIRED_TOKEN"
	CodeInternalError = "INTERNAL_ERROR"
)

// Result is the tagged outcome of a recipient action. It crosses the
// gateway boundary as-is; there is no panic or error path past it.
type Result struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Code         string `json:"code,omitempty"`
	CascadeCount int64  `json:"cascade_count,omitempty"`
}

// invalidToken deliberately covers unknown id, wrong token, expired token
// and a state outside the acceptable set, so the response never reveals
// which check failed.
func invalidToken() Result {
	return Result{Success: false, Message: "invalid or expired token", Code: CodeInvalidToken}
}

func internalError() Result {
	return Result{Success: false, Message: "internal error", Code: CodeInternalError}
}

// Engine applies lifecycle transitions and cascades.
type Engine struct {
	store repository.Store
}

// NewEngine creates an Engine over the given store.
func NewEngine(store repository.Store) *Engine {
	return &Engine{store: store}
}

// MarkReceived marks a sent notification as received by the recipient.
//
// Already-received rows short-circuit to success without touching
// received_at. A conditional update that affects zero rows (the state
// moved concurrently) is also success: the intended end state was reached
// by another actor.
func (e *Engine) MarkReceived(ctx context.Context, id, token string) Result {
	n, res, ok := e.authorize(ctx, id, token, []domain.State{
		domain.StateSent, domain.StatePartial, domain.StateReceived,
	})
	if !ok {
		return res
	}

	if n.State == domain.StateReceived {
		return Result{Success: true, Message: "notification already marked as received"}
	}

	rows, err := e.store.TransitionState(ctx, id,
		[]domain.State{domain.StateSent, domain.StatePartial},
		domain.StateReceived, "received_at")
	if err != nil {
		logger.Error("mark received failed", zap.String("notification_id", id), zap.Error(err))
		return internalError()
	}
	if rows > 0 {
		audit.Log(ctx, e.store, id, audit.ActionMarkedReceived, "recipient marked notification as received")
	} else {
		logger.Debug("receive transition lost race, end state already reached",
			zap.String("notification_id", id))
	}

	logger.Info("notification marked as received", zap.String("notification_id", id))
	return Result{Success: true, Message: "notification marked as received"}
}

// MarkResolved resolves the notification and cascades to still-pending
// notifications of the same alert group.
//
// resolved absorbs from cancelled as well, so a late resolve can override
// an earlier cancel. Re-resolving a resolved notification is an
// idempotent success and does not cascade again.
func (e *Engine) MarkResolved(ctx context.Context, id, token string) Result {
	n, res, ok := e.authorize(ctx, id, token, []domain.State{
		domain.StateSent, domain.StatePartial, domain.StateReceived,
		domain.StateCancelled, domain.StateResolved,
	})
	if !ok {
		return res
	}

	if n.State == domain.StateResolved {
		return Result{Success: true, Message: "notification already resolved"}
	}

	rows, err := e.store.TransitionState(ctx, id,
		[]domain.State{domain.StateSent, domain.StatePartial, domain.StateReceived, domain.StateCancelled},
		domain.StateResolved, "resolved_at")
	if err != nil {
		logger.Error("resolve failed", zap.String("notification_id", id), zap.Error(err))
		return internalError()
	}
	if rows > 0 {
		audit.Log(ctx, e.store, id, audit.ActionMarkedResolved, "recipient resolved notification")
	}

	// The pending-only predicate makes a repeated cascade harmless, so it
	// also runs after a tolerated zero-row race.
	cascade, err := e.store.ResolvePendingByAlert(ctx, n.AlertID, id)
	if err != nil {
		logger.Error("resolve cascade failed",
			zap.String("notification_id", id),
			zap.String("alert_id", n.AlertID),
			zap.Error(err),
		)
		cascade = 0
	}
	if cascade > 0 {
		audit.Log(ctx, e.store, id, audit.ActionRelatedResolved,
			fmt.Sprintf("resolved %d related pending notifications for alert %s", cascade, n.AlertID))
	}

	logger.Info("notification resolved",
		zap.String("notification_id", id),
		zap.Int64("cascade_count", cascade),
	)

	msg := "notification resolved"
	if cascade > 0 {
		msg = fmt.Sprintf("notification resolved, %d related notifications resolved", cascade)
	}
	return Result{Success: true, Message: msg, CascadeCount: cascade}
}

// Cancel cancels the notification and cascades twice: over the legacy
// source grouping and over the alert grouping, both restricted to
// still-pending rows and excluding the acting notification. The counts
// are summed; a row matching both groupings is only pending for the
// first cascade, so it is never counted twice.
func (e *Engine) Cancel(ctx context.Context, id, token string) Result {
	n, res, ok := e.authorize(ctx, id, token, []domain.State{
		domain.StateSent, domain.StatePartial, domain.StateReceived,
		domain.StateResolved, domain.StateCancelled,
	})
	if !ok {
		return res
	}

	if n.State == domain.StateCancelled {
		return Result{Success: true, Message: "notification already cancelled"}
	}

	rows, err := e.store.TransitionState(ctx, id,
		[]domain.State{domain.StateSent, domain.StatePartial, domain.StateReceived, domain.StateResolved},
		domain.StateCancelled, "cancelled_at")
	if err != nil {
		logger.Error("cancel failed", zap.String("notification_id", id), zap.Error(err))
		return internalError()
	}
	if rows > 0 {
		audit.Log(ctx, e.store, id, audit.ActionCancelled,
			fmt.Sprintf("recipient cancelled notification (source %q, alert %q)", n.SourceID, n.AlertID))
	}

	var cascade int64
	bySource, err := e.store.CancelPendingBySource(ctx, n.SourceID, id)
	if err != nil {
		logger.Error("cancel cascade by source failed",
			zap.String("notification_id", id),
			zap.String("source_id", n.SourceID),
			zap.Error(err),
		)
	} else {
		cascade += bySource
	}
	byAlert, err := e.store.CancelPendingByAlert(ctx, n.AlertID, id)
	if err != nil {
		logger.Error("cancel cascade by alert failed",
			zap.String("notification_id", id),
			zap.String("alert_id", n.AlertID),
			zap.Error(err),
		)
	} else {
		cascade += byAlert
	}
	if cascade > 0 {
		audit.Log(ctx, e.store, id, audit.ActionRelatedCancelled,
			fmt.Sprintf("cancelled %d related pending notifications", cascade))
	}

	logger.Info("notification cancelled",
		zap.String("notification_id", id),
		zap.Int64("cascade_count", cascade),
	)

	msg := "notification cancelled"
	if cascade > 0 {
		msg = fmt.Sprintf("notification cancelled, %d related notifications cancelled", cascade)
	}
	return Result{Success: true, Message: msg, CascadeCount: cascade}
}

// CompleteSend records a dispatch outcome, moving the row out of pending.
// The expected-pending guard means a notification cancelled or resolved
// between fetch and send is skipped harmlessly; the caller only logs it.
// Returns whether the transition took effect.
func (e *Engine) CompleteSend(ctx context.Context, id string, final domain.State, auditAction, detail string) (bool, error) {
	if final != domain.StateSent && final != domain.StatePartial && final != domain.StateError {
		return false, fmt.Errorf("invalid send outcome state %q", final)
	}

	rows, err := e.store.TransitionState(ctx, id,
		[]domain.State{domain.StatePending}, final, domain.TimestampColumn(final))
	if err != nil {
		return false, fmt.Errorf("record send outcome for %s: %w", id, err)
	}
	if rows == 0 {
		logger.Warn("send outcome skipped, notification no longer pending",
			zap.String("notification_id", id),
			zap.String("outcome", string(final)),
		)
		return false, nil
	}

	audit.Log(ctx, e.store, id, auditAction, detail)
	return true, nil
}

// authorize runs the combined id+token+expiry+state check. The returned
// Result is only meaningful when ok is false.
func (e *Engine) authorize(ctx context.Context, id, token string, acceptable []domain.State) (*domain.Notification, Result, bool) {
	n, err := e.store.FindByIDAndToken(ctx, id, token, acceptable)
	if errors.Is(err, apperrors.ErrNotFound) {
		// Specific reason stays server-side; the response is uniform.
		logger.Warn("action token rejected", zap.String("notification_id", id))
		return nil, invalidToken(), false
	}
	if err != nil {
		logger.Error("token validation failed", zap.String("notification_id", id), zap.Error(err))
		return nil, internalError(), false
	}
	return n, Result{}, true
}
