// Package dispatch runs the periodic delivery cycles. Each cycle pulls
// the due notifications for one channel, delivers them and records the
// outcome through the lifecycle engine. A cycle never aborts on a single
// notification's failure.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"alertrelay.io/relay/internal/audit"
	"alertrelay.io/relay/internal/channel"
	"alertrelay.io/relay/internal/config"
	"alertrelay.io/relay/internal/domain"
	"alertrelay.io/relay/internal/lifecycle"
	"alertrelay.io/relay/internal/pkg/logger"
	"alertrelay.io/relay/internal/pkg/worker"
	"alertrelay.io/relay/internal/repository"
)

// Dispatcher drives delivery for both channels.
type Dispatcher struct {
	store    repository.Store
	engine   *lifecycle.Engine
	email    channel.EmailSender
	chat     channel.ChatSender
	pools    *worker.Pools
	baseURL  string
	tokenTTL time.Duration
}

// New creates a Dispatcher. pools may be nil, in which case email
// fan-out runs sequentially.
func New(store repository.Store, engine *lifecycle.Engine, email channel.EmailSender, chat channel.ChatSender, pools *worker.Pools, cfg config.DispatchConfig, tokenTTL time.Duration) *Dispatcher {
	return &Dispatcher{
		store:    store,
		engine:   engine,
		email:    email,
		chat:     chat,
		pools:    pools,
		baseURL:  cfg.BaseURL,
		tokenTTL: tokenTTL,
	}
}

// RunEmailCycle processes every due email notification once.
func (d *Dispatcher) RunEmailCycle(ctx context.Context) error {
	due, err := d.store.FetchDue(ctx, domain.ChannelEmail)
	if err != nil {
		return fmt.Errorf("fetch due email notifications: %w", err)
	}
	if len(due) == 0 {
		return nil
	}
	logger.Info("email dispatch cycle", zap.Int("due", len(due)))

	for _, n := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.dispatchEmail(ctx, n)
	}
	return nil
}

func (d *Dispatcher) dispatchEmail(ctx context.Context, n *domain.Notification) {
	recipients := SplitRecipients(n.Recipients)
	if len(recipients) == 0 {
		logger.Warn("notification has no valid recipients",
			zap.String("notification_id", n.ID),
			zap.String("recipients", n.Recipients),
		)
		d.completeSend(ctx, n.ID, domain.StateError, audit.ActionError, "no valid recipients")
		return
	}

	// The token is minted before the first delivery attempt and reused on
	// every retry after a partial send, so all emailed links stay equal.
	token, err := d.store.EnsureActionToken(ctx, n.ID, d.tokenTTL)
	if err != nil {
		// Row stays pending and the next cycle retries.
		logger.Error("action token provisioning failed",
			zap.String("notification_id", n.ID), zap.Error(err))
		return
	}

	body := channel.RenderEmailBody(d.baseURL, n.ID, token, n.Subject, n.Body)
	sent := d.fanOut(ctx, n, recipients, body)
	detail := fmt.Sprintf("%d/%d sent", sent, len(recipients))

	switch {
	case sent == len(recipients):
		d.completeSend(ctx, n.ID, domain.StateSent, audit.ActionSent, detail)
	case sent > 0:
		d.completeSend(ctx, n.ID, domain.StatePartial, audit.ActionSent, detail)
	default:
		d.completeSend(ctx, n.ID, domain.StateError, audit.ActionError, detail)
	}
}

// fanOut delivers to every recipient and returns the success count.
// Concurrency is bounded by the transport pool when available.
func (d *Dispatcher) fanOut(ctx context.Context, n *domain.Notification, recipients []string, body string) int {
	var sent atomic.Int64
	var wg sync.WaitGroup

	deliver := func(to string) {
		if err := d.email.Send(ctx, to, n.Subject, body); err != nil {
			logger.Error("email delivery failed",
				zap.String("notification_id", n.ID),
				zap.String("recipient", to),
				zap.Error(err),
			)
			return
		}
		sent.Add(1)
	}

	for _, to := range recipients {
		if d.pools == nil {
			deliver(to)
			continue
		}
		wg.Add(1)
		err := d.pools.Transport.Submit(ctx, func(ctx context.Context) {
			defer wg.Done()
			deliver(to)
		})
		if err != nil {
			wg.Done()
			logger.Error("email delivery not scheduled",
				zap.String("notification_id", n.ID),
				zap.String("recipient", to),
				zap.Error(err),
			)
		}
	}
	wg.Wait()

	return int(sent.Load())
}

// RunChatCycle processes every due chat notification once.
func (d *Dispatcher) RunChatCycle(ctx context.Context) error {
	due, err := d.store.FetchDue(ctx, domain.ChannelChat)
	if err != nil {
		return fmt.Errorf("fetch due chat notifications: %w", err)
	}
	if len(due) == 0 {
		return nil
	}
	logger.Info("chat dispatch cycle", zap.Int("due", len(due)))

	for _, n := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.dispatchChat(ctx, n)
	}
	return nil
}

func (d *Dispatcher) dispatchChat(ctx context.Context, n *domain.Notification) {
	phone := strings.TrimSpace(n.Recipients)
	if !ValidPhone(phone) {
		logger.Warn("notification has no valid phone number",
			zap.String("notification_id", n.ID),
			zap.String("recipients", n.Recipients),
		)
		d.completeSend(ctx, n.ID, domain.StateError, audit.ActionChatError, "invalid phone number")
		return
	}

	message := n.Subject
	if n.Body != "" {
		message = n.Subject + "\n\n" + n.Body
	}

	if err := d.chat.Send(ctx, phone, message); err != nil {
		logger.Error("chat delivery failed",
			zap.String("notification_id", n.ID),
			zap.String("phone", phone),
			zap.Error(err),
		)
		d.completeSend(ctx, n.ID, domain.StateError, audit.ActionChatError, fmt.Sprintf("delivery failed: %v", err))
		return
	}

	d.completeSend(ctx, n.ID, domain.StateSent, audit.ActionChatSent, "1/1 sent")
}

func (d *Dispatcher) completeSend(ctx context.Context, id string, final domain.State, action, detail string) {
	if _, err := d.engine.CompleteSend(ctx, id, final, action, detail); err != nil {
		logger.Error("send outcome not recorded",
			zap.String("notification_id", id),
			zap.String("outcome", string(final)),
			zap.Error(err),
		)
	}
}
