// Package repository implements typed access to the notification store.
//
// The conditional state transition (UPDATE guarded by the current state,
// reporting affected rows) is the only concurrency primitive in the
// system; every mutating caller goes through it.
package repository

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"alertrelay.io/relay/internal/domain"
)

// Store is the repository contract consumed by the lifecycle engine and
// the dispatch loop.
type Store interface {
	// FetchDue returns pending notifications for the channel whose
	// scheduled date (if any) is today or earlier. Rows without a channel
	// count as email. Ordering: unscheduled first, then scheduled_for
	// ascending, then id ascending.
	FetchDue(ctx context.Context, channel domain.Channel) ([]*domain.Notification, error)

	// FetchByID returns the notification or ErrNotFound.
	FetchByID(ctx context.Context, id string) (*domain.Notification, error)

	// FindByIDAndToken validates id, token equality, token expiry and
	// state membership in one query. Returns ErrNotFound when any of the
	// conditions fails; callers must not learn which one.
	FindByIDAndToken(ctx context.Context, id, token string, acceptable []domain.State) (*domain.Notification, error)

	// TransitionState conditionally moves the row into next when its
	// current state is in expected, stamping stampColumn (if any) only on
	// first write. Returns the number of rows affected; 0 means the row
	// moved on concurrently or does not exist.
	TransitionState(ctx context.Context, id string, expected []domain.State, next domain.State, stampColumn string) (int64, error)

	// EnsureActionToken assigns a fresh token and expiry to the
	// notification unless it already has one, and returns the effective
	// token. Tokens are never rotated: links minted from every resend of
	// the same notification must keep working.
	EnsureActionToken(ctx context.Context, id string, ttl time.Duration) (string, error)

	// ResolvePendingByAlert resolves every pending notification sharing
	// alertID except excludeID, returning the count.
	ResolvePendingByAlert(ctx context.Context, alertID, excludeID string) (int64, error)

	// CancelPendingBySource cancels every pending notification sharing
	// the legacy sourceID grouping except excludeID.
	CancelPendingBySource(ctx context.Context, sourceID, excludeID string) (int64, error)

	// CancelPendingByAlert cancels every pending notification sharing
	// alertID except excludeID.
	CancelPendingByAlert(ctx context.Context, alertID, excludeID string) (int64, error)

	// AppendAudit records an audit entry. Callers treat failures as
	// best-effort: log and continue, never roll back the transition the
	// entry documents.
	AppendAudit(ctx context.Context, id, action, detail string) error
}

// AdminStore extends Store with operations that never run from the core
// dispatch or action paths.
type AdminStore interface {
	Store

	// Create inserts a new pending notification and returns its id.
	Create(ctx context.Context, n *domain.Notification) (string, error)

	// Delete removes a notification row. Administrative/test-only: the
	// core never deletes.
	Delete(ctx context.Context, id string) error

	// Stats returns notification counts per state.
	Stats(ctx context.Context) (map[domain.State]int64, error)

	// PurgeAuditBefore removes audit rows older than cutoff and returns
	// the number removed.
	PurgeAuditBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewActionToken returns an opaque URL-safe bearer token with 32 bytes of
// entropy, comfortably above the 20-character floor the action links
// require.
func NewActionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate action token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
