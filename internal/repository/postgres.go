package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"alertrelay.io/relay/internal/domain"
	apperrors "alertrelay.io/relay/internal/pkg/errors"
)

// Postgres is the pgx-backed notification store. Per-row atomicity of
// UPDATE statements is the serialization point; the store holds no locks
// of its own.
type Postgres struct {
	pool *pgxpool.Pool

	// queryTimeout bounds every store call so neither the dispatch loop
	// nor the action gateway can block on a stuck connection.
	queryTimeout time.Duration
}

// NewPostgres creates a Postgres store over the shared pool.
func NewPostgres(pool *pgxpool.Pool, queryTimeout time.Duration) *Postgres {
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	return &Postgres{pool: pool, queryTimeout: queryTimeout}
}

// compile-time checks
var (
	_ Store      = (*Postgres)(nil)
	_ AdminStore = (*Postgres)(nil)
)

const notificationColumns = `
	n.id, n.source_id, n.alert_id, n.type_id, n.subject, n.body,
	n.channel, n.recipients, n.state, n.scheduled_for,
	n.action_token, n.token_expires_at,
	n.sent_at, n.received_at, n.resolved_at, n.cancelled_at, n.created_at`

func (p *Postgres) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.queryTimeout)
}

// FetchDue implements the due-date rule on calendar dates only and merges
// per-type defaults into subject, body and recipients. The ordering is a
// contract: unscheduled rows first, then ascending scheduled_for, then
// ascending id.
func (p *Postgres) FetchDue(ctx context.Context, channel domain.Channel) ([]*domain.Notification, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	channel = domain.NormalizeChannel(channel)
	channelPredicate := `n.channel = $1`
	if channel == domain.ChannelEmail {
		// Rows written before the channel column existed are email.
		channelPredicate = `(n.channel = $1 OR n.channel = '')`
	}

	query := fmt.Sprintf(`
		SELECT %s,
		       COALESCE(t.recipients, '') AS default_recipients,
		       COALESCE(t.subject, '')    AS default_subject,
		       COALESCE(t.body, '')       AS default_body
		FROM notifications n
		LEFT JOIN notification_types t ON n.type_id = t.id
		WHERE (n.scheduled_for IS NULL OR n.scheduled_for::date <= CURRENT_DATE)
		  AND n.state = 'pending'
		  AND %s
		ORDER BY
			CASE WHEN n.scheduled_for IS NULL THEN 0 ELSE 1 END,
			n.scheduled_for ASC,
			n.id ASC`, notificationColumns, channelPredicate)

	rows, err := p.pool.Query(ctx, query, string(channel))
	if err != nil {
		return nil, fmt.Errorf("fetch due notifications: %w", err)
	}
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		var n domain.Notification
		var defRecipients, defSubject, defBody string
		if err := rows.Scan(
			&n.ID, &n.SourceID, &n.AlertID, &n.TypeID, &n.Subject, &n.Body,
			&n.Channel, &n.Recipients, &n.State, &n.ScheduledFor,
			&n.ActionToken, &n.TokenExpiresAt,
			&n.SentAt, &n.ReceivedAt, &n.ResolvedAt, &n.CancelledAt, &n.CreatedAt,
			&defRecipients, &defSubject, &defBody,
		); err != nil {
			return nil, fmt.Errorf("scan due notification: %w", err)
		}
		applyTypeDefaults(&n, defRecipients, defSubject, defBody)
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due notifications: %w", err)
	}
	return out, nil
}

// applyTypeDefaults merges per-type defaults into a fetched row: subject
// and body fall back to the type, recipients are the per-notification
// override concatenated with the type default (the dispatcher splits and
// deduplicates).
func applyTypeDefaults(n *domain.Notification, recipients, subject, body string) {
	if n.Subject == "" {
		n.Subject = subject
	}
	if n.Body == "" {
		n.Body = body
	}
	if recipients != "" {
		if n.Recipients == "" {
			n.Recipients = recipients
		} else {
			sep := ","
			if strings.Contains(n.Recipients, ";") || strings.Contains(recipients, ";") {
				sep = ";"
			}
			n.Recipients = n.Recipients + sep + recipients
		}
	}
}

// FetchByID returns the notification or apperrors.ErrNotFound.
func (p *Postgres) FetchByID(ctx context.Context, id string) (*domain.Notification, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM notifications n WHERE n.id = $1`, notificationColumns)
	return p.queryOne(ctx, query, id)
}

// FindByIDAndToken performs the combined authorization check: id, token
// equality, unexpired token and state membership in one query. Which
// condition failed is deliberately not distinguishable from the result.
func (p *Postgres) FindByIDAndToken(ctx context.Context, id, token string, acceptable []domain.State) (*domain.Notification, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT %s FROM notifications n
		WHERE n.id = $1
		  AND n.action_token <> ''
		  AND n.action_token = $2
		  AND n.token_expires_at > now()
		  AND n.state = ANY($3)`, notificationColumns)
	return p.queryOne(ctx, query, id, token, stateStrings(acceptable))
}

func (p *Postgres) queryOne(ctx context.Context, query string, args ...any) (*domain.Notification, error) {
	var n domain.Notification
	err := p.pool.QueryRow(ctx, query, args...).Scan(
		&n.ID, &n.SourceID, &n.AlertID, &n.TypeID, &n.Subject, &n.Body,
		&n.Channel, &n.Recipients, &n.State, &n.ScheduledFor,
		&n.ActionToken, &n.TokenExpiresAt,
		&n.SentAt, &n.ReceivedAt, &n.ResolvedAt, &n.CancelledAt, &n.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query notification: %w", err)
	}
	return &n, nil
}

// validStampColumns guards the interpolated column name; everything else
// in the statement is parameterized.
var validStampColumns = map[string]bool{
	"sent_at":      true,
	"received_at":  true,
	"resolved_at":  true,
	"cancelled_at": true,
}

// TransitionState is the conditional update: the row moves only when its
// current state is still in expected. Timestamps are first-write-wins.
func (p *Postgres) TransitionState(ctx context.Context, id string, expected []domain.State, next domain.State, stampColumn string) (int64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	query := `UPDATE notifications SET state = $1 WHERE id = $2 AND state = ANY($3)`
	if stampColumn != "" {
		if !validStampColumns[stampColumn] {
			return 0, fmt.Errorf("invalid timestamp column %q", stampColumn)
		}
		query = fmt.Sprintf(
			`UPDATE notifications SET state = $1, %s = COALESCE(%s, now()) WHERE id = $2 AND state = ANY($3)`,
			stampColumn, stampColumn,
		)
	}

	tag, err := p.pool.Exec(ctx, query, string(next), id, stateStrings(expected))
	if err != nil {
		return 0, fmt.Errorf("transition notification %s to %s: %w", id, next, err)
	}
	return tag.RowsAffected(), nil
}

// EnsureActionToken assigns a token and expiry only when the row has
// none, and returns whichever token the row ends up with. A resend
// therefore reuses the original token and every previously mailed link
// stays valid.
func (p *Postgres) EnsureActionToken(ctx context.Context, id string, ttl time.Duration) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	candidate, err := NewActionToken()
	if err != nil {
		return "", err
	}
	expires := time.Now().Add(ttl)

	var token string
	err = p.pool.QueryRow(ctx, `
		UPDATE notifications
		SET action_token     = CASE WHEN action_token = '' THEN $1 ELSE action_token END,
		    token_expires_at = CASE WHEN action_token = '' THEN $2::timestamptz ELSE token_expires_at END
		WHERE id = $3
		RETURNING action_token`,
		candidate, expires, id,
	).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperrors.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("ensure action token for %s: %w", id, err)
	}
	return token, nil
}

// ResolvePendingByAlert resolves still-pending siblings of the alert
// group. The pending-only predicate makes lost races self-correcting: a
// row that moved on concurrently simply does not match.
func (p *Postgres) ResolvePendingByAlert(ctx context.Context, alertID, excludeID string) (int64, error) {
	return p.cascade(ctx, "alert_id", alertID, excludeID, domain.StateResolved, "resolved_at")
}

// CancelPendingBySource cancels still-pending members of the legacy
// source grouping.
func (p *Postgres) CancelPendingBySource(ctx context.Context, sourceID, excludeID string) (int64, error) {
	return p.cascade(ctx, "source_id", sourceID, excludeID, domain.StateCancelled, "cancelled_at")
}

// CancelPendingByAlert cancels still-pending siblings of the alert group.
func (p *Postgres) CancelPendingByAlert(ctx context.Context, alertID, excludeID string) (int64, error) {
	return p.cascade(ctx, "alert_id", alertID, excludeID, domain.StateCancelled, "cancelled_at")
}

func (p *Postgres) cascade(ctx context.Context, groupColumn, groupValue, excludeID string, next domain.State, stampColumn string) (int64, error) {
	if groupValue == "" {
		return 0, nil
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		UPDATE notifications
		SET state = $1, %s = COALESCE(%s, now())
		WHERE %s = $2
		  AND state = 'pending'
		  AND id <> $3`,
		stampColumn, stampColumn, groupColumn,
	)
	tag, err := p.pool.Exec(ctx, query, string(next), groupValue, excludeID)
	if err != nil {
		return 0, fmt.Errorf("cascade %s by %s=%s: %w", next, groupColumn, groupValue, err)
	}
	return tag.RowsAffected(), nil
}

// AppendAudit records one audit entry. Callers ignore the error beyond
// logging it: an audit failure never rolls back the transition it
// documents.
func (p *Postgres) AppendAudit(ctx context.Context, id, action, detail string) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	_, err := p.pool.Exec(ctx, `
		INSERT INTO notification_audit (id, notification_id, action, detail, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		newAuditID(), id, action, detail,
	)
	if err != nil {
		return fmt.Errorf("append audit for %s: %w", id, err)
	}
	return nil
}

// Create inserts a new pending notification.
func (p *Postgres) Create(ctx context.Context, n *domain.Notification) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.State == "" {
		n.State = domain.StatePending
	}
	n.Channel = domain.NormalizeChannel(n.Channel)

	_, err := p.pool.Exec(ctx, `
		INSERT INTO notifications
			(id, source_id, alert_id, type_id, subject, body, channel,
			 recipients, state, scheduled_for, action_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, '', now())`,
		n.ID, n.SourceID, n.AlertID, n.TypeID, n.Subject, n.Body,
		string(n.Channel), n.Recipients, string(n.State), n.ScheduledFor,
	)
	if err != nil {
		return "", fmt.Errorf("create notification: %w", err)
	}
	return n.ID, nil
}

// Delete removes a notification row. Administrative/test-only.
func (p *Postgres) Delete(ctx context.Context, id string) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	tag, err := p.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete notification %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Stats returns notification counts per state.
func (p *Postgres) Stats(ctx context.Context) (map[domain.State]int64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx, `SELECT state, count(*) FROM notifications GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("notification stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[domain.State]int64)
	for rows.Next() {
		var state string
		var count int64
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		stats[domain.State(state)] = count
	}
	return stats, rows.Err()
}

// PurgeAuditBefore removes audit rows older than cutoff.
func (p *Postgres) PurgeAuditBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	tag, err := p.pool.Exec(ctx, `DELETE FROM notification_audit WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func stateStrings(states []domain.State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

func newAuditID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
