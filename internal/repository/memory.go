package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"alertrelay.io/relay/internal/domain"
	apperrors "alertrelay.io/relay/internal/pkg/errors"
)

// AuditEntry is one recorded audit action.
type AuditEntry struct {
	NotificationID string
	Action         string
	Detail         string
	CreatedAt      time.Time
}

// Memory is an in-memory Store with the same observable semantics as the
// Postgres implementation, including conditional-update atomicity. It
// backs the engine and dispatcher tests and the local development mode.
type Memory struct {
	mu     sync.Mutex
	rows   map[string]*domain.Notification
	audits []AuditEntry

	// Now is the clock used for dueness, stamps and token expiry.
	// Overridable in tests.
	Now func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		rows: make(map[string]*domain.Notification),
		Now:  time.Now,
	}
}

// compile-time checks
var (
	_ Store      = (*Memory)(nil)
	_ AdminStore = (*Memory)(nil)
)

// Put inserts or replaces a notification row.
func (m *Memory) Put(n *domain.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.rows[n.ID] = &cp
}

// Get returns a copy of the row, or nil.
func (m *Memory) Get(id string) *domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return nil
	}
	cp := *n
	return &cp
}

// Audits returns recorded audit entries for a notification, in order.
func (m *Memory) Audits(id string) []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AuditEntry
	for _, e := range m.audits {
		if e.NotificationID == id {
			out = append(out, e)
		}
	}
	return out
}

// FetchDue mirrors the SQL due-date rule and ordering contract.
func (m *Memory) FetchDue(_ context.Context, channel domain.Channel) ([]*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	channel = domain.NormalizeChannel(channel)
	now := m.Now()

	var out []*domain.Notification
	for _, n := range m.rows {
		if n.State != domain.StatePending {
			continue
		}
		if domain.NormalizeChannel(n.Channel) != channel {
			continue
		}
		if !n.Due(now) {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.ScheduledFor == nil && b.ScheduledFor != nil:
			return true
		case a.ScheduledFor != nil && b.ScheduledFor == nil:
			return false
		case a.ScheduledFor != nil && b.ScheduledFor != nil && !a.ScheduledFor.Equal(*b.ScheduledFor):
			return a.ScheduledFor.Before(*b.ScheduledFor)
		default:
			return a.ID < b.ID
		}
	})
	return out, nil
}

func (m *Memory) FetchByID(_ context.Context, id string) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *Memory) FindByIDAndToken(_ context.Context, id, token string, acceptable []domain.State) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.rows[id]
	if !ok || !n.TokenValid(token, m.Now()) || !stateIn(n.State, acceptable) {
		return nil, apperrors.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *Memory) TransitionState(_ context.Context, id string, expected []domain.State, next domain.State, stampColumn string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.rows[id]
	if !ok || !stateIn(n.State, expected) {
		return 0, nil
	}
	n.State = next
	m.stamp(n, stampColumn)
	return 1, nil
}

func (m *Memory) EnsureActionToken(_ context.Context, id string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.rows[id]
	if !ok {
		return "", apperrors.ErrNotFound
	}
	if n.ActionToken != "" {
		return n.ActionToken, nil
	}
	token, err := NewActionToken()
	if err != nil {
		return "", err
	}
	expires := m.Now().Add(ttl)
	n.ActionToken = token
	n.TokenExpiresAt = &expires
	return token, nil
}

func (m *Memory) ResolvePendingByAlert(_ context.Context, alertID, excludeID string) (int64, error) {
	return m.cascadeByGroup(func(n *domain.Notification) string { return n.AlertID }, alertID, excludeID, domain.StateResolved, "resolved_at")
}

func (m *Memory) CancelPendingBySource(_ context.Context, sourceID, excludeID string) (int64, error) {
	return m.cascadeByGroup(func(n *domain.Notification) string { return n.SourceID }, sourceID, excludeID, domain.StateCancelled, "cancelled_at")
}

func (m *Memory) CancelPendingByAlert(_ context.Context, alertID, excludeID string) (int64, error) {
	return m.cascadeByGroup(func(n *domain.Notification) string { return n.AlertID }, alertID, excludeID, domain.StateCancelled, "cancelled_at")
}

func (m *Memory) cascadeByGroup(key func(*domain.Notification) string, groupValue, excludeID string, next domain.State, stampColumn string) (int64, error) {
	if groupValue == "" {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, n := range m.rows {
		if n.ID == excludeID || n.State != domain.StatePending || key(n) != groupValue {
			continue
		}
		n.State = next
		m.stamp(n, stampColumn)
		count++
	}
	return count, nil
}

func (m *Memory) AppendAudit(_ context.Context, id, action, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, AuditEntry{
		NotificationID: id,
		Action:         action,
		Detail:         detail,
		CreatedAt:      m.Now(),
	})
	return nil
}

func (m *Memory) Create(_ context.Context, n *domain.Notification) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.State == "" {
		n.State = domain.StatePending
	}
	n.Channel = domain.NormalizeChannel(n.Channel)
	n.CreatedAt = m.Now()
	cp := *n
	m.rows[n.ID] = &cp
	return n.ID, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *Memory) Stats(_ context.Context) (map[domain.State]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := make(map[domain.State]int64)
	for _, n := range m.rows {
		stats[n.State]++
	}
	return stats, nil
}

func (m *Memory) PurgeAuditBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.audits[:0]
	var purged int64
	for _, e := range m.audits {
		if e.CreatedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	m.audits = kept
	return purged, nil
}

// stamp sets the lifecycle timestamp, first write wins.
func (m *Memory) stamp(n *domain.Notification, column string) {
	now := m.Now()
	set := func(t **time.Time) {
		if *t == nil {
			cp := now
			*t = &cp
		}
	}
	switch column {
	case "sent_at":
		set(&n.SentAt)
	case "received_at":
		set(&n.ReceivedAt)
	case "resolved_at":
		set(&n.ResolvedAt)
	case "cancelled_at":
		set(&n.CancelledAt)
	}
}

func stateIn(s domain.State, states []domain.State) bool {
	for _, candidate := range states {
		if s == candidate {
			return true
		}
	}
	return false
}
