// Package domain defines the core notification model shared by the
// repository, the lifecycle engine and the channel senders. There is one
// canonical schema; no component carries its own field-name variant.
package domain

import "time"

// State is the lifecycle state of a notification. The string values are
// persisted as-is and must not change.
type State string

const (
	StatePending   State = "pending"
	StateSent      State = "sent"
	StatePartial   State = "partial"
	StateError     State = "error"
	StateReceived  State = "received"
	StateResolved  State = "resolved"
	StateCancelled State = "cancelled"
)

// Channel identifies the outbound transport for a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelChat  Channel = "chat"
)

// Notification is the central entity tracked through the lifecycle.
type Notification struct {
	ID string `json:"id"`

	// SourceID links notifications spawned from the same originating
	// event. Legacy grouping key: only the cancel cascade honours it.
	SourceID string `json:"source_id,omitempty"`

	// AlertID links notifications that surface the same underlying alert
	// to multiple recipients or channels. Primary cascade key.
	AlertID string `json:"alert_id,omitempty"`

	// TypeID refers to a notification type carrying default recipients,
	// subject and body. Optional.
	TypeID string `json:"type_id,omitempty"`

	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel"`

	// Recipients is the raw per-notification destination override as
	// stored (`;` or `,` separated for email, a single phone number for
	// chat). FetchDue merges it with the type default and the dispatcher
	// splits and deduplicates it.
	Recipients string `json:"recipients"`

	State State `json:"state"`

	// ScheduledFor defers dispatch. Nil means "as soon as due"; only the
	// calendar date is significant, never the time of day.
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`

	// ActionToken is the opaque bearer credential embedded in action
	// links. Created lazily on first send, never rotated afterwards so
	// links from every resend stay valid.
	ActionToken    string     `json:"-"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`

	SentAt      *time.Time `json:"sent_at,omitempty"`
	ReceivedAt  *time.Time `json:"received_at,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// transitions is the directed lifecycle graph. resolved and cancelled
// absorb from each other so late resolve/cancel overrides stay possible,
// but nothing leaves a terminal state otherwise.
var transitions = map[State][]State{
	StatePending:   {StateSent, StatePartial, StateError},
	StateSent:      {StateReceived, StateResolved, StateCancelled},
	StatePartial:   {StateReceived, StateResolved, StateCancelled},
	StateReceived:  {StateResolved, StateCancelled},
	StateResolved:  {StateCancelled},
	StateCancelled: {StateResolved},
	StateError:     {},
}

// CanTransition reports whether moving from -> to is legal.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s stops automated processing. error is
// terminal for the dispatch loop; resolved and cancelled are terminal for
// recipient actions (re-applying them is an idempotent no-op).
func IsTerminal(s State) bool {
	return s == StateError || s == StateResolved || s == StateCancelled
}

// TimestampColumn returns the audit timestamp column set alongside a
// transition into s, or "" when the state carries no timestamp of its own.
func TimestampColumn(s State) string {
	switch s {
	case StateSent, StatePartial:
		return "sent_at"
	case StateReceived:
		return "received_at"
	case StateResolved:
		return "resolved_at"
	case StateCancelled:
		return "cancelled_at"
	default:
		return ""
	}
}

// ValidState reports whether s is one of the persisted state values.
func ValidState(s State) bool {
	switch s {
	case StatePending, StateSent, StatePartial, StateError,
		StateReceived, StateResolved, StateCancelled:
		return true
	}
	return false
}

// NormalizeChannel maps the stored channel value to its effective one.
// Rows written before the channel column existed have an empty channel
// and are treated as email.
func NormalizeChannel(c Channel) Channel {
	if c == "" {
		return ChannelEmail
	}
	return c
}

// Due reports whether the notification is eligible for dispatch at now.
// The comparison is on calendar dates only: a notification scheduled for
// yesterday 23:59 is due today at 00:00.
func (n *Notification) Due(now time.Time) bool {
	if n.ScheduledFor == nil {
		return true
	}
	sy, sm, sd := n.ScheduledFor.Date()
	ny, nm, nd := now.Date()
	scheduled := time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return !scheduled.After(today)
}

// TokenValid reports whether the action token authorizes actions at now.
func (n *Notification) TokenValid(token string, now time.Time) bool {
	if n.ActionToken == "" || token == "" || n.ActionToken != token {
		return false
	}
	return n.TokenExpiresAt != nil && n.TokenExpiresAt.After(now)
}
