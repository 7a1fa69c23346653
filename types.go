package lucide

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleUser marks a message typed by the user.
	RoleUser Role = "user"

	// RoleAssistant marks a message produced by the assistant.
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a conversation transcript. The content of an
// in-flight assistant message is mutated in place as chunks arrive; the
// timestamp is set once at creation and never changes.
type Message struct {
	// Role is "user" or "assistant".
	Role Role `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// Timestamp is when the message was created.
	Timestamp time.Time `json:"timestamp"`
}

// ContextSelection carries the optional league/match/team/player filters
// attached to a send. The engine passes it through to the streaming channel
// untouched.
type ContextSelection struct {
	LeagueID string `json:"leagueId,omitempty"`
	MatchID  string `json:"matchId,omitempty"`
	TeamID   string `json:"teamId,omitempty"`
	PlayerID string `json:"playerId,omitempty"`
}

// DefaultTitle is the placeholder title a conversation keeps until its first
// user message is known.
const DefaultTitle = "Conversation"

// Conversation is one named exchange with the assistant. It is either
// server-backed (identity assigned by the remote service) or a purely local
// draft awaiting promotion.
type Conversation struct {
	// ID is the conversation identity: either an opaque server-assigned
	// session identity or a locally generated draft identity.
	ID string `json:"id"`

	// Title defaults to DefaultTitle until derived from the first user message.
	Title string `json:"title"`

	// Preview is a short excerpt shown in listings.
	Preview string `json:"preview"`

	// DateLabel is the human-facing relative date derived from UpdatedAt.
	DateLabel string `json:"dateLabel"`

	// Messages in insertion order, which is chronological order.
	Messages []Message `json:"messages"`

	// Context is the structured filter selection attached at send time.
	Context *ContextSelection `json:"context,omitempty"`

	// Archived flags the conversation as hidden from the main listing.
	Archived bool `json:"isArchived"`

	// CreatedAt is immutable once set.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt drives the store's most-recently-updated-first ordering.
	UpdatedAt time.Time `json:"updatedAt"`
}

// draftPrefix tags locally generated identities the server has not confirmed.
const draftPrefix = "draft-"

// NewDraftID generates a provisional conversation identity.
func NewDraftID() string {
	return draftPrefix + uuid.New().String()
}

// IsDraftID reports whether id is a locally generated, unconfirmed identity.
func IsDraftID(id string) bool {
	return strings.HasPrefix(id, draftPrefix)
}

// IsDraft reports whether the conversation has no server identity yet.
func (c *Conversation) IsDraft() bool {
	return IsDraftID(c.ID)
}

// ConversationSummary is the listing projection returned by the conversation
// service in the server-authoritative mode.
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Archived  bool      `json:"isArchived"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ConversationPatch is a partial update confirmed against the conversation
// service. Nil fields are left untouched.
type ConversationPatch struct {
	Title    *string `json:"title,omitempty"`
	Archived *bool   `json:"isArchived,omitempty"`
}
