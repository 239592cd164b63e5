package models

// CreateMessageParams carries a validated send request into the chat service.
type CreateMessageParams struct {
	ConversationID uint
	OtherUserID    uint
	Body           string
	ReplyID        *uint
	ReplyType      string
	Token          string
	Attachments    []Attachment
}

// Attachment is opaque media metadata forwarded on the MessageCreated event.
// Media storage itself is handled outside this service.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

// HistoryFilter selects and pages a user's message history.
type HistoryFilter struct {
	ConversationID uint
	OtherUserID    uint
	Search         string
	Order          string
	OrderBy        string
	Page           int
	PageSize       int
	ReplyID        uint
	ReplyType      string
	System         bool
}

// MessagePage is one page of history. Totals count persisted rows only;
// synthetic entries appended to Items are never included in them.
type MessagePage struct {
	Items       []Message `json:"data"`
	Total       int64     `json:"total"`
	CurrentPage int       `json:"current_page"`
	LastPage    int       `json:"last_page"`
	PageSize    int       `json:"per_page"`
}

// DeleteResult reports the outcome of a single-message delete.
type DeleteResult struct {
	MessageID uint `json:"message_id"`
	// Hidden is set when the delete applied to the caller only.
	Hidden bool `json:"hidden"`
	// Purged is set when the message was removed for everyone.
	Purged bool `json:"purged"`
	// Degraded is set when an everyone-delete was requested but not
	// authorized, and the call fell back to delete-for-me.
	Degraded bool `json:"degraded,omitempty"`
}

// BulkDeleteResult reports a partial-success bulk delete: ids the caller
// could not act on are skipped, not errored.
type BulkDeleteResult struct {
	Results []DeleteResult `json:"results"`
	Deleted int            `json:"deleted"`
	Skipped []uint         `json:"skipped,omitempty"`
}

// MessageCreatedEvent is the broadcast payload emitted once per genuinely
// created message. Idempotent replays emit nothing.
type MessageCreatedEvent struct {
	EventID     string       `json:"event_id"`
	Type        string       `json:"type"`
	Message     *Message     `json:"message"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ConversationCreatedEvent announces lazily created conversations.
type ConversationCreatedEvent struct {
	EventID      string        `json:"event_id"`
	Type         string        `json:"type"`
	Conversation *Conversation `json:"conversation"`
}
