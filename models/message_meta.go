package models

// MetaToken is the meta name under which the client idempotency token is
// stored.
const MetaToken = "token"

// MessageMeta is a key/value pair attached to a message. ConversationID is
// denormalized onto the row so the composite unique index can guarantee at
// most one message per (conversation, name, value), which is the constraint
// that makes message creation idempotent.
type MessageMeta struct {
	Model
	MessageID      uint   `gorm:"not null;index" json:"message_id"`
	ConversationID uint   `gorm:"not null;uniqueIndex:ux_message_metas_conv_name_value,priority:1" json:"conversation_id"`
	Name           string `gorm:"not null;uniqueIndex:ux_message_metas_conv_name_value,priority:2" json:"name"`
	Value          string `gorm:"not null;uniqueIndex:ux_message_metas_conv_name_value,priority:3" json:"value"`
}
