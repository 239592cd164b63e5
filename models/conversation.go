package models

import (
	"fmt"
	"time"
)

// Conversation is a direct two-party thread. PairKey is the canonical
// "minID:maxID" of the two participants; its unique index is what makes
// first-contact creation race-free.
type Conversation struct {
	Model
	UserID       uint          `gorm:"not null;index" json:"user_id"`
	PairKey      string        `gorm:"uniqueIndex:ux_conversations_pair;not null" json:"-"`
	LastMessage  string        `json:"last_message"`
	LastSentAt   *time.Time    `json:"last_sent_at,omitempty"`
	Participants []Participant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
	Messages     []Message     `gorm:"foreignKey:ConversationID" json:"-"`
}

// DirectPairKey returns the canonical pair key for two user ids, independent
// of argument order.
func DirectPairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// Participant links a user to a conversation. HiddenAt is the per-user
// clear marker: messages created at or before it are excluded from that
// user's history without affecting anyone else.
type Participant struct {
	Model
	ConversationID uint       `gorm:"uniqueIndex:ux_participants_conv_user;not null" json:"conversation_id"`
	UserID         uint       `gorm:"uniqueIndex:ux_participants_conv_user;not null" json:"user_id"`
	HiddenAt       *time.Time `json:"hidden_at,omitempty"`
	User           User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// OtherParticipantIDs returns participant user ids excluding userID.
func (c *Conversation) OtherParticipantIDs(userID uint) []uint {
	var ids []uint
	for _, p := range c.Participants {
		if p.UserID != userID {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}
