package models

// KindSystem tags a non-persisted, display-only entry injected into the last
// page of a history listing. Synthetic entries keep a zero ID so they can
// never be mistaken for rows.
const KindSystem = "system"

// ReplyKindMessage is the only repliable entity kind supported today.
const ReplyKindMessage = "message"

// RepliableKinds is the closed registry of entity kinds a message may reply
// to. Unknown kinds are rejected before anything is persisted.
var RepliableKinds = map[string]bool{
	ReplyKindMessage: true,
}

// Message is a persisted chat message. Per-user deletion is a set of
// MessageDelete markers; DeletedForAll tombstones a message removed for
// everyone, hiding it from every participant while keeping the row.
type Message struct {
	Model
	ConversationID uint   `gorm:"not null;index" json:"conversation_id"`
	UserID         uint   `gorm:"not null;index" json:"user_id"`
	Body           string `gorm:"type:text" json:"message"`
	ReplyID        *uint  `json:"reply_id,omitempty"`
	ReplyType      string `json:"reply_type,omitempty"`
	DeletedForAll  bool   `gorm:"default:false" json:"-"`

	// Kind is empty for persisted rows and KindSystem for synthetic entries.
	Kind string `gorm:"-" json:"kind,omitempty"`

	Sender  User            `gorm:"foreignKey:UserID" json:"sender,omitempty"`
	Reply   *Message        `gorm:"-" json:"reply,omitempty"`
	Metas   []MessageMeta   `gorm:"foreignKey:MessageID" json:"metas,omitempty"`
	Deletes []MessageDelete `gorm:"foreignKey:MessageID" json:"trashed,omitempty"`
}

// System reports whether the entry is synthetic.
func (m *Message) System() bool {
	return m.Kind == KindSystem
}

// HiddenFor reports whether userID has a delete marker on the loaded message.
func (m *Message) HiddenFor(userID uint) bool {
	for _, d := range m.Deletes {
		if d.UserID == userID {
			return true
		}
	}
	return false
}

// MessageDelete marks a message hidden for one user. The composite unique
// index makes repeated hides idempotent at the storage level.
type MessageDelete struct {
	Model
	MessageID uint `gorm:"uniqueIndex:ux_message_deletes_msg_user;not null" json:"message_id"`
	UserID    uint `gorm:"uniqueIndex:ux_message_deletes_msg_user;not null" json:"user_id"`
}
