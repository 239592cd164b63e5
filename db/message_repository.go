package db

import (
	goerrors "errors"
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/chatloop/chatloop/models"
)

// MessageRepository owns message rows, their meta and their per-user delete
// markers.
type MessageRepository interface {
	FindByID(id uint) (*models.Message, error)
	// FindForUser loads a message only if userID participates in its
	// conversation.
	FindForUser(userID, id uint) (*models.Message, error)
	FindByToken(conversationID uint, token string) (*models.Message, error)
	Create(msg *models.Message) error
	// CreateWithToken persists the message and its token meta in one
	// transaction. When a concurrent call with the same token wins the
	// unique index, the winner's row is returned with created == false.
	CreateWithToken(msg *models.Message, token string) (bool, error)
	History(userID uint, f models.HistoryFilter) ([]models.Message, int64, error)
	// VisibleForUser returns the subset of ids the user participates in and
	// has not already hidden.
	VisibleForUser(userID uint, ids []uint) ([]models.Message, error)
	MarkHidden(messageID, userID uint) error
	// MarkDeletedForAll tombstones the message for every participant. The
	// row is kept; visibility filters exclude it everywhere.
	MarkDeletedForAll(messageID uint) error
	HiddenUserIDs(messageID uint) ([]uint, error)
	Purge(messageID uint) error
	LoadReplies(msgs []models.Message) error
}

type messageRepo struct {
	DB *gorm.DB
}

func NewMessageRepo(db *GormDB) MessageRepository {
	return &messageRepo{db.DB}
}

func (r *messageRepo) FindByID(id uint) (*models.Message, error) {
	var msg models.Message
	err := r.DB.Preload("Sender").Preload("Metas").Preload("Deletes").
		First(&msg, id).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) FindForUser(userID, id uint) (*models.Message, error) {
	var msg models.Message
	err := r.DB.Preload("Sender").Preload("Deletes").
		Joins("JOIN participants p ON p.conversation_id = messages.conversation_id AND p.user_id = ?", userID).
		Where("messages.deleted_for_all = ?", false).
		First(&msg, "messages.id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) FindByToken(conversationID uint, token string) (*models.Message, error) {
	var msg models.Message
	err := r.DB.Preload("Sender").Preload("Metas").
		Joins("JOIN message_metas mm ON mm.message_id = messages.id").
		Where("mm.conversation_id = ? AND mm.name = ? AND mm.value = ?",
			conversationID, models.MetaToken, token).
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) Create(msg *models.Message) error {
	return r.DB.Create(msg).Error
}

func (r *messageRepo) CreateWithToken(msg *models.Message, token string) (bool, error) {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		meta := models.MessageMeta{
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			Name:           models.MetaToken,
			Value:          token,
		}
		return tx.Create(&meta).Error
	})
	if err == nil {
		return true, nil
	}
	// The token's unique index rejected us: another call already created
	// this message. Resolve to the existing row instead of surfacing a
	// conflict.
	if goerrors.Is(err, gorm.ErrDuplicatedKey) {
		existing, ferr := r.FindByToken(msg.ConversationID, token)
		if ferr != nil {
			return false, errors.Wrap(ferr, "reread after duplicate token")
		}
		*msg = *existing
		return false, nil
	}
	return false, errors.Wrap(err, "create message")
}

func (r *messageRepo) visibleQuery(userID uint) *gorm.DB {
	return r.DB.Model(&models.Message{}).
		Joins("JOIN participants p ON p.conversation_id = messages.conversation_id AND p.user_id = ?", userID).
		Where("messages.deleted_for_all = ?", false).
		Where("NOT EXISTS (SELECT 1 FROM message_deletes md WHERE md.message_id = messages.id AND md.user_id = ?)", userID).
		Where("p.hidden_at IS NULL OR messages.created_at > p.hidden_at")
}

func (r *messageRepo) History(userID uint, f models.HistoryFilter) ([]models.Message, int64, error) {
	q := r.visibleQuery(userID)

	if f.ConversationID != 0 {
		q = q.Where("messages.conversation_id = ?", f.ConversationID)
	}
	if f.Search != "" {
		q = q.Where("messages.body ILIKE ?", "%"+f.Search+"%")
	}
	if f.ReplyID != 0 {
		q = q.Where("messages.reply_id = ?", f.ReplyID)
	}
	if f.ReplyType != "" {
		q = q.Where("messages.reply_type = ?", f.ReplyType)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count history")
	}

	orderBy := "created_at"
	switch f.OrderBy {
	case "", "created_at", "id":
		if f.OrderBy != "" {
			orderBy = f.OrderBy
		}
	default:
		return nil, 0, fmt.Errorf("unsupported order column %q", f.OrderBy)
	}
	order := "DESC"
	if f.Order == "asc" {
		order = "ASC"
	}

	offset := (f.Page - 1) * f.PageSize
	var msgs []models.Message
	err := q.Preload("Sender").Preload("Deletes").
		Order(fmt.Sprintf("messages.%s %s", orderBy, order)).
		Limit(f.PageSize).
		Offset(offset).
		Find(&msgs).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "load history")
	}

	if err := r.LoadReplies(msgs); err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// LoadReplies attaches the directly referenced message to each entry with a
// message-kind reply, one level deep.
func (r *messageRepo) LoadReplies(msgs []models.Message) error {
	var ids []uint
	for i := range msgs {
		if msgs[i].ReplyID != nil && msgs[i].ReplyType == models.ReplyKindMessage {
			ids = append(ids, *msgs[i].ReplyID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	var replies []models.Message
	if err := r.DB.Preload("Sender").Where("id IN ?", ids).Find(&replies).Error; err != nil {
		return errors.Wrap(err, "load replies")
	}
	byID := make(map[uint]*models.Message, len(replies))
	for i := range replies {
		byID[replies[i].ID] = &replies[i]
	}
	for i := range msgs {
		if msgs[i].ReplyID != nil {
			msgs[i].Reply = byID[*msgs[i].ReplyID]
		}
	}
	return nil
}

func (r *messageRepo) VisibleForUser(userID uint, ids []uint) ([]models.Message, error) {
	var msgs []models.Message
	err := r.visibleQuery(userID).
		Preload("Deletes").
		Where("messages.id IN ?", ids).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *messageRepo) MarkHidden(messageID, userID uint) error {
	marker := models.MessageDelete{MessageID: messageID, UserID: userID}
	err := r.DB.Create(&marker).Error
	// Hiding twice is a no-op, not an error.
	if err != nil && goerrors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

func (r *messageRepo) MarkDeletedForAll(messageID uint) error {
	return r.DB.Model(&models.Message{}).Where("id = ?", messageID).
		Update("deleted_for_all", true).Error
}

func (r *messageRepo) HiddenUserIDs(messageID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.Model(&models.MessageDelete{}).
		Where("message_id = ?", messageID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Purge permanently removes a message row with its meta and markers. This is
// irreversible; callers gate it on the all-participants condition or on an
// authorized everyone-delete.
func (r *messageRepo) Purge(messageID uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", messageID).Delete(&models.MessageMeta{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", messageID).Delete(&models.MessageDelete{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Message{}, messageID).Error
	})
}
