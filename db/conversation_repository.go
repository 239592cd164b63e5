package db

import (
	"time"

	goerrors "errors"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/chatloop/chatloop/models"
)

// ConversationRepository owns conversation and participant rows.
type ConversationRepository interface {
	FindByID(id uint) (*models.Conversation, error)
	// FindForUser loads a conversation only if userID is a participant.
	FindForUser(userID, conversationID uint) (*models.Conversation, error)
	FindDirect(userA, userB uint) (*models.Conversation, error)
	// FindOrCreateDirect returns the unique direct conversation between the
	// two users, creating it with participant rows for both when absent.
	// The second return reports whether a row was created by this call.
	FindOrCreateDirect(creatorID, otherID uint) (*models.Conversation, bool, error)
	ListForUser(userID uint) ([]models.Conversation, error)
	Participants(conversationID uint) ([]models.Participant, error)
	ParticipantFor(conversationID, userID uint) (*models.Participant, error)
	HideForUser(conversationID, userID uint, at time.Time) error
	UpdateLastMessage(conversationID uint, preview string, at time.Time) error
	LatestForUser(userID uint) (*models.Conversation, error)
}

type conversationRepo struct {
	DB *gorm.DB
}

func NewConversationRepo(db *GormDB) ConversationRepository {
	return &conversationRepo{db.DB}
}

func (r *conversationRepo) FindByID(id uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.DB.Preload("Participants").First(&conv, id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) FindForUser(userID, conversationID uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.DB.Preload("Participants").
		Joins("JOIN participants p ON p.conversation_id = conversations.id AND p.user_id = ?", userID).
		First(&conv, "conversations.id = ?", conversationID).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) FindDirect(userA, userB uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.DB.Preload("Participants").
		Where("pair_key = ?", models.DirectPairKey(userA, userB)).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) FindOrCreateDirect(creatorID, otherID uint) (*models.Conversation, bool, error) {
	if conv, err := r.FindDirect(creatorID, otherID); err == nil {
		return conv, false, nil
	} else if !goerrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	conv := models.Conversation{
		UserID:  creatorID,
		PairKey: models.DirectPairKey(creatorID, otherID),
	}
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}
		participants := []models.Participant{
			{ConversationID: conv.ID, UserID: creatorID},
			{ConversationID: conv.ID, UserID: otherID},
		}
		return tx.Create(&participants).Error
	})
	if err != nil {
		// A concurrent first-contact request won the pair-key index; the
		// existing row is the legitimate result.
		if goerrors.Is(err, gorm.ErrDuplicatedKey) {
			existing, ferr := r.FindDirect(creatorID, otherID)
			if ferr != nil {
				return nil, false, errors.Wrap(ferr, "reread after duplicate conversation")
			}
			return existing, false, nil
		}
		return nil, false, errors.Wrap(err, "create conversation")
	}

	created, err := r.FindByID(conv.ID)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (r *conversationRepo) ListForUser(userID uint) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.DB.Preload("Participants.User").
		Joins("JOIN participants p ON p.conversation_id = conversations.id AND p.user_id = ?", userID).
		Where("p.hidden_at IS NULL OR conversations.last_sent_at > p.hidden_at").
		Order("conversations.last_sent_at DESC NULLS LAST").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

func (r *conversationRepo) Participants(conversationID uint) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.DB.Where("conversation_id = ?", conversationID).Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *conversationRepo) ParticipantFor(conversationID, userID uint) (*models.Participant, error) {
	var participant models.Participant
	err := r.DB.Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&participant).Error
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *conversationRepo) HideForUser(conversationID, userID uint, at time.Time) error {
	res := r.DB.Model(&models.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("hidden_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *conversationRepo) UpdateLastMessage(conversationID uint, preview string, at time.Time) error {
	return r.DB.Model(&models.Conversation{}).Where("id = ?", conversationID).
		Updates(map[string]interface{}{"last_message": preview, "last_sent_at": at}).Error
}

func (r *conversationRepo) LatestForUser(userID uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.DB.
		Joins("JOIN participants p ON p.conversation_id = conversations.id AND p.user_id = ?", userID).
		Order("conversations.created_at DESC").
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}
