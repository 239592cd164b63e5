package services

import (
	goerrors "errors"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/chatloop/chatloop/config"
	"github.com/chatloop/chatloop/db"
	errs "github.com/chatloop/chatloop/errors"
	"github.com/chatloop/chatloop/models"
)

// ChatService coordinates conversation resolution and idempotent message
// creation.
type ChatService interface {
	// ResolveConversation returns the conversation addressed by exactly one
	// of conversationID / otherUserID, lazily creating the direct
	// conversation on first contact.
	ResolveConversation(user *models.User, conversationID, otherUserID uint) (*models.Conversation, error)
	// CreateMessage persists a message at most once per client token. The
	// bool reports whether this call created the row; replayed tokens
	// return the original message and emit no event.
	CreateMessage(user *models.User, params models.CreateMessageParams) (*models.Message, bool, error)
}

type chatService struct {
	Config      *config.Config
	convRepo    db.ConversationRepository
	msgRepo     db.MessageRepository
	authRepo    db.AuthRepository
	broadcaster Broadcaster
}

// NewChatService creates a new instance of ChatService.
func NewChatService(convRepo db.ConversationRepository, msgRepo db.MessageRepository, authRepo db.AuthRepository, broadcaster Broadcaster, conf *config.Config) ChatService {
	return &chatService{
		Config:      conf,
		convRepo:    convRepo,
		msgRepo:     msgRepo,
		authRepo:    authRepo,
		broadcaster: broadcaster,
	}
}

func (s *chatService) ResolveConversation(user *models.User, conversationID, otherUserID uint) (*models.Conversation, error) {
	if conversationID != 0 {
		conv, err := s.convRepo.FindForUser(user.ID, conversationID)
		if err != nil {
			if goerrors.Is(err, gorm.ErrRecordNotFound) {
				return nil, errs.NotFound("conversation")
			}
			return nil, err
		}
		return conv, nil
	}

	if otherUserID == 0 {
		return nil, errs.Validation("conversation_id or other_user_id is required")
	}
	if otherUserID == user.ID {
		return nil, errs.Validation("cannot open a conversation with yourself")
	}

	other, err := s.authRepo.FindUserByID(otherUserID)
	if err != nil {
		if goerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("user")
		}
		return nil, err
	}

	conv, created, err := s.convRepo.FindOrCreateDirect(user.ID, other.ID)
	if err != nil {
		return nil, err
	}
	if created {
		log.WithFields(log.Fields{
			"conversation_id": conv.ID,
			"user_id":         user.ID,
			"other_user_id":   other.ID,
		}).Info("conversation created")
		s.broadcaster.ConversationCreated(conv)
	}
	return conv, nil
}

func (s *chatService) CreateMessage(user *models.User, params models.CreateMessageParams) (*models.Message, bool, error) {
	conv, err := s.ResolveConversation(user, params.ConversationID, params.OtherUserID)
	if err != nil {
		return nil, false, err
	}

	reply, err := s.resolveReply(conv, params.ReplyID, params.ReplyType)
	if err != nil {
		return nil, false, err
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		UserID:         user.ID,
		Body:           params.Body,
		ReplyID:        params.ReplyID,
		ReplyType:      params.ReplyType,
	}

	created := true
	if params.Token != "" {
		if existing, err := s.msgRepo.FindByToken(conv.ID, params.Token); err == nil {
			// Idempotent replay: hand back the original, no side effects.
			items := []models.Message{*existing}
			if lerr := s.msgRepo.LoadReplies(items); lerr != nil {
				log.WithError(lerr).Warn("load reply on replay")
			}
			replay := items[0]
			return &replay, false, nil
		} else if !goerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, err
		}
		created, err = s.msgRepo.CreateWithToken(msg, params.Token)
		if err != nil {
			return nil, false, err
		}
	} else {
		if err := s.msgRepo.Create(msg); err != nil {
			return nil, false, err
		}
	}

	msg.Reply = reply
	msg.Sender = *user

	if created {
		if err := s.convRepo.UpdateLastMessage(conv.ID, msg.Body, msg.CreatedAt); err != nil {
			log.WithError(err).WithField("conversation_id", conv.ID).
				Warn("update conversation preview")
		}
		log.WithFields(log.Fields{
			"message_id":      msg.ID,
			"conversation_id": conv.ID,
			"user_id":         user.ID,
		}).Info("message created")
		s.broadcaster.MessageCreated(msg, params.Attachments)
	}
	return msg, created, nil
}

// resolveReply validates the reply reference against the closed kind
// registry and loads the target (with its own reply, one level) before
// anything is written.
func (s *chatService) resolveReply(conv *models.Conversation, replyID *uint, replyType string) (*models.Message, error) {
	if replyID == nil {
		if replyType != "" {
			return nil, errs.Validation("reply_type requires reply_id")
		}
		return nil, nil
	}
	if replyType == "" {
		return nil, errs.Validation("reply_type is required when reply_id is present")
	}
	if !models.RepliableKinds[replyType] {
		return nil, errs.Validation("unsupported reply_type")
	}

	target, err := s.msgRepo.FindByID(*replyID)
	if err != nil {
		if goerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Validation("reply target does not exist")
		}
		return nil, err
	}
	if target.ConversationID != conv.ID {
		return nil, errs.Validation("reply target belongs to another conversation")
	}
	targets := []models.Message{*target}
	if err := s.msgRepo.LoadReplies(targets); err != nil {
		return nil, err
	}
	return &targets[0], nil
}
