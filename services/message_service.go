package services

import (
	goerrors "errors"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/chatloop/chatloop/config"
	"github.com/chatloop/chatloop/db"
	errs "github.com/chatloop/chatloop/errors"
	"github.com/chatloop/chatloop/models"
)

// DeletePolicy decides whether a user may remove a message for everyone.
type DeletePolicy interface {
	CanDeleteForEveryone(user *models.User, msg *models.Message) bool
}

// SenderDeletePolicy grants everyone-deletes to the message sender only.
type SenderDeletePolicy struct{}

func (SenderDeletePolicy) CanDeleteForEveryone(user *models.User, msg *models.Message) bool {
	return msg.UserID == user.ID
}

// MessageService owns the per-user deletion state machine and the paginated
// history view.
type MessageService interface {
	History(user *models.User, f models.HistoryFilter) (*models.MessagePage, error)
	Show(user *models.User, messageID uint) (*models.Message, error)
	Delete(user *models.User, messageID uint, everyone bool) (*models.DeleteResult, error)
	BulkDelete(user *models.User, ids []uint, everyone bool) (*models.BulkDeleteResult, error)
	ListConversations(user *models.User) ([]models.Conversation, error)
	HideConversation(user *models.User, conversationID uint) error
}

type messageService struct {
	Config   *config.Config
	msgRepo  db.MessageRepository
	convRepo db.ConversationRepository
	policy   DeletePolicy
}

// NewMessageService creates a new instance of MessageService.
func NewMessageService(msgRepo db.MessageRepository, convRepo db.ConversationRepository, policy DeletePolicy, conf *config.Config) MessageService {
	if policy == nil {
		policy = SenderDeletePolicy{}
	}
	return &messageService{
		Config:   conf,
		msgRepo:  msgRepo,
		convRepo: convRepo,
		policy:   policy,
	}
}

func (s *messageService) History(user *models.User, f models.HistoryFilter) (*models.MessagePage, error) {
	if f.OtherUserID != 0 && f.ConversationID == 0 {
		conv, err := s.convRepo.FindDirect(user.ID, f.OtherUserID)
		if err != nil {
			if goerrors.Is(err, gorm.ErrRecordNotFound) {
				// No history yet with that user.
				return &models.MessagePage{
					Items:       []models.Message{},
					CurrentPage: 1,
					LastPage:    1,
					PageSize:    s.pageSize(f.PageSize),
				}, nil
			}
			return nil, err
		}
		f.ConversationID = conv.ID
	}
	if f.ConversationID != 0 {
		if _, err := s.convRepo.ParticipantFor(f.ConversationID, user.ID); err != nil {
			if goerrors.Is(err, gorm.ErrRecordNotFound) {
				return nil, errs.NotFound("conversation")
			}
			return nil, err
		}
	}

	f.PageSize = s.pageSize(f.PageSize)
	if f.Page < 1 {
		f.Page = 1
	}

	items, total, err := s.msgRepo.History(user.ID, f)
	if err != nil {
		return nil, err
	}

	lastPage := int((total + int64(f.PageSize) - 1) / int64(f.PageSize))
	if lastPage < 1 {
		lastPage = 1
	}

	page := &models.MessagePage{
		Items:       items,
		Total:       total,
		CurrentPage: f.Page,
		LastPage:    lastPage,
		PageSize:    f.PageSize,
	}

	if f.System && f.Page == lastPage {
		s.appendSystemNotices(user, page, f.ConversationID)
	}
	return page, nil
}

// appendSystemNotices adds the two synthetic entries to the final page. They
// are display-only: zero ID, tagged kind, never persisted or counted.
func (s *messageService) appendSystemNotices(user *models.User, page *models.MessagePage, conversationID uint) {
	if conversationID == 0 {
		if len(page.Items) > 0 {
			conversationID = page.Items[0].ConversationID
		} else if conv, err := s.convRepo.LatestForUser(user.ID); err == nil {
			conversationID = conv.ID
		}
	}
	safety := models.Message{
		ConversationID: conversationID,
		Body:           s.Config.SystemSafetyNotice,
		Kind:           models.KindSystem,
	}
	notice := models.Message{
		ConversationID: conversationID,
		Body:           s.Config.SystemChatNotice,
		Kind:           models.KindSystem,
	}
	page.Items = append(page.Items, safety, notice)
}

func (s *messageService) pageSize(requested int) int {
	if requested <= 0 {
		return s.Config.DefaultPageSize
	}
	if requested > s.Config.MaxPageSize {
		return s.Config.MaxPageSize
	}
	return requested
}

func (s *messageService) Show(user *models.User, messageID uint) (*models.Message, error) {
	msg, err := s.msgRepo.FindForUser(user.ID, messageID)
	if err != nil {
		if goerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("message")
		}
		return nil, err
	}
	items := []models.Message{*msg}
	if err := s.msgRepo.LoadReplies(items); err != nil {
		return nil, err
	}
	out := items[0]
	return &out, nil
}

func (s *messageService) Delete(user *models.User, messageID uint, everyone bool) (*models.DeleteResult, error) {
	msg, err := s.msgRepo.FindForUser(user.ID, messageID)
	if err != nil {
		if goerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("message")
		}
		return nil, err
	}
	return s.transition(user, msg, everyone)
}

// transition advances one message through Visible -> HiddenForUser -> Purged.
func (s *messageService) transition(user *models.User, msg *models.Message, everyone bool) (*models.DeleteResult, error) {
	result := &models.DeleteResult{MessageID: msg.ID}

	done, err := s.participantsHaveDeleted(msg)
	if err != nil {
		return nil, err
	}
	if done {
		// Every participant already hid it; finish the cleanup instead of
		// stacking another marker.
		if err := s.msgRepo.Purge(msg.ID); err != nil {
			return nil, err
		}
		result.Purged = true
		return result, nil
	}

	if everyone {
		if s.policy.CanDeleteForEveryone(user, msg) {
			// Tombstone rather than hard-delete: the visibility filters
			// exclude the row for every participant from here on.
			if err := s.msgRepo.MarkDeletedForAll(msg.ID); err != nil {
				return nil, err
			}
			log.WithFields(log.Fields{
				"message_id": msg.ID,
				"user_id":    user.ID,
			}).Info("message deleted for everyone")
			result.Purged = true
			return result, nil
		}
		// Not authorized: degrade to delete-for-me rather than reject.
		result.Degraded = true
	}

	if err := s.msgRepo.MarkHidden(msg.ID, user.ID); err != nil {
		return nil, err
	}
	result.Hidden = true

	// The caller may have been the last participant holding the message
	// visible.
	done, err = s.participantsHaveDeleted(msg)
	if err != nil {
		return nil, err
	}
	if done {
		if err := s.msgRepo.Purge(msg.ID); err != nil {
			return nil, err
		}
		result.Purged = true
	}
	return result, nil
}

// participantsHaveDeleted reports whether every current participant of the
// message's conversation holds a hidden marker for it.
func (s *messageService) participantsHaveDeleted(msg *models.Message) (bool, error) {
	participants, err := s.convRepo.Participants(msg.ConversationID)
	if err != nil {
		return false, err
	}
	hidden, err := s.msgRepo.HiddenUserIDs(msg.ID)
	if err != nil {
		return false, err
	}
	hiddenSet := make(map[uint]bool, len(hidden))
	for _, id := range hidden {
		hiddenSet[id] = true
	}
	for _, p := range participants {
		if !hiddenSet[p.UserID] {
			return false, nil
		}
	}
	return len(participants) > 0, nil
}

func (s *messageService) BulkDelete(user *models.User, ids []uint, everyone bool) (*models.BulkDeleteResult, error) {
	visible, err := s.msgRepo.VisibleForUser(user.ID, ids)
	if err != nil {
		return nil, err
	}
	visibleSet := make(map[uint]*models.Message, len(visible))
	for i := range visible {
		visibleSet[visible[i].ID] = &visible[i]
	}

	result := &models.BulkDeleteResult{}
	for _, id := range ids {
		msg, ok := visibleSet[id]
		if !ok {
			// Ids the caller cannot see are skipped, not errored.
			result.Skipped = append(result.Skipped, id)
			continue
		}
		res, err := s.transition(user, msg, everyone)
		if err != nil {
			log.WithError(err).WithField("message_id", id).Warn("bulk delete transition")
			result.Skipped = append(result.Skipped, id)
			continue
		}
		result.Results = append(result.Results, *res)
		result.Deleted++
	}
	return result, nil
}

func (s *messageService) ListConversations(user *models.User) ([]models.Conversation, error) {
	return s.convRepo.ListForUser(user.ID)
}

func (s *messageService) HideConversation(user *models.User, conversationID uint) error {
	err := s.convRepo.HideForUser(conversationID, user.ID, time.Now())
	if err != nil {
		if goerrors.Is(err, gorm.ErrRecordNotFound) {
			return errs.NotFound("conversation")
		}
		return err
	}
	return nil
}
