package services

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/chatloop/chatloop/config"
	"github.com/chatloop/chatloop/models"
)

func testConfig() *config.Config {
	return &config.Config{
		DefaultPageSize:    15,
		MaxPageSize:        100,
		SystemSafetyNotice: "safety notice",
		SystemChatNotice:   "chat notice",
	}
}

type fakeAuthRepo struct {
	users map[uint]*models.User
}

func newFakeAuthRepo(users ...*models.User) *fakeAuthRepo {
	r := &fakeAuthRepo{users: map[uint]*models.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeAuthRepo) FindUserByID(id uint) (*models.User, error) {
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAuthRepo) IsTokenInBlacklist(string) bool              { return false }
func (r *fakeAuthRepo) AddToBlacklist(*models.Blacklist) error      { return nil }
func (r *fakeAuthRepo) UpdateUserOnline(id uint, online bool) error { return nil }

type fakeConversationRepo struct {
	mu            sync.Mutex
	nextID        uint
	conversations map[uint]*models.Conversation
	participants  []*models.Participant
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{conversations: map[uint]*models.Conversation{}}
}

func (r *fakeConversationRepo) clone(c *models.Conversation) *models.Conversation {
	out := *c
	out.Participants = nil
	for _, p := range r.participants {
		if p.ConversationID == c.ID {
			out.Participants = append(out.Participants, *p)
		}
	}
	return &out
}

func (r *fakeConversationRepo) FindByID(id uint) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conversations[id]; ok {
		return r.clone(c), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeConversationRepo) FindForUser(userID, conversationID uint) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[conversationID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	for _, p := range r.participants {
		if p.ConversationID == conversationID && p.UserID == userID {
			return r.clone(c), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeConversationRepo) FindDirect(userA, userB uint) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := models.DirectPairKey(userA, userB)
	for _, c := range r.conversations {
		if c.PairKey == key {
			return r.clone(c), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// createDirect enforces the pair-key unique index the way the database
// would: a second insert for the same pair fails with ErrDuplicatedKey.
func (r *fakeConversationRepo) createDirect(creatorID, otherID uint) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := models.DirectPairKey(creatorID, otherID)
	for _, c := range r.conversations {
		if c.PairKey == key {
			return nil, gorm.ErrDuplicatedKey
		}
	}
	r.nextID++
	conv := &models.Conversation{
		Model:   models.Model{ID: r.nextID, CreatedAt: time.Now()},
		UserID:  creatorID,
		PairKey: key,
	}
	r.conversations[conv.ID] = conv
	r.participants = append(r.participants,
		&models.Participant{ConversationID: conv.ID, UserID: creatorID},
		&models.Participant{ConversationID: conv.ID, UserID: otherID},
	)
	return r.clone(conv), nil
}

func (r *fakeConversationRepo) FindOrCreateDirect(creatorID, otherID uint) (*models.Conversation, bool, error) {
	if c, err := r.FindDirect(creatorID, otherID); err == nil {
		return c, false, nil
	}
	conv, err := r.createDirect(creatorID, otherID)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, ferr := r.FindDirect(creatorID, otherID)
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return conv, true, nil
}

func (r *fakeConversationRepo) ListForUser(userID uint) ([]models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Conversation
	for _, p := range r.participants {
		if p.UserID != userID {
			continue
		}
		c := r.conversations[p.ConversationID]
		if p.HiddenAt != nil && (c.LastSentAt == nil || !c.LastSentAt.After(*p.HiddenAt)) {
			continue
		}
		out = append(out, *r.clone(c))
	}
	return out, nil
}

func (r *fakeConversationRepo) Participants(conversationID uint) ([]models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Participant
	for _, p := range r.participants {
		if p.ConversationID == conversationID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeConversationRepo) ParticipantFor(conversationID, userID uint) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		if p.ConversationID == conversationID && p.UserID == userID {
			out := *p
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeConversationRepo) HideForUser(conversationID, userID uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		if p.ConversationID == conversationID && p.UserID == userID {
			t := at
			p.HiddenAt = &t
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeConversationRepo) UpdateLastMessage(conversationID uint, preview string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conversations[conversationID]; ok {
		t := at
		c.LastMessage = preview
		c.LastSentAt = &t
	}
	return nil
}

func (r *fakeConversationRepo) LatestForUser(userID uint) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Conversation
	for _, p := range r.participants {
		if p.UserID != userID {
			continue
		}
		c := r.conversations[p.ConversationID]
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return r.clone(latest), nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	nextID   uint
	clock    time.Time
	convRepo *fakeConversationRepo
	messages map[uint]*models.Message
	metas    []*models.MessageMeta
	deletes  []*models.MessageDelete
}

func newFakeMessageRepo(convRepo *fakeConversationRepo) *fakeMessageRepo {
	return &fakeMessageRepo{
		clock:    time.Now(),
		convRepo: convRepo,
		messages: map[uint]*models.Message{},
	}
}

func (r *fakeMessageRepo) cloneMsg(m *models.Message) *models.Message {
	out := *m
	out.Deletes = nil
	for _, d := range r.deletes {
		if d.MessageID == m.ID {
			out.Deletes = append(out.Deletes, *d)
		}
	}
	return &out
}

func (r *fakeMessageRepo) FindByID(id uint) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok {
		return r.cloneMsg(m), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeMessageRepo) FindForUser(userID, id uint) (*models.Message, error) {
	r.mu.Lock()
	m, ok := r.messages[id]
	r.mu.Unlock()
	if !ok || m.DeletedForAll {
		return nil, gorm.ErrRecordNotFound
	}
	if _, err := r.convRepo.ParticipantFor(m.ConversationID, userID); err != nil {
		return nil, gorm.ErrRecordNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cloneMsg(m), nil
}

func (r *fakeMessageRepo) FindByToken(conversationID uint, token string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, meta := range r.metas {
		if meta.ConversationID == conversationID && meta.Name == models.MetaToken && meta.Value == token {
			return r.cloneMsg(r.messages[meta.MessageID]), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeMessageRepo) insert(msg *models.Message) {
	r.nextID++
	now := time.Now()
	if !now.After(r.clock) {
		now = r.clock.Add(time.Nanosecond)
	}
	r.clock = now
	msg.ID = r.nextID
	msg.CreatedAt = now
	stored := *msg
	r.messages[stored.ID] = &stored
}

func (r *fakeMessageRepo) Create(msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insert(msg)
	return nil
}

// insertWithToken enforces the token meta unique index the way the database
// would: a second insert with the same token fails with ErrDuplicatedKey.
func (r *fakeMessageRepo) insertWithToken(msg *models.Message, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, meta := range r.metas {
		if meta.ConversationID == msg.ConversationID && meta.Name == models.MetaToken && meta.Value == token {
			return gorm.ErrDuplicatedKey
		}
	}
	r.insert(msg)
	r.metas = append(r.metas, &models.MessageMeta{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Name:           models.MetaToken,
		Value:          token,
	})
	return nil
}

func (r *fakeMessageRepo) CreateWithToken(msg *models.Message, token string) (bool, error) {
	if err := r.insertWithToken(msg, token); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, ferr := r.FindByToken(msg.ConversationID, token)
			if ferr != nil {
				return false, ferr
			}
			*msg = *existing
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *fakeMessageRepo) hiddenFor(messageID, userID uint) bool {
	for _, d := range r.deletes {
		if d.MessageID == messageID && d.UserID == userID {
			return true
		}
	}
	return false
}

func (r *fakeMessageRepo) visible(m *models.Message, userID uint) bool {
	if m.DeletedForAll {
		return false
	}
	p, err := r.convRepo.ParticipantFor(m.ConversationID, userID)
	if err != nil {
		return false
	}
	if r.hiddenFor(m.ID, userID) {
		return false
	}
	if p.HiddenAt != nil && !m.CreatedAt.After(*p.HiddenAt) {
		return false
	}
	return true
}

func (r *fakeMessageRepo) History(userID uint, f models.HistoryFilter) ([]models.Message, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []models.Message
	for _, m := range r.messages {
		if !r.visible(m, userID) {
			continue
		}
		if f.ConversationID != 0 && m.ConversationID != f.ConversationID {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(m.Body), strings.ToLower(f.Search)) {
			continue
		}
		if f.ReplyID != 0 && (m.ReplyID == nil || *m.ReplyID != f.ReplyID) {
			continue
		}
		if f.ReplyType != "" && m.ReplyType != f.ReplyType {
			continue
		}
		all = append(all, *r.cloneMsg(m))
	}

	asc := f.Order == "asc"
	sort.Slice(all, func(i, j int) bool {
		if asc {
			return all[i].ID < all[j].ID
		}
		return all[i].ID > all[j].ID
	})

	total := int64(len(all))
	start := (f.Page - 1) * f.PageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + f.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *fakeMessageRepo) VisibleForUser(userID uint, ids []uint) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Message
	for _, id := range ids {
		if m, ok := r.messages[id]; ok && r.visible(m, userID) {
			out = append(out, *r.cloneMsg(m))
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) MarkHidden(messageID, userID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hiddenFor(messageID, userID) {
		return nil
	}
	r.deletes = append(r.deletes, &models.MessageDelete{MessageID: messageID, UserID: userID})
	return nil
}

func (r *fakeMessageRepo) MarkDeletedForAll(messageID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[messageID]; ok {
		m.DeletedForAll = true
	}
	return nil
}

func (r *fakeMessageRepo) HiddenUserIDs(messageID uint) ([]uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uint
	for _, d := range r.deletes {
		if d.MessageID == messageID {
			ids = append(ids, d.UserID)
		}
	}
	return ids, nil
}

func (r *fakeMessageRepo) Purge(messageID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, messageID)
	var metas []*models.MessageMeta
	for _, m := range r.metas {
		if m.MessageID != messageID {
			metas = append(metas, m)
		}
	}
	r.metas = metas
	var deletes []*models.MessageDelete
	for _, d := range r.deletes {
		if d.MessageID != messageID {
			deletes = append(deletes, d)
		}
	}
	r.deletes = deletes
	return nil
}

func (r *fakeMessageRepo) LoadReplies(msgs []models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range msgs {
		if msgs[i].ReplyID != nil && msgs[i].ReplyType == models.ReplyKindMessage {
			if target, ok := r.messages[*msgs[i].ReplyID]; ok {
				msgs[i].Reply = r.cloneMsg(target)
			}
		}
	}
	return nil
}

func (r *fakeMessageRepo) tokenMetaCount(conversationID uint, token string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, m := range r.metas {
		if m.ConversationID == conversationID && m.Name == models.MetaToken && m.Value == token {
			count++
		}
	}
	return count
}

func (r *fakeMessageRepo) rowCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

type fakeBroadcaster struct {
	mu                  sync.Mutex
	messageCreated      []models.MessageCreatedEvent
	conversationCreated int
}

func (b *fakeBroadcaster) MessageCreated(msg *models.Message, attachments []models.Attachment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messageCreated = append(b.messageCreated, models.MessageCreatedEvent{Message: msg, Attachments: attachments})
}

func (b *fakeBroadcaster) ConversationCreated(*models.Conversation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversationCreated++
}

func (b *fakeBroadcaster) Subscribe(uint, *websocket.Conn) {}

func (b *fakeBroadcaster) messageEvents() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messageCreated)
}
